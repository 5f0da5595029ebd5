package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/ads-insights/internal/model"
)

// truncateID shortens a UUID for table output.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatAlerts writes an alert table to out.
func formatAlerts(out io.Writer, alerts []model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCAMPAIGN\tTYPE\tSEVERITY\tVALUE\tTHRESHOLD\tACK\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t--------\t-----\t---------\t---\t-------")

	for _, a := range alerts {
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			truncateID(a.ID),
			a.CampaignID,
			a.Type,
			a.Severity,
			a.Observed,
			a.Threshold,
			ack,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRecommendations writes a recommendation table to out.
func formatRecommendations(out io.Writer, recs []model.Recommendation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCAMPAIGN\tTYPE\tPRIORITY\tCONFIDENCE\tSOURCE\tSTATUS\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t--------\t----------\t------\t------\t-----")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.CampaignID,
			r.Type,
			r.Priority,
			r.Confidence*100,
			r.Source,
			r.Status(),
			truncate(r.Title, 40),
		)
	}
	_ = w.Flush()
}

// formatSyncRun writes a run summary with one line per step.
func formatSyncRun(out io.Writer, run *model.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Account:\t%s\n", run.AccountID)
	_, _ = fmt.Fprintf(w, "Range:\t%s to %s\n", run.Range.Since(), run.Range.Until())
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	if run.FinishedAt != nil {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", run.Error)
	}
	_, _ = fmt.Fprintln(w, "\nSTEP\tSTATUS\tCOUNT\tDURATION")
	for _, s := range run.Steps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%dms\n", s.Name, s.Status, s.Count, s.Duration)
	}
	_ = w.Flush()
}
