// Package monitoring delivers alert notifications, tracks sync health and
// runs the periodic sync and retention loops.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/config"
	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/resilience"
)

// Event names carried in notifications.
const (
	EventCampaignAlert = "campaign_alert"
	EventSyncHealth    = "sync_health"
)

// Notification is the webhook body.
type Notification struct {
	Event     string         `json:"event"`
	Severity  model.Severity `json:"severity"`
	Message   string         `json:"message"`
	Alert     *model.Alert   `json:"alert,omitempty"`
	Health    *SyncHealth    `json:"health,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier posts alerts at or above a minimum severity to a webhook.
type Notifier struct {
	cfg         config.NotifyConfig
	minSeverity model.Severity
	client      *http.Client
	retry       resilience.RetryConfig
	now         func() time.Time
}

// NewNotifier creates a Notifier. An unknown MinSeverity defaults to high.
func NewNotifier(cfg config.NotifyConfig) *Notifier {
	sev := model.Severity(cfg.MinSeverity)
	if !sev.Valid() {
		sev = model.SeverityHigh
	}
	return &Notifier{
		cfg:         cfg,
		minSeverity: sev,
		client:      &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
			OnRetry:        resilience.RetryLogger("notifier", "webhook"),
		},
		now: time.Now,
	}
}

// Enabled reports whether a webhook is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.WebhookURL != ""
}

// Notify sends every alert that meets the severity floor. Delivery failures
// are logged and never returned.
func (n *Notifier) Notify(ctx context.Context, alerts []model.Alert) {
	if !n.Enabled() {
		return
	}
	var out []Notification
	for i := range alerts {
		if alerts[i].Severity.Rank() < n.minSeverity.Rank() {
			continue
		}
		a := alerts[i]
		out = append(out, Notification{
			Event:     EventCampaignAlert,
			Severity:  a.Severity,
			Message:   a.Message,
			Alert:     &a,
			Timestamp: n.now().UTC(),
		})
	}
	n.Send(ctx, out)
}

// EvaluateHealth returns a notification when the sync failure rate over the
// snapshot exceeds the configured threshold. At least three finished runs
// are required.
func (n *Notifier) EvaluateHealth(h *SyncHealth) *Notification {
	finished := h.Complete + h.Partial + h.Failed
	if finished < 3 || n.cfg.FailureRateAlert <= 0 || h.FailureRate <= n.cfg.FailureRateAlert {
		return nil
	}
	return &Notification{
		Event:    EventSyncHealth,
		Severity: model.SeverityHigh,
		Message: fmt.Sprintf(
			"Sync failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			h.FailureRate*100, n.cfg.FailureRateAlert*100, h.Failed, finished, h.LookbackHours,
		),
		Health:    h,
		Timestamp: n.now().UTC(),
	}
}

// Send delivers notifications and returns how many succeeded.
func (n *Notifier) Send(ctx context.Context, notes []Notification) int {
	if !n.Enabled() || len(notes) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.notifier"))
	sent := 0
	for _, note := range notes {
		if err := n.sendWebhook(ctx, note); err != nil {
			log.Error("monitoring: failed to send notification",
				zap.String("event", note.Event),
				zap.Error(err),
			)
			continue
		}
		log.Info("monitoring: notification sent",
			zap.String("event", note.Event),
			zap.String("severity", string(note.Severity)),
		)
		sent++
	}
	return sent
}

// sendWebhook posts note, retrying network failures and transient statuses.
func (n *Notifier) sendWebhook(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal notification")
	}
	return resilience.Do(ctx, n.retry, func(ctx context.Context) error {
		return n.post(ctx, payload)
	})
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
