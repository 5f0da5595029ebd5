package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ads-insights/internal/aggregate"
	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cur, err := parseRange(r.URL.Query(), s.now(), s.cfg.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prev := cur.Previous()

	var curRows, prevRows []model.InsightRow
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		curRows, err = s.store.QueryRows(gctx, store.RowFilter{Range: cur})
		return err
	})
	g.Go(func() error {
		var err error
		prevRows, err = s.store.QueryRows(gctx, store.RowFilter{Range: prev})
		return err
	})
	if err := g.Wait(); err != nil {
		writeStoreError(w, r, err)
		return
	}

	curAgg, err := aggregate.Account(curRows, cur)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	prevAgg, err := aggregate.Account(prevRows, prev)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	campaigns, err := aggregate.ByCampaign(curRows, cur)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregate.CompareKPIs(curAgg, prevAgg, len(campaigns)))
}

// handleCampaigns aggregates before paginating so limit and offset count
// campaigns, not rows.
func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q, s.now(), s.cfg.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseInt(q, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseInt(q, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.store.QueryRows(r.Context(), store.RowFilter{
		Range:  rng,
		Search: strings.TrimSpace(q.Get("search")),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	aggs, err := aggregate.ByCampaign(rows, rng)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	if offset >= len(aggs) {
		aggs = nil
	} else {
		aggs = aggs[offset:]
		if limit > 0 && limit < len(aggs) {
			aggs = aggs[:limit]
		}
	}
	writeJSON(w, http.StatusOK, orEmpty(aggs))
}

func (s *Server) handleCampaignRows(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query(), s.now(), s.cfg.DefaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.QueryRows(r.Context(), store.RowFilter{
		Range:       rng,
		CampaignIDs: []string{chi.URLParam(r, "id")},
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (s *Server) handleROASChart(w http.ResponseWriter, r *http.Request) {
	days, err := parseInt(r.URL.Query(), "days", s.cfg.DefaultDays)
	if err != nil || days == 0 {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	rng := model.TrailingDays(s.now(), days)
	rows, err := s.store.QueryRows(r.Context(), store.RowFilter{Range: rng})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	points, err := aggregate.Daily(rows, rng)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(points))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ack, err := parseBool(q, "acknowledged")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseInt(q, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts, err := s.store.QueryAlerts(r.Context(), store.AlertFilter{
		Acknowledged: ack,
		CampaignID:   q.Get("campaign_id"),
		Limit:        limit,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(alerts))
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.AcknowledgeAlert(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "acknowledged"})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	implemented, err := parseBool(q, "implemented")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dismissed, err := parseBool(q, "dismissed")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseInt(q, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	priority := model.Severity(q.Get("priority"))
	if priority != "" && !priority.Valid() {
		writeError(w, http.StatusBadRequest, "invalid priority")
		return
	}
	recs, err := s.store.QueryRecommendations(r.Context(), store.RecommendationFilter{
		CampaignID:  q.Get("campaign_id"),
		Priority:    priority,
		Source:      model.RecommendationSource(q.Get("source")),
		Implemented: implemented,
		Dismissed:   dismissed,
		Limit:       limit,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(recs))
}

type recommendationPatch struct {
	Implemented *bool `json:"implemented"`
	Dismissed   *bool `json:"dismissed"`
}

func (s *Server) handleUpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	var body recommendationPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	var err error
	switch {
	case body.Implemented != nil && body.Dismissed != nil:
		writeError(w, http.StatusBadRequest, "set either implemented or dismissed, not both")
		return
	case body.Implemented != nil:
		err = s.store.UpdateRecommendationImplemented(r.Context(), id, *body.Implemented)
	case body.Dismissed != nil:
		if !*body.Dismissed {
			writeError(w, http.StatusBadRequest, "dismissed can only be set to true")
			return
		}
		err = s.store.DismissRecommendation(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "implemented or dismissed is required")
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "updated"})
}

type syncBody struct {
	AccountID string `json:"account_id"`
	Since     string `json:"since"`
	Until     string `json:"until"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var body syncBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	req := pipeline.SyncRequest{AccountID: body.AccountID}
	if body.Since != "" || body.Until != "" {
		if body.Since == "" || body.Until == "" {
			writeError(w, http.StatusBadRequest, "since and until must be set together")
			return
		}
		rng, err := model.ParseDateRange(body.Since, body.Until)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Range = &rng
	}

	run, err := s.syncer.Run(r.Context(), req)
	if err != nil {
		if run == nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "run": run})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query(), "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(runs))
}

// syncAsync runs a sync in the background, detached from the request.
func (s *Server) syncAsync(accountID string) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithCancel(s.bgCtx)
		defer cancel()
		s.runLogged(ctx, accountID)
	}()
}
