package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/pkg/meta"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := meta.VerifySubscription(
		q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), s.cfg.VerifyToken,
	)
	if !ok {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge) //nolint:errcheck
}

// handleWebhookEvent verifies the signature before looking at the body. A
// campaigns change schedules a sync of the affected account.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if !meta.VerifySignature(s.cfg.AppSecret, body, r.Header.Get(meta.SignatureHeader)) {
		zap.L().Warn("api: webhook signature rejected", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	payload, err := meta.ParseWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	accounts := s.webhookAccounts(payload)
	for _, account := range accounts {
		s.syncAsync(account)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "syncs": len(accounts)})
}

// webhookAccounts returns the configured accounts touched by campaign
// changes. Entries for accounts that are not configured are skipped.
func (s *Server) webhookAccounts(p *meta.WebhookPayload) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.Entry {
		if len(e.ChangesFor(meta.FieldCampaigns)) == 0 {
			continue
		}
		account, ok := s.matchAccount(e.ID)
		if !ok {
			zap.L().Warn("api: webhook entry for unconfigured account", zap.String("entry_id", e.ID))
			continue
		}
		if !seen[account] {
			seen[account] = true
			out = append(out, account)
		}
	}
	return out
}

func (s *Server) matchAccount(id string) (string, bool) {
	id = strings.TrimPrefix(id, "act_")
	for _, a := range s.cfg.Accounts {
		if strings.TrimPrefix(a, "act_") == id {
			return a, true
		}
	}
	return "", false
}

func (s *Server) runLogged(ctx context.Context, accountID string) {
	log := zap.L().With(zap.String("component", "api.webhook"), zap.String("account_id", accountID))
	run, err := s.syncer.Run(ctx, pipeline.SyncRequest{AccountID: accountID})
	if err != nil {
		log.Error("api: webhook sync failed", zap.Error(err))
		return
	}
	log.Info("api: webhook sync finished", zap.String("status", string(run.Status)))
}
