// Package api serves the dashboard's HTTP API and the Meta webhook endpoint.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/pipeline"
	"github.com/sells-group/ads-insights/internal/store"
	"github.com/sells-group/ads-insights/internal/telemetry"
)

// Syncer runs one sync.
type Syncer interface {
	Run(ctx context.Context, req pipeline.SyncRequest) (*model.SyncRun, error)
}

// Config configures the HTTP surface.
type Config struct {
	CORSOrigins []string
	AppSecret   string
	VerifyToken string
	Accounts    []string
	DefaultDays int
}

// Server holds the API dependencies.
type Server struct {
	store   store.Store
	syncer  Syncer
	metrics *telemetry.Metrics
	cfg     Config
	now     func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates a Server. metrics may be nil.
func New(st store.Store, syncer Syncer, m *telemetry.Metrics, cfg Config) *Server {
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:    st,
		syncer:   syncer,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Close cancels webhook-triggered syncs and waits for them to return.
func (s *Server) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/campaigns", s.handleCampaigns)
		r.Get("/campaigns/{id}/rows", s.handleCampaignRows)
		r.Get("/charts/roas", s.handleROASChart)

		r.Get("/alerts", s.handleAlerts)
		r.Post("/alerts/{id}/ack", s.handleAckAlert)

		r.Get("/recommendations", s.handleRecommendations)
		r.Patch("/recommendations/{id}", s.handleUpdateRecommendation)

		r.Post("/sync", s.handleSync)
		r.Get("/sync/runs", s.handleSyncRuns)
	})

	r.Get("/webhooks/meta", s.handleWebhookVerify)
	r.Post("/webhooks/meta", s.handleWebhookEvent)

	return r
}
