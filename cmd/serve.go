package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/api"
	"github.com/sells-group/ads-insights/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, webhook receiver and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSyncEnv(ctx, "serve", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		apiSrv := api.New(env.Store, env.Pipeline, env.Metrics, api.Config{
			CORSOrigins: cfg.Server.CORSOrigins,
			AppSecret:   cfg.Meta.AppSecret,
			VerifyToken: cfg.Meta.VerifyToken,
			Accounts:    cfg.Meta.Accounts,
			DefaultDays: cfg.Sync.DefaultDays,
		})
		defer apiSrv.Close()

		if cfg.Schedule.Enabled {
			sched := monitoring.NewScheduler(env.Pipeline, env.Store, monitoring.NewCollector(env.Store), env.Notifier, cfg)
			go sched.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           apiSrv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("scheduler", cfg.Schedule.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
