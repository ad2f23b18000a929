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

	"github.com/sells-group/leadform/internal/analytics"
	"github.com/sells-group/leadform/internal/api"
	"github.com/sells-group/leadform/internal/monitoring"
	"github.com/sells-group/leadform/internal/phone"
	"github.com/sells-group/leadform/internal/store"
	"github.com/sells-group/leadform/internal/wizard"
)

const (
	sessionSweepInterval = time.Minute
	cacheCleanupInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead form API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Resolver)
		srv := buildServer(env, collector)

		go srv.Sessions().RunSweeper(ctx, sessionSweepInterval)
		go runCacheCleanup(ctx, env.Store, cacheCleanupInterval)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		return startServer(ctx, srv.Handler(), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the environment into the API.
func buildServer(env *appEnv, metrics api.Metrics) *api.Server {
	tracker := env.Tracker
	if tracker == nil {
		tracker = analytics.Discard{}
	}
	var (
		resolver wizard.Resolver
		sinks    wizard.SubmissionLog
	)
	if env.Resolver != nil {
		resolver = env.Resolver
	}
	if env.Sinks != nil {
		sinks = env.Sinks
	}
	return api.New(api.Deps{
		Forms:          env.Forms,
		Webhook:        env.Webhook,
		Resolver:       resolver,
		Tracker:        tracker,
		Pixel:          analytics.NewPixel(tracker),
		Phone:          phone.New(cfg.Phone.Region),
		Log:            sinks,
		Policy:         wizard.ParseFailurePolicy(cfg.Webhook.FailurePolicy),
		Meeting:        env.Meeting,
		Metrics:        metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SessionTTL:     time.Duration(cfg.Server.SessionTTLMins) * time.Minute,
	})
}

// resolvePort returns the flag port when set, otherwise the config port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// runCacheCleanup deletes expired company cache rows until ctx is cancelled.
func runCacheCleanup(ctx context.Context, st store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredCompanies(ctx)
			if err != nil {
				zap.L().Warn("cache cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("cache cleanup", zap.Int("deleted", n))
			}
		}
	}
}
