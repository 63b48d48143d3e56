package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-verify/internal/api"
	"github.com/sells-group/nonprofit-verify/internal/monitoring"
)

var (
	servePort            int
	serveRefreshInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initVerify(ctx, envOptions{restoreSnapshot: true, loadFilingIndex: true})
		if err != nil {
			return err
		}
		defer env.Close()

		if serveRefreshInterval > 0 {
			go refreshLoop(ctx, env, serveRefreshInterval)
		}

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Store, env.Service),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.NewRouter(env.Service, api.Options{
				AllowedOrigins: cfg.Server.CORSOrigins,
				Gatherer:       env.Gatherer,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// refreshLoop periodically rebuilds the registry snapshot and reloads the
// filing index. Failures keep the previous datasets serving.
func refreshLoop(ctx context.Context, env *verifyEnv, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := env.Service.RefreshRegistrySnapshot(ctx, nil); err != nil {
				zap.L().Error("scheduled registry refresh failed", zap.Error(err))
			}
			if _, err := env.Service.RefreshFilingIndex(ctx); err != nil {
				zap.L().Error("scheduled filing index refresh failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveRefreshInterval, "refresh-interval", 0, "rebuild datasets on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
