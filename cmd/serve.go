package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kairo-crm/intake/internal/lease"
	"github.com/kairo-crm/intake/internal/model"
)

// statsSource reports queue depth for the status endpoint.
type statsSource interface {
	QueueStats(ctx context.Context, queues []lease.Queue) ([]model.QueueStats, error)
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the queue pollers and the status HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return eris.Wrap(err, "serve: invalid config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return eris.Wrap(err, "serve: init")
		}
		defer env.Close()

		pollers, err := env.buildPollers()
		if err != nil {
			return eris.Wrap(err, "serve: pollers")
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(env.Store, env.Queues, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, p := range pollers {
			g.Go(func() error {
				return p.Run(gctx)
			})
		}

		g.Go(func() error {
			zap.L().Info("starting status server",
				zap.Int("port", cfg.Server.Port),
				zap.Strings("queues", cfg.Worker.Queues),
				zap.String("worker_id", cfg.Worker.InstanceID),
			)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil && !eris.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// buildRouter creates the status router with health and queue stats routes.
func buildRouter(stats statsSource, queues []lease.Queue, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/queue/stats", func(w http.ResponseWriter, req *http.Request) {
		out, err := stats.QueueStats(req.Context(), queues)
		if err != nil {
			zap.L().Error("serve: queue stats failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "queue stats unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"queues": out})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)
}
