package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const shutdownGrace = 5 * time.Second

// Mount registers extra routes on the metrics router.
type Mount func(chi.Router)

// Router returns the handler tree served next to a long scraping run:
// /metrics for Prometheus, /healthz for liveness probes and any mounts.
func Router(mounts ...Mount) http.Handler {
	Init()
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	for _, mount := range mounts {
		mount(r)
	}
	return r
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger, mounts ...Mount) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(mounts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		logger.Info("metrics server stopped")
		return nil
	}
}
