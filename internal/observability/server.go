package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kestrelworks/engram/pkg/log"
)

// MetricsServer exposes the Prometheus registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", m.srv.Addr).Msg("serving metrics")
	if err := m.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
