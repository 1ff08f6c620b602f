package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// MetricsServer serves /metrics over HTTP.
type MetricsServer struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// StartMetricsServer binds addr and serves h at /metrics in the background.
func StartMetricsServer(addr string, h http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	s := MetricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: l,
		done:     make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error(fmt.Sprintf("metrics server: %s", err.Error()))
		}
		s.done <- err
	}()

	logger.Info("serving metrics", slog.String("addr", l.Addr().String()))
	return &s, nil
}

// Addr returns the address the server is listening on.
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
