package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/STTM-NSU/paper-trading/internal/config"
)

type HTTPServer struct {
	s   *http.Server
	cfg config.ServerConfig
}

func NewHTTPServer(ctx context.Context, cfg config.ServerConfig, handler http.Handler) *HTTPServer {
	return &HTTPServer{
		s: &http.Server{
			Handler:           handler,
			Addr:              ":" + cfg.Port,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			BaseContext: func(listener net.Listener) context.Context {
				return ctx
			},
		},
		cfg: cfg,
	}
}

func (s *HTTPServer) Start() error {
	return s.s.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.s.Shutdown(ctx)
}

// Run serves until ctx is done, then drains in-flight requests for at most the shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
