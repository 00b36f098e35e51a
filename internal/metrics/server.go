// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const readTimeout = 3 * time.Second

// Server serves /metrics for scraping.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a metrics HTTP server bound to bind:port, serving the
// default Prometheus registry via promHandler.
func NewServer(bind string, port int, promHandler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", bind, port),
			Handler:           mux,
			ReadHeaderTimeout: readTimeout,
		},
	}
}

// Run starts the server and blocks until ctx is cancelled or the server
// fails to start.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
