// Package web provides a lightweight monitoring dashboard and JSON API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/vncguard/internal/daemon"
	"github.com/user/vncguard/internal/util"
)

// Server is the web server. It serves from the daemon's live components,
// so it runs in the same process.
type Server struct {
	daemon *daemon.Daemon
	port   int
	srv    *http.Server
}

// NewServer creates a web server over a running daemon.
func NewServer(d *daemon.Daemon, port int) *Server {
	return &Server{
		daemon: d,
		port:   port,
	}
}

// Start starts the web server and blocks until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	h := NewHandlers(s.daemon)

	mux.HandleFunc("/", h.Dashboard)
	mux.HandleFunc("/api/sessions", h.APIGetSessions)
	mux.HandleFunc("/api/sessions/", h.APIGetSessionThreats) // /api/sessions/{id}/threats
	mux.HandleFunc("/api/threats", h.APIGetThreats)
	mux.HandleFunc("/api/blocks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.APICreateBlock(w, r)
		} else {
			h.APIGetBlocks(w, r)
		}
	})
	mux.HandleFunc("/api/blocks/", h.APIDeleteBlock) // DELETE /api/blocks/{ip}
	mux.HandleFunc("/api/baseline", h.APIGetBaseline)
	mux.HandleFunc("/api/simulations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.APIStartSimulation(w, r)
		} else {
			h.APIGetSimulations(w, r)
		}
	})
	mux.HandleFunc("/api/status", h.APIGetStatus)
	mux.HandleFunc("/api/stats", h.APIGetStats)
	mux.HandleFunc("/ws", s.daemon.Hub().ServeWS)
	mux.Handle("/metrics", s.daemon.Metrics().Handler())

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.srv.Shutdown(ctx)
	}()

	util.Info("web server starting on port %d", s.port)

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Stop stops the web server.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
