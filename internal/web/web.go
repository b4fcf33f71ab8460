package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"eventboard/internal/board"
	"eventboard/internal/config"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// Server publishes the rendered board page and a small JSON API.
type Server struct {
	cfg   *config.Config
	board *board.Board
	mux   *http.ServeMux

	// onRefresh runs after a successful manual refresh (capture hook).
	onRefresh func(context.Context)
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, b *board.Board) *Server {
	s := &Server{
		cfg:   cfg,
		board: b,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// OnRefresh registers a hook run after POST /api/refresh succeeds.
func (s *Server) OnRefresh(fn func(context.Context)) {
	s.onRefresh = fn
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventboard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePage serves the last published board page.
func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.board.HTML())
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Data      []model.Record `json:"data"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// handleEvents returns the records behind the published page.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	resp := eventsResponse{Data: s.board.Records()}
	if ts := s.board.UpdatedAt(); !ts.IsZero() {
		resp.UpdatedAt = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	Rendered int `json:"rendered"`
}

// handleRefresh runs one synchronous pass. The board already logged any
// fetch failure, so it is only reported to the caller here.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res := s.board.Refresh(r.Context())
	if res.Err != nil {
		writeError(w, http.StatusBadGateway, res.Err.Error())
		return
	}
	if s.onRefresh != nil {
		s.onRefresh(r.Context())
	}
	writeJSON(w, http.StatusOK, refreshResponse{Rendered: res.Rendered})
}

// handlePreview serves the last capture from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// ServeFile maps missing files to 404.
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
