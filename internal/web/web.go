package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"calproxy/internal/cache"
	"calproxy/internal/config"
	"calproxy/internal/ics"
)

// Server exposes the proxied calendars plus a small status API.
type Server struct {
	cfg    *config.Config
	cache  *cache.Cache
	logger *slog.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer constructs a new Server bound to cfg.Listen.
func NewServer(cfg *config.Config, c *cache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		cache:  c,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/calendars", s.handleCalendars)
	s.mux.HandleFunc("GET /{calendar}/events.ics", s.handleCalendar)
}

// Handler returns the HTTP handler for this server, with request
// logging applied. Exposed separately so tests can drive it without a
// listener.
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logMiddleware tags every request with an ID and logs method, path and
// outcome.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// handleCalendar serves one transformed calendar.
//
// GET /{calendar}/events.ics
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("calendar")

	doc, err := s.cache.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, cache.ErrUnknownCalendar) {
			http.Error(w, fmt.Sprintf("The calendar %s does not exist.", name), http.StatusNotFound)
			return
		}
		s.logger.Error("calendar unavailable", "calendar", name, "error", err)
		http.Error(w, "upstream calendar unavailable", http.StatusBadGateway)
		return
	}

	body := doc.Serialize()
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// calendarStatusDTO is the JSON shape of one /api/calendars entry.
type calendarStatusDTO struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	State     string `json:"state"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// handleCalendars reports the cache state of every configured calendar.
// Upstream URLs are redacted; they may carry access tokens.
func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	stats := s.cache.Stats()

	dtos := make([]calendarStatusDTO, 0, len(stats))
	for _, st := range stats {
		dto := calendarStatusDTO{
			Name:  st.Name,
			URL:   ics.RedactURL(st.URL),
			State: string(st.State),
		}
		if !st.ExpiresAt.IsZero() {
			dto.ExpiresAt = st.ExpiresAt.Format(time.RFC3339)
		}
		dtos = append(dtos, dto)
	}

	s.writeJSON(w, http.StatusOK, dtos)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write JSON response", "error", err)
	}
}
