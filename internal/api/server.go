// Package api provides the local status server for a warm run.
//
// The devcontainer tooling polls /status to show warm progress; /events
// streams the run's observations (step changes, index status transitions,
// extension log lines) as server-sent events.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/mcp"
	"github.com/ternarybob/prewarm/pkg/readiness"
	"github.com/ternarybob/prewarm/web"
)

// Snapshot is the current view of the warm run.
type Snapshot struct {
	Phase     string           `json:"phase"`
	Status    readiness.Status `json:"status"`
	StartedAt time.Time        `json:"started_at"`
	Ready     *bool            `json:"ready,omitempty"`
	ElapsedMS int64            `json:"elapsed_ms"`
}

// Server is the status HTTP server.
type Server struct {
	cfg     *config.Config
	hub     *Hub
	router  chi.Router
	version string

	mu       sync.RWMutex
	snapshot Snapshot

	httpServer *http.Server
}

// NewServer creates the status server.
func NewServer(cfg *config.Config, hub *Hub, version string) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		version: version,
		snapshot: Snapshot{
			Phase:     "starting",
			StartedAt: time.Now(),
		},
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	r.Get("/history", s.handleHistory)
	r.Mount("/mcp", mcp.NewServer(s.cfg, s.version).HTTPHandler())
	r.Get("/", s.handleIndex)

	s.router = r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:         s.cfg.APIAddress(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		_ = s.httpServer.ListenAndServe()
	}()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	s.hub.Close()
}

// SetPhase updates the run phase and emits a step event.
func (s *Server) SetPhase(phase string) {
	s.mu.Lock()
	s.snapshot.Phase = phase
	s.mu.Unlock()

	s.hub.Emit(NewEvent(EventStepStarted).WithData("phase", phase))
}

// SetStatus records the latest derived index status.
func (s *Server) SetStatus(st readiness.Status) {
	s.mu.Lock()
	s.snapshot.Status = st
	s.mu.Unlock()

	s.hub.Emit(NewEvent(EventStatusChanged).WithData("status", st.String()))
}

// SetOutcome records the terminal poll outcome.
func (s *Server) SetOutcome(outcome readiness.PollOutcome) {
	s.mu.Lock()
	ready := outcome.Ready
	s.snapshot.Ready = &ready
	s.snapshot.Phase = "finished"
	s.snapshot.ElapsedMS = outcome.Elapsed.Milliseconds()
	s.mu.Unlock()

	s.hub.Emit(NewEvent(EventWarmFinished).
		WithData("ready", outcome.Ready).
		WithData("elapsed_ms", outcome.Elapsed.Milliseconds()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	if snap.ElapsedMS == 0 {
		snap.ElapsedMS = time.Since(snap.StartedAt).Milliseconds()
	}
	s.mu.RUnlock()

	writeJSON(w, snap)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.hub.History())
}

// handleEvents implements a Server-Sent Events stream of hub events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, _ := json.Marshal(event)
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := web.Static.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "status page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
