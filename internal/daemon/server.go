package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/fracquest/internal/config"
	"github.com/felixgeelhaar/fracquest/internal/domain"
	"github.com/felixgeelhaar/fracquest/internal/progress"
)

// Version is reported by /v1/status
var Version = "0.1.0"

// keyLister is implemented by cache backends that can enumerate entries
type keyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Server represents the FracQuest daemon HTTP server
type Server struct {
	cfg      *config.LocalConfig
	engine   *progress.Engine
	cache    progress.Cache
	registry *prometheus.Registry
	session  *progress.Session
	validate *requestValidator
	writes   ratelimit.RateLimiter
	server   *http.Server
	router   *http.ServeMux
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config *config.LocalConfig
	Engine *progress.Engine

	// Cache is the engine's cache; used only for status reporting
	Cache progress.Cache

	// Session is the device sign-in the engine resolves users from.
	// The /v1/session routes are served only when it is set.
	Session *progress.Session

	// Registry receives HTTP metrics and is served on /metrics.
	// A fresh registry is created when nil.
	Registry *prometheus.Registry
}

// NewServer creates a new daemon server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("daemon requires a progress engine")
	}
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:      cfg.Config,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		session:  cfg.Session,
		registry: cfg.Registry,
		validate: newRequestValidator(),
		router:   http.NewServeMux(),
	}
	if n := cfg.Config.Daemon.WritesPerMinute; n > 0 {
		s.writes = newWriteLimiter(n)
	}

	s.setupRoutes()

	metrics := newHTTPMetrics(s.registry)
	handler := recoveryMiddleware(
		correlationIDMiddleware(
			s.userMiddleware(
				loggingMiddleware(
					metrics.middleware(s.router)))))

	s.server = &http.Server{
		Addr:         cfg.Config.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // covers remote timeout plus retries
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Device sign-in
	if s.session != nil {
		s.router.HandleFunc("GET /v1/session", s.handleGetSession)
		s.router.HandleFunc("PUT /v1/session", s.limitWrites(s.handleSignIn))
		s.router.HandleFunc("DELETE /v1/session", s.limitWrites(s.handleSignOut))
	}

	// Unlock state
	s.router.HandleFunc("GET /v1/progress", s.handleGetProgress)
	s.router.HandleFunc("DELETE /v1/progress", s.limitWrites(s.handleResetProgress))
	s.router.HandleFunc("GET /v1/levels/{group}/stages", s.handleGetStages)
	s.router.HandleFunc("POST /v1/levels/{group}/complete", s.limitWrites(s.handleCompleteLevel))

	// Answers & statistics
	s.router.HandleFunc("POST /v1/levels/{group}/answers", s.limitWrites(s.handleRecordAnswer))
	s.router.HandleFunc("GET /v1/levels/{group}/stages/{stage}/answers", s.handleGetAnswerStats)
	s.router.HandleFunc("GET /v1/stats", s.handleUserStats)
	s.router.HandleFunc("GET /v1/stats/completion", s.handleCompletion)

	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting fracquest daemon",
		"addr", s.server.Addr,
		"groups", s.engine.Layout().Groups(),
		"remote", s.engine.RemoteEnabled(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")
	return s.server.Shutdown(ctx)
}

// Request bodies

type completeRequest struct {
	Stage         *int    `json:"stage" validate:"required"`
	IsCorrect     *bool   `json:"is_correct" validate:"required"`
	TimeRemaining float64 `json:"time_remaining" validate:"gte=0"`
}

type sessionRequest struct {
	UserID string `json:"user_id" validate:"required,uuid_rfc4122"`
}

type answerRequest struct {
	Stage     *int  `json:"stage" validate:"required"`
	IsCorrect *bool `json:"is_correct" validate:"required"`
}

// Handler implementations

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":           "running",
		"version":          Version,
		"stages_per_level": s.engine.Layout().StagesPerLevel(),
		"remote":           s.engine.RemoteEnabled(),
		"cache_backend":    s.cfg.Cache.Backend,
	}
	if lister, ok := s.cache.(keyLister); ok {
		if keys, err := lister.Keys(r.Context(), ""); err == nil {
			status["cache_entries"] = len(keys)
		} else {
			slog.Warn("list cache entries failed", "error", err)
		}
	}
	s.jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.sessionState(r.Context()))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	// Validated above; canonical form matches ids from X-User-ID.
	s.session.SignIn(uuid.MustParse(req.UserID).String())
	slog.Info("device signed in", "correlation_id", GetCorrelationID(r.Context()))
	s.jsonResponse(w, http.StatusOK, s.sessionState(context.Background()))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.session.SignOut()
	slog.Info("device signed out", "correlation_id", GetCorrelationID(r.Context()))
	s.jsonResponse(w, http.StatusOK, s.sessionState(context.Background()))
}

// sessionState reports the device user. A per-request X-User-ID overrides
// it and is reflected when ctx carries one.
func (s *Server) sessionState(ctx context.Context) map[string]any {
	id, signedIn := s.session.CurrentUserID(ctx)
	return map[string]any{
		"user_id":   id,
		"signed_in": signedIn,
	}
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	state := s.engine.UnlockState(r.Context())
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"groups": state.Keyed(),
	})
}

func (s *Server) handleGetStages(w http.ResponseWriter, r *http.Request) {
	g, err := s.levelGroup(r.PathValue("group"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"group":  g,
		"stages": nonNil(s.engine.UnlockedStages(r.Context(), g)),
	})
}

func (s *Server) handleCompleteLevel(w http.ResponseWriter, r *http.Request) {
	g, err := s.levelGroup(r.PathValue("group"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	var req completeRequest
	if !s.decode(w, r, &req) {
		return
	}

	stage := s.engine.Layout().ClampStage(g, *req.Stage)
	set, err := s.engine.CompleteLevel(r.Context(), g, stage, *req.IsCorrect, req.TimeRemaining)
	if errors.Is(err, domain.ErrInvalidLevelGroup) {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	// When neither store accepted the write the engine still returns the
	// last known set; the caller keeps playing and may resubmit.
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"group":     g,
		"stage":     stage,
		"stages":    nonNil(set),
		"persisted": err == nil,
	})
}

func (s *Server) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	g, err := s.levelGroup(r.PathValue("group"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}

	stage := s.engine.Layout().ClampStage(g, *req.Stage)
	if err := s.engine.RecordAnswer(r.Context(), g, stage, *req.IsCorrect); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to record answer", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"group": g,
		"stage": stage,
		"stats": s.engine.AnswerStats(r.Context(), g, stage),
	})
}

func (s *Server) handleGetAnswerStats(w http.ResponseWriter, r *http.Request) {
	g, err := s.levelGroup(r.PathValue("group"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}
	stage, err := strconv.Atoi(r.PathValue("stage"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "stage must be an integer", nil)
		return
	}

	stage = s.engine.Layout().ClampStage(g, stage)
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"group": g,
		"stage": stage,
		"stats": s.engine.AnswerStats(r.Context(), g, stage),
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.engine.UserStats(r.Context()))
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	g, err := s.optionalGroup(r)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	resp := map[string]any{
		"percentage": s.engine.CompletionPercentage(r.Context(), g),
	}
	if g != nil {
		resp["group"] = *g
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	g, err := s.optionalGroup(r)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid level group", err)
		return
	}

	state := s.engine.ResetProgress(r.Context(), g)
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"groups": state.Keyed(),
	})
}

// Helper methods

// levelGroup parses a group number and checks it against the layout
func (s *Server) levelGroup(raw string) (domain.LevelGroup, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidLevelGroup, raw)
	}
	g := domain.LevelGroup(n)
	if !s.engine.Layout().Valid(g) {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidLevelGroup, n)
	}
	return g, nil
}

// optionalGroup reads ?group=; absent means every group
func (s *Server) optionalGroup(r *http.Request) (*domain.LevelGroup, error) {
	raw := r.URL.Query().Get("group")
	if raw == "" {
		return nil, nil
	}
	g, err := s.levelGroup(raw)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// decode reads and validates a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	if err := s.validate.Struct(req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func nonNil(set domain.UnlockSet) domain.UnlockSet {
	if set == nil {
		return domain.UnlockSet{}
	}
	return set
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
