package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"atmosphera/internal/metrics"
	"atmosphera/internal/ratelimit"
	"atmosphera/internal/sessiontoken"
	"atmosphera/internal/util"
	"atmosphera/pkg/ai"
	"atmosphera/pkg/domain"
	"atmosphera/pkg/library"
	"atmosphera/pkg/session"
	"atmosphera/services/api/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes the public HTTP API.
type Server struct {
	app     *app.App
	limiter *ratelimit.FixedWindowLimiter
	trusted *util.TrustedProxies
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		trusted: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler behind the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api",
		util.WithSecurityHeaders(util.WithCORS(metrics.WithHTTPMetrics(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())

	s.mux.HandleFunc("/api/session", s.handleSession)
	s.mux.HandleFunc("/api/library", s.handleLibrary)
	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.Handle("/api/recommendations", s.withRateLimit(s.withSession(s.handleRecommendations)))
	s.mux.Handle("/api/library/refine", s.withSession(s.handleRefine))
	s.mux.Handle("/api/books/insights", s.withRateLimit(s.withSession(s.handleInsights)))
	s.mux.Handle("/api/persona", s.withRateLimit(s.withSession(s.handlePersona)))
	s.mux.Handle("/api/chat", s.withRateLimit(s.withSession(s.handleChat)))
	s.mux.Handle("/api/books/media", s.withSession(s.handleMedia))
	s.mux.Handle("/api/wishlist", s.withSession(s.handleWishlist))
	s.mux.Handle("/api/reading/active", s.withSession(s.handleActiveRead))
	s.mux.Handle("/api/reading/progress", s.withSession(s.handleProgress))

	s.mux.Handle("/api/generate", s.withRateLimit(http.HandlerFunc(s.handleGenerate)))
	s.mux.HandleFunc("/api/live", s.handleLive)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- middleware ---

type sessionHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessiontoken.FromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "session token required")
			return
		}
		sessionID, err := s.app.VerifySession(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		next(w, r, sessionID)
	})
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r, s.trusted)) {
			writeError(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- sessions ---

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessionID, token, err := s.app.NewSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"sessionId": sessionID,
		"token":     token,
	})
}

// --- discovery ---

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.app.LibrarySnapshot(r.Context()))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	books, err := s.app.Search(r.Context(), query, 0)
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalog search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var prefs domain.UserPreferences
	if !decodeBody(w, r, &prefs) {
		return
	}
	metrics.RecommendationsTotal.WithLabelValues("started").Inc()
	start := time.Now()
	books, err := s.app.Recommend(r.Context(), prefs)
	metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RecommendationsTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, library.ErrIncompletePreferences) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeAIError(w, err)
		return
	}
	metrics.RecommendationsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]any{"books": books})
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request, _ string) {
	switch r.Method {
	case http.MethodPost:
		s.app.TriggerRefine()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
	case http.MethodGet:
		shelf, ok := s.app.RefinedShelf()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"ready": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "shelf": shelf})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var book domain.Book
	if !decodeBody(w, r, &book) {
		return
	}
	if strings.TrimSpace(book.Title) == "" {
		writeError(w, http.StatusBadRequest, "book title is required")
		return
	}
	insights, err := s.app.Insights(r.Context(), book)
	if err != nil {
		s.writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

// --- character chat ---

func (s *Server) handlePersona(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var book domain.Book
	if !decodeBody(w, r, &book) {
		return
	}
	if strings.TrimSpace(book.Title) == "" {
		writeError(w, http.StatusBadRequest, "book title is required")
		return
	}
	persona, err := s.app.StartChat(r.Context(), sessionID, book)
	if err != nil {
		s.writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Book    domain.Book `json:"book"`
		Message string      `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	reply, err := s.app.SendChat(r.Context(), sessionID, req.Book, req.Message)
	if err != nil {
		var aiErr *ai.Error
		if errors.As(err, &aiErr) {
			s.writeAIError(w, err)
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// --- wishlist and reading ---

func (s *Server) handleWishlist(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.Wishlist(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load wishlist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": books})
	case http.MethodPost:
		var book domain.Book
		if !decodeBody(w, r, &book) {
			return
		}
		if strings.TrimSpace(book.Title) == "" {
			writeError(w, http.StatusBadRequest, "book title is required")
			return
		}
		added, err := s.app.ToggleWishlist(r.Context(), sessionID, book)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not update wishlist")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"inWishlist": added})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleActiveRead(w http.ResponseWriter, r *http.Request, sessionID string) {
	switch r.Method {
	case http.MethodGet:
		book, ok, err := s.app.ActiveRead(r.Context(), sessionID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load active read")
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": true, "book": book})
	case http.MethodPost:
		var book domain.Book
		if !decodeBody(w, r, &book) {
			return
		}
		if strings.TrimSpace(book.Title) == "" {
			writeError(w, http.StatusBadRequest, "book title is required")
			return
		}
		progress, err := s.app.SetActiveRead(r.Context(), sessionID, book)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not set active read")
			return
		}
		writeJSON(w, http.StatusOK, progress)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	progress, err := s.app.UpdateProgress(r.Context(), sessionID, req.CurrentPage, req.TotalPages)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveRead) {
			writeError(w, http.StatusConflict, "no active read to update")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not update progress")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// --- media enrichment ---

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request, _ string) {
	switch r.Method {
	case http.MethodGet:
		bookID := strings.TrimSpace(r.URL.Query().Get("bookId"))
		if bookID == "" {
			writeError(w, http.StatusBadRequest, "query parameter bookId is required")
			return
		}
		artifacts, err := s.app.MediaStatus(r.Context(), bookID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load media status")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
	case http.MethodPost:
		var req struct {
			Book domain.Book      `json:"book"`
			Kind domain.MediaKind `json:"kind"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Book.Title) == "" {
			writeError(w, http.StatusBadRequest, "book title is required")
			return
		}
		artifact, err := s.app.EnqueueMedia(r.Context(), req.Book, req.Kind)
		if err != nil {
			if errors.Is(err, app.ErrMediaDisabled) {
				writeError(w, http.StatusServiceUnavailable, "media enrichment is not available")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, artifact)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// --- provider passthrough ---

// handleGenerate forwards {model, contents, config} to the provider with the
// server-held key. Anything other than POST (or a CORS preflight, handled
// upstream) is rejected with 405.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	raw, err := s.app.RawGenerate(r.Context(), req.Model, body)
	if err != nil {
		s.writeAIError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeAIError maps the provider failure taxonomy onto HTTP statuses while
// keeping the human-readable message.
func (s *Server) writeAIError(w http.ResponseWriter, err error) {
	aiErr := ai.AsError(err)
	status := http.StatusInternalServerError
	switch aiErr.Kind {
	case ai.KindMissingKey:
		status = http.StatusServiceUnavailable
	case ai.KindRateLimited:
		status = http.StatusTooManyRequests
	case ai.KindServiceUnavailable, ai.KindNetwork, ai.KindParse:
		status = http.StatusBadGateway
	case ai.KindSafetyRejected:
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, aiErr.UserMessage())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
