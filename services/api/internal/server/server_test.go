package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"

	"atmosphera/internal/ratelimit"
	"atmosphera/pkg/ai"
	"atmosphera/pkg/media"
	"atmosphera/pkg/session"
	"atmosphera/services/api/internal/app"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

const recommendBooksJSON = `[
  {"title":"Piranesi","author":"Susanna Clarke","genre":"Fantasy","description":"A labyrinth.","reasoning":"Quiet and strange.","moodColor":"#4A6FA5"},
  {"title":"Beloved","author":"Toni Morrison","genre":"Literary Fiction","description":"A haunting.","reasoning":"Ghosts of memory.","moodColor":"#6B4A5A"},
  {"title":"The Haunting of Hill House","author":"Shirley Jackson","genre":"Horror","description":"A house.","reasoning":"Slow dread.","moodColor":"#2E3440"},
  {"title":"Giovanni's Room","author":"James Baldwin","genre":"Literary Fiction","description":"Paris.","reasoning":"Contemplative.","moodColor":"#A3BE8C"}
]`

func providerText(text string) []byte {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}}},
		},
	}
	out, _ := json.Marshal(resp)
	return out
}

// newTestRouter wires the full handler chain over in-memory stores and a fake
// provider. A nil handler serves the canned recommendation response.
func newTestRouter(t *testing.T, provider http.HandlerFunc, limiter *ratelimit.FixedWindowLimiter) http.Handler {
	t.Helper()
	if provider == nil {
		provider = func(w http.ResponseWriter, r *http.Request) {
			w.Write(providerText(recommendBooksJSON))
		}
	}
	providerSrv := httptest.NewServer(provider)
	t.Cleanup(providerSrv.Close)

	aiClient := ai.NewClient(ai.Config{
		APIKey:        "test-key",
		BaseURL:       providerSrv.URL,
		RetryInterval: time.Millisecond,
	})
	core, err := app.New(app.Config{
		SessionSecret:  testSessionSecret,
		RefineDebounce: 20 * time.Millisecond,
		AI:             aiClient,
		Sessions:       session.NewMemoryStore(),
		Media:          media.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	t.Cleanup(core.Close)

	srv, err := New(Config{App: core, Limiter: limiter})
	if err != nil {
		t.Fatalf("init server: %v", err)
	}
	return srv.Router()
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Session-Token", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func newSessionToken(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/session", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	decodeInto(t, rec, &resp)
	if resp.SessionID == "" || resp.Token == "" {
		t.Fatalf("incomplete session response: %+v", resp)
	}
	return resp.Token
}

func TestSessionIssueAndGuard(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	if rec := doJSON(t, router, http.MethodGet, "/api/session", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET session: expected 405, got %d", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodGet, "/api/wishlist", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/wishlist", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}

	token := newSessionToken(t, router)
	rec := doJSON(t, router, http.MethodGet, "/api/wishlist", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authed wishlist: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestWishlistToggleRoundTrip(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)
	book := map[string]string{"title": "Piranesi", "author": "Susanna Clarke"}

	var toggled struct {
		InWishlist bool `json:"inWishlist"`
	}
	rec := doJSON(t, router, http.MethodPost, "/api/wishlist", token, book)
	if rec.Code != http.StatusOK {
		t.Fatalf("first toggle: status %d body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &toggled)
	if !toggled.InWishlist {
		t.Fatal("expected first toggle to add")
	}

	var listed struct {
		Books []struct {
			Title string `json:"title"`
		} `json:"books"`
	}
	rec = doJSON(t, router, http.MethodGet, "/api/wishlist", token, nil)
	decodeInto(t, rec, &listed)
	if len(listed.Books) != 1 || listed.Books[0].Title != "Piranesi" {
		t.Fatalf("unexpected wishlist: %+v", listed.Books)
	}

	// Casing and spacing variants resolve to the same entry.
	rec = doJSON(t, router, http.MethodPost, "/api/wishlist", token,
		map[string]string{"title": "  PIRANESI ", "author": "susanna clarke"})
	decodeInto(t, rec, &toggled)
	if toggled.InWishlist {
		t.Fatal("expected second toggle to remove")
	}
}

func TestRecommendationsFlow(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)

	prefs := map[string]string{
		"weather": "Rainy & Melancholic",
		"mood":    "Contemplative",
		"pace":    "Slow burn",
	}
	rec := doJSON(t, router, http.MethodPost, "/api/recommendations", token, prefs)
	if rec.Code != http.StatusOK {
		t.Fatalf("recommend: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Books []struct {
			Title string `json:"title"`
			ID    string `json:"id"`
		} `json:"books"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Books) != 4 || resp.Books[0].Title != "Piranesi" || resp.Books[0].ID == "" {
		t.Fatalf("unexpected recommendation payload: %+v", resp.Books)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/recommendations", token, map[string]string{"mood": "Cozy"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete prefs: expected 400, got %d", rec.Code)
	}
}

func TestRecommendationsMapsProviderRateLimit(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":429,"message":"quota"}}`, http.StatusTooManyRequests)
	}, nil)
	token := newSessionToken(t, router)

	prefs := map[string]string{"weather": "Sunny", "mood": "Light", "pace": "Fast"}
	rec := doJSON(t, router, http.MethodPost, "/api/recommendations", token, prefs)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from provider quota, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateMethodAndPassthrough(t *testing.T) {
	const canned = `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(canned))
	}, nil)

	if rec := doJSON(t, router, http.MethodGet, "/api/generate", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET generate: expected 405, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPut, "/api/generate", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT generate: expected 405, got %d", rec.Code)
	}

	body := map[string]any{
		"model":    "gemini-2.5-flash",
		"contents": []map[string]any{{"parts": []map[string]string{{"text": "hi"}}}},
	}
	rec := doJSON(t, router, http.MethodPost, "/api/generate", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST generate: status %d body %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != canned {
		t.Fatalf("expected provider body relayed untouched, got %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/generate", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rec.Code)
	}
}

func TestProgressWithoutActiveRead(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)

	rec := doJSON(t, router, http.MethodPatch, "/api/reading/progress", token,
		map[string]int{"currentPage": 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 without active read, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestActiveReadAndProgressFlow(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/reading/active", token,
		map[string]any{"title": "Piranesi", "author": "Susanna Clarke", "pageCount": 272})
	if rec.Code != http.StatusOK {
		t.Fatalf("set active read: status %d body %s", rec.Code, rec.Body.String())
	}

	var progress struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
		Percentage  int `json:"percentage"`
	}
	rec = doJSON(t, router, http.MethodPatch, "/api/reading/progress", token,
		map[string]int{"currentPage": 136})
	if rec.Code != http.StatusOK {
		t.Fatalf("update progress: status %d body %s", rec.Code, rec.Body.String())
	}
	decodeInto(t, rec, &progress)
	if progress.Percentage != 50 || progress.TotalPages != 272 {
		t.Fatalf("unexpected progress: %+v", progress)
	}

	var active struct {
		Active bool `json:"active"`
		Book   struct {
			Title string `json:"title"`
		} `json:"book"`
	}
	rec = doJSON(t, router, http.MethodGet, "/api/reading/active", token, nil)
	decodeInto(t, rec, &active)
	if !active.Active || active.Book.Title != "Piranesi" {
		t.Fatalf("unexpected active read: %+v", active)
	}
}

func TestMediaUnavailableWithoutQueue(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/books/media", token, map[string]any{
		"book": map[string]string{"title": "Piranesi", "author": "Susanna Clarke", "description": "A labyrinth."},
		"kind": "mood_image",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no queue configured, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	rec := doJSON(t, router, http.MethodGet, "/api/search", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", rec.Code)
	}
}

func TestChatRequiresPersonaFirst(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	token := newSessionToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/api/chat", token, map[string]any{
		"book":    map[string]string{"title": "Piranesi", "author": "Susanna Clarke"},
		"message": "Who are you?",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before persona generation, got %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	decodeInto(t, rec, &resp)
	if !strings.Contains(resp.Error, "generate a persona first") {
		t.Fatalf("expected the actionable message, got %q", resp.Error)
	}
}

func TestLiveEndpointUpgradesThroughMiddleware(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket upgrade failed with status %d: %v", status, err)
	}
	defer conn.Close()

	// The provider dial fails against the test backend, so the session ends
	// with an error frame over the already-established socket.
	var frame struct {
		Error string `json:"error"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Error == "" {
		t.Fatal("expected an error frame after the failed provider dial")
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "", 2, time.Minute)
	if err != nil {
		t.Fatalf("init limiter: %v", err)
	}
	router := newTestRouter(t, nil, limiter)
	token := newSessionToken(t, router)

	prefs := map[string]string{"weather": "Sunny", "mood": "Light", "pace": "Fast"}
	for i := 0; i < 2; i++ {
		if rec := doJSON(t, router, http.MethodPost, "/api/recommendations", token, prefs); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d body %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := doJSON(t, router, http.MethodPost, "/api/recommendations", token, prefs)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}
