package library

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"atmosphera/pkg/domain"
)

var scenarioBooks = []domain.Book{
	{Title: "Piranesi", Author: "Susanna Clarke", Genre: "Fantasy"},
	{Title: "Beloved", Author: "Toni Morrison", Genre: "Literary Fiction"},
	{Title: "The Haunting of Hill House", Author: "Shirley Jackson", Genre: "Horror"},
	{Title: "Giovanni's Room", Author: "James Baldwin", Genre: "Literary Fiction"},
}

type stubAI struct {
	mu    sync.Mutex
	calls []domain.UserPreferences
	err   error
}

func (s *stubAI) Recommend(_ context.Context, prefs domain.UserPreferences) ([]domain.Book, error) {
	s.mu.Lock()
	s.calls = append(s.calls, prefs)
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	books := make([]domain.Book, len(scenarioBooks))
	copy(books, scenarioBooks)
	return books, nil
}

func (s *stubAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubCatalog struct {
	fail bool
}

func (s *stubCatalog) Trending(context.Context) []domain.Book {
	// Mirrors the real client: trending degrades internally and never
	// returns an empty slice.
	return []domain.Book{{Title: "Atomic Habits", Author: "James Clear", Genre: "Self-Help"}}
}

func (s *stubCatalog) HiddenGems(context.Context) ([]domain.Book, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	return []domain.Book{{Title: "Circe", Author: "Madeline Miller", Genre: "Fantasy"}}, nil
}

func (s *stubCatalog) Pulse(context.Context) ([]domain.Book, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	return []domain.Book{{Title: "Educated", Author: "Tara Westover", Genre: "Memoir"}}, nil
}

func (s *stubCatalog) Search(_ context.Context, query string, _ int) ([]domain.Book, error) {
	if s.fail {
		return nil, errors.New("catalog down")
	}
	return []domain.Book{{Title: "Found for " + query, Author: "Various", Genre: "Mixed"}}, nil
}

func newTestLibrary(t *testing.T, ai AI, cat Catalog) *Library {
	t.Helper()
	lib := New(Config{
		AI:             ai,
		Catalog:        cat,
		RefineDebounce: 20 * time.Millisecond,
		Logger:         slog.New(slog.DiscardHandler),
	})
	t.Cleanup(lib.Close)
	return lib
}

func TestAssembleBuildsAllShelves(t *testing.T) {
	lib := newTestLibrary(t, &stubAI{}, &stubCatalog{})
	if got := lib.Snapshot().State; got != StateIdle {
		t.Fatalf("fresh orchestrator should be idle, got %s", got)
	}

	snap := lib.Assemble(context.Background())
	if snap.State != StateReady {
		t.Fatalf("state after assemble = %s, want %s", snap.State, StateReady)
	}
	if len(snap.Shelves) != 3+len(defaultCategories) {
		t.Fatalf("expected %d shelves, got %d", 3+len(defaultCategories), len(snap.Shelves))
	}
	titles := make([]string, 0, len(snap.Shelves))
	for _, shelf := range snap.Shelves {
		titles = append(titles, shelf.Title)
	}
	for i, want := range []string{"Literary Pulse", "Trending Now", "Hidden Gems", "Mystery"} {
		if titles[i] != want {
			t.Fatalf("shelf order wrong: %v", titles)
		}
	}
	if snap.Featured == nil {
		t.Fatal("featured book should be picked when shelves have books")
	}
}

func TestAssembleToleratesPartialFailure(t *testing.T) {
	lib := newTestLibrary(t, &stubAI{}, &stubCatalog{fail: true})

	snap := lib.Assemble(context.Background())
	if snap.State != StateReady {
		t.Fatalf("a failing source must not block readiness, got %s", snap.State)
	}
	byTitle := map[string]domain.Shelf{}
	for _, shelf := range snap.Shelves {
		byTitle[shelf.Title] = shelf
	}
	if len(byTitle["Literary Pulse"].Books) != 0 || len(byTitle["Hidden Gems"].Books) != 0 {
		t.Fatal("failed sources should contribute empty shelves")
	}
	if len(byTitle["Trending Now"].Books) == 0 {
		t.Fatal("trending should still serve books")
	}
	if snap.Featured == nil || snap.Featured.Title != "Atomic Habits" {
		t.Fatalf("featured should come from the surviving shelf, got %+v", snap.Featured)
	}
}

func TestRecommendScenario(t *testing.T) {
	ai := &stubAI{}
	lib := newTestLibrary(t, ai, &stubCatalog{})
	lib.Assemble(context.Background())

	prefs := domain.UserPreferences{
		Weather:          "Rainy & Melancholic",
		Mood:             "Contemplative",
		Pace:             "Slow burn",
		SpecificInterest: "ghosts",
	}
	books, err := lib.Recommend(context.Background(), prefs)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(books) != 4 {
		t.Fatalf("expected 4 recommendations, got %d", len(books))
	}
	for i := 1; i < len(books); i++ {
		if books[i].Genre == books[i-1].Genre {
			t.Fatalf("adjacent genres repeat at %d: %v", i, books)
		}
	}

	snap := lib.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state = %s, want ready", snap.State)
	}
	if len(snap.Shelves) == 0 || snap.Shelves[0].Title != recommendShelfTitle || !snap.Shelves[0].IsLive {
		t.Fatalf("recommendations should lead as a live shelf: %+v", snap.Shelves[0])
	}
	if snap.Preferences == nil || snap.Preferences.SpecificInterest != "ghosts" {
		t.Fatalf("preferences not captured: %+v", snap.Preferences)
	}
}

func TestRecommendRequiresSteeringFields(t *testing.T) {
	ai := &stubAI{}
	lib := newTestLibrary(t, ai, &stubCatalog{})

	_, err := lib.Recommend(context.Background(), domain.UserPreferences{Weather: "Sunny"})
	if !errors.Is(err, ErrIncompletePreferences) {
		t.Fatalf("expected ErrIncompletePreferences, got %v", err)
	}
	if ai.callCount() != 0 {
		t.Fatal("model must not be called for incomplete preferences")
	}
}

func TestRefinementInjectsExtraShelf(t *testing.T) {
	ai := &stubAI{}
	lib := newTestLibrary(t, ai, &stubCatalog{})
	lib.Assemble(context.Background())

	prefs := domain.UserPreferences{
		Weather:          "Rainy & Melancholic",
		Mood:             "Contemplative",
		Pace:             "Slow burn",
		SpecificInterest: "ghosts",
	}
	if _, err := lib.Recommend(context.Background(), prefs); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		snap := lib.Snapshot()
		found := false
		for _, shelf := range snap.Shelves {
			if shelf.Title == refinedShelfTitle && len(shelf.Books) > 0 && shelf.IsLive {
				found = true
			}
		}
		if found {
			if snap.RefinedAt.IsZero() {
				t.Fatal("refinement timestamp not recorded")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("refined shelf never appeared")
		case <-time.After(5 * time.Millisecond):
		}
	}

	ai.mu.Lock()
	defer ai.mu.Unlock()
	if len(ai.calls) != 2 {
		t.Fatalf("expected recommend + refinement calls, got %d", len(ai.calls))
	}
	refined := ai.calls[1].SpecificInterest
	if !strings.Contains(refined, "ghosts") || !strings.Contains(refined, "Fantasy") {
		t.Fatalf("refinement should deepen the original interest, got %q", refined)
	}
}

func TestRefinementFailureKeepsShelves(t *testing.T) {
	ai := &stubAI{}
	lib := newTestLibrary(t, ai, &stubCatalog{})
	lib.Assemble(context.Background())

	prefs := domain.UserPreferences{Weather: "Sunny", Mood: "Light", Pace: "Fast"}
	if _, err := lib.Recommend(context.Background(), prefs); err != nil {
		t.Fatal(err)
	}
	ai.mu.Lock()
	ai.err = errors.New("model unavailable")
	ai.mu.Unlock()

	deadline := time.After(2 * time.Second)
	for ai.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("refinement never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)

	snap := lib.Snapshot()
	if snap.Shelves[0].Title != recommendShelfTitle || len(snap.Shelves[0].Books) != 4 {
		t.Fatalf("a failed refinement must not disturb existing shelves: %+v", snap.Shelves[0])
	}
	for _, shelf := range snap.Shelves {
		if shelf.Title == refinedShelfTitle {
			t.Fatal("failed refinement must not inject a shelf")
		}
	}
}
