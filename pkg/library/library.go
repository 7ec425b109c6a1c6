// Package library assembles the discovery home screen: curated catalog
// shelves, AI recommendations and the debounced refinement pass that deepens
// them.
package library

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"atmosphera/pkg/domain"
)

// State is the orchestrator lifecycle.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// ErrIncompletePreferences is returned when the steering fields of a
// questionnaire are missing.
var ErrIncompletePreferences = errors.New("library: weather, mood and pace are required")

// defaultCategories seed the curated shelves on first load.
var defaultCategories = []string{"Mystery", "Science Fiction", "Romance", "History"}

// recommendShelfTitle names the live shelf fed by AI recommendations.
const (
	recommendShelfTitle = "For You"
	refinedShelfTitle   = "Deeper Into Your Mood"
)

// AI is the slice of the model client the orchestrator needs.
type AI interface {
	Recommend(ctx context.Context, prefs domain.UserPreferences) ([]domain.Book, error)
}

// Catalog is the slice of the books-catalog client the orchestrator needs.
type Catalog interface {
	Trending(ctx context.Context) []domain.Book
	HiddenGems(ctx context.Context) ([]domain.Book, error)
	Pulse(ctx context.Context) ([]domain.Book, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Book, error)
}

// Config wires the orchestrator. Zero values select defaults.
type Config struct {
	AI         AI
	Catalog    Catalog
	Categories []string
	// RefineDebounce is the trailing debounce before a refinement runs.
	RefineDebounce time.Duration
	Logger         *slog.Logger
}

// Snapshot is a point-in-time copy of the orchestrator state, safe to
// serialize while assembly continues.
type Snapshot struct {
	State           State                   `json:"state"`
	Shelves         []domain.Shelf          `json:"shelves"`
	Recommendations []domain.Book           `json:"recommendations"`
	Featured        *domain.Book            `json:"featured,omitempty"`
	RefinedAt       time.Time               `json:"refinedAt,omitzero"`
	Preferences     *domain.UserPreferences `json:"preferences,omitempty"`
}

// Library owns the assembled shelves for one session.
type Library struct {
	ai      AI
	catalog Catalog
	cats    []string
	logger  *slog.Logger
	refiner *Refiner

	mu        sync.RWMutex
	state     State
	shelves   []domain.Shelf
	recs      []domain.Book
	featured  *domain.Book
	prefs     *domain.UserPreferences
	refinedAt time.Time

	// randIdx is swappable in tests to pin the featured pick.
	randIdx func(n int) int
}

// New constructs an idle orchestrator.
func New(cfg Config) *Library {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = defaultCategories
	}
	if cfg.RefineDebounce <= 0 {
		cfg.RefineDebounce = 2 * time.Second
	}
	lib := &Library{
		ai:      cfg.AI,
		catalog: cfg.Catalog,
		cats:    cfg.Categories,
		logger:  cfg.Logger,
		state:   StateIdle,
		randIdx: rand.Intn,
	}
	lib.refiner = NewRefiner(lib.refine, cfg.RefineDebounce)
	return lib
}

// Close stops the background refiner.
func (l *Library) Close() {
	l.refiner.Stop()
}

// Snapshot returns a copy of the current state.
func (l *Library) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		State:           l.state,
		Shelves:         make([]domain.Shelf, len(l.shelves)),
		Recommendations: make([]domain.Book, len(l.recs)),
		RefinedAt:       l.refinedAt,
	}
	copy(snap.Shelves, l.shelves)
	copy(snap.Recommendations, l.recs)
	if l.featured != nil {
		featured := *l.featured
		snap.Featured = &featured
	}
	if l.prefs != nil {
		prefs := *l.prefs
		snap.Preferences = &prefs
	}
	return snap
}

// Assemble runs the initial shelf fan-out. Every source is queried
// concurrently and a failing source contributes an empty shelf instead of
// blocking the others.
func (l *Library) Assemble(ctx context.Context) Snapshot {
	l.mu.Lock()
	l.state = StateLoading
	l.mu.Unlock()

	shelves := make([]domain.Shelf, 3+len(l.cats))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		books, err := l.catalog.Pulse(gctx)
		if err != nil {
			l.logger.Warn("pulse shelf failed", "error", err)
			books = nil
		}
		shelves[0] = domain.Shelf{Title: "Literary Pulse", Books: books}
		return nil
	})
	g.Go(func() error {
		shelves[1] = domain.Shelf{Title: "Trending Now", Books: l.catalog.Trending(gctx)}
		return nil
	})
	g.Go(func() error {
		books, err := l.catalog.HiddenGems(gctx)
		if err != nil {
			l.logger.Warn("hidden gems shelf failed", "error", err)
			books = nil
		}
		shelves[2] = domain.Shelf{Title: "Hidden Gems", Books: books}
		return nil
	})
	for i, category := range l.cats {
		i, category := i, category
		g.Go(func() error {
			books, err := l.catalog.Search(gctx, "subject:"+strings.ToLower(category), 0)
			if err != nil {
				l.logger.Warn("category shelf failed", "category", category, "error", err)
				books = nil
			}
			shelves[3+i] = domain.Shelf{Title: category, Books: books}
			return nil
		})
	}
	// Branches never return errors; Wait only orders the writes above.
	_ = g.Wait()

	featured := l.pickFeatured(shelves)

	l.mu.Lock()
	l.shelves = shelves
	l.featured = featured
	l.state = StateReady
	l.mu.Unlock()
	return l.Snapshot()
}

// pickFeatured selects one random book across all assembled shelves.
func (l *Library) pickFeatured(shelves []domain.Shelf) *domain.Book {
	var pool []domain.Book
	for _, shelf := range shelves {
		pool = append(pool, shelf.Books...)
	}
	if len(pool) == 0 {
		return nil
	}
	pick := pool[l.randIdx(len(pool))]
	return &pick
}

// Recommend runs the questionnaire through the model and installs the
// resulting live shelf. A successful run arms the refinement debounce.
func (l *Library) Recommend(ctx context.Context, prefs domain.UserPreferences) ([]domain.Book, error) {
	if strings.TrimSpace(prefs.Weather) == "" ||
		strings.TrimSpace(prefs.Mood) == "" ||
		strings.TrimSpace(prefs.Pace) == "" {
		return nil, ErrIncompletePreferences
	}
	books, err := l.ai.Recommend(ctx, prefs)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.prefs = &prefs
	l.recs = books
	l.setShelf(domain.Shelf{Title: recommendShelfTitle, Books: books, IsLive: true}, true)
	l.mu.Unlock()

	l.refiner.Trigger()
	return books, nil
}

// TriggerRefine arms the refinement debounce explicitly, on top of the
// automatic trigger after a recommendation run.
func (l *Library) TriggerRefine() {
	l.refiner.Trigger()
}

// RefinedShelf returns the injected discovery shelf when a refinement has
// produced one.
func (l *Library) RefinedShelf() (domain.Shelf, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, shelf := range l.shelves {
		if shelf.Title == refinedShelfTitle {
			return shelf, true
		}
	}
	return domain.Shelf{}, false
}

// refine is the debounced single-slot refinement pass: one extra discovery
// shelf derived from the freshest preferences and recommendations.
func (l *Library) refine(ctx context.Context) {
	l.mu.RLock()
	prefs := l.prefs
	recs := make([]domain.Book, len(l.recs))
	copy(recs, l.recs)
	l.mu.RUnlock()
	if prefs == nil || len(recs) == 0 {
		return
	}

	deepened := *prefs
	deepened.SpecificInterest = refinementInterest(*prefs, recs)
	books, err := l.ai.Recommend(ctx, deepened)
	if err != nil {
		l.logger.Warn("refinement failed", "error", err)
		return
	}
	if len(books) == 0 {
		return
	}

	l.mu.Lock()
	l.setShelf(domain.Shelf{Title: refinedShelfTitle, Books: books, IsLive: true}, false)
	l.refinedAt = time.Now()
	l.mu.Unlock()
}

// refinementInterest steers the second pass toward what the first pass
// surfaced without repeating it.
func refinementInterest(prefs domain.UserPreferences, recs []domain.Book) string {
	var genres []string
	seen := map[string]bool{}
	for _, book := range recs {
		if book.Genre == "" || seen[book.Genre] {
			continue
		}
		seen[book.Genre] = true
		genres = append(genres, book.Genre)
	}
	interest := "books adjacent to " + strings.Join(genres, ", ")
	if prefs.SpecificInterest != "" {
		interest = prefs.SpecificInterest + "; " + interest
	}
	return interest
}

// setShelf replaces a shelf by title, inserting at the front or appending.
// Caller holds l.mu.
func (l *Library) setShelf(shelf domain.Shelf, front bool) {
	for i := range l.shelves {
		if l.shelves[i].Title == shelf.Title {
			l.shelves[i] = shelf
			return
		}
	}
	if front {
		l.shelves = append([]domain.Shelf{shelf}, l.shelves...)
		return
	}
	l.shelves = append(l.shelves, shelf)
}
