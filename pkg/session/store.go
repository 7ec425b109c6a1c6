// Package session persists per-visitor reading state: wishlist, active read
// and reading progress. Values are small namespaced JSON blobs; a typed event
// bus scoped to the store notifies listeners of changes.
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"atmosphera/pkg/domain"
)

// defaultTotalPages is assumed when a book carries no page count.
const defaultTotalPages = 300

// EventKind names the record a change event refers to.
type EventKind string

const (
	EventWishlist   EventKind = "wishlist"
	EventActiveRead EventKind = "active_read"
	EventProgress   EventKind = "progress"
)

// Event is published on every mutation so visually distant consumers stay
// consistent without a shared store.
type Event struct {
	Kind      EventKind
	SessionID string
}

// Store is the per-session persistence contract.
type Store interface {
	Wishlist(ctx context.Context, sessionID string) ([]domain.Book, error)
	// ToggleWishlist flips membership for the book's normalized
	// (title, author) key and reports resulting membership. Calling it
	// twice restores the original state.
	ToggleWishlist(ctx context.Context, sessionID string, book domain.Book) (bool, error)
	InWishlist(ctx context.Context, sessionID, title, author string) (bool, error)

	ActiveRead(ctx context.Context, sessionID string) (domain.Book, bool, error)
	// SetActiveRead switches the active book. A different title resets
	// progress; re-selecting the current title preserves it.
	SetActiveRead(ctx context.Context, sessionID string, book domain.Book) error

	Progress(ctx context.Context, sessionID string) (domain.ReadingProgress, bool, error)
	// UpdateProgress mutates current page (and total pages when
	// totalPages > 0), recomputing the derived percentage.
	UpdateProgress(ctx context.Context, sessionID string, currentPage, totalPages int) (domain.ReadingProgress, error)

	Events() *Bus
}

// Bus is an in-process publish/subscribe channel for store change events.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish fans the event out. Slow subscribers drop events rather than block
// a mutation.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- evt:
		default:
		}
	}
}

// --- shared mutation rules, identical across store implementations ---

// toggleWishlist flips membership by normalized key.
func toggleWishlist(list []domain.Book, book domain.Book) ([]domain.Book, bool) {
	key := book.Key()
	for i, existing := range list {
		if existing.Key() == key {
			return append(list[:i:i], list[i+1:]...), false
		}
	}
	if book.ID == "" {
		book.ID = domain.BookID(book.Title, book.Author)
	}
	return append(list, book), true
}

func containsKey(list []domain.Book, title, author string) bool {
	key := domain.NormalizeKey(title, author)
	for _, existing := range list {
		if existing.Key() == key {
			return true
		}
	}
	return false
}

// freshProgress is the reset state for a newly started read.
func freshProgress(book domain.Book, now time.Time) domain.ReadingProgress {
	total := book.PageCount
	if total <= 0 {
		total = defaultTotalPages
	}
	return domain.ReadingProgress{
		BookTitle:   book.Title,
		CurrentPage: 0,
		TotalPages:  total,
		Percentage:  0,
		LastUpdated: now,
	}
}

// applyProgress clamps the mutation and re-derives the percentage. The
// percentage is never writable on its own.
func applyProgress(p domain.ReadingProgress, currentPage, totalPages int, now time.Time) domain.ReadingProgress {
	if totalPages > 0 {
		p.TotalPages = totalPages
	}
	if p.TotalPages <= 0 {
		p.TotalPages = defaultTotalPages
	}
	if currentPage < 0 {
		currentPage = 0
	}
	if currentPage > p.TotalPages {
		currentPage = p.TotalPages
	}
	p.CurrentPage = currentPage
	p.Percentage = int(math.Round(float64(p.CurrentPage) / float64(p.TotalPages) * 100))
	p.LastUpdated = now
	return p
}

// sameRead reports whether the active book stays the same, keyed by title
// like the wishlist contract.
func sameRead(current domain.Book, next domain.Book) bool {
	return domain.NormalizeKey(current.Title, "") == domain.NormalizeKey(next.Title, "")
}
