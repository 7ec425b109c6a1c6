package session

import (
	"context"
	"sync"
	"time"

	"atmosphera/pkg/domain"
)

// MemoryStore is the in-process store used when no Redis address is
// configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	wishlist map[string][]domain.Book
	active   map[string]domain.Book
	progress map[string]domain.ReadingProgress
	bus      *Bus
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wishlist: make(map[string][]domain.Book),
		active:   make(map[string]domain.Book),
		progress: make(map[string]domain.ReadingProgress),
		bus:      NewBus(),
		now:      time.Now,
	}
}

func (s *MemoryStore) Events() *Bus { return s.bus }

func (s *MemoryStore) Wishlist(_ context.Context, sessionID string) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.wishlist[sessionID]
	out := make([]domain.Book, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) ToggleWishlist(_ context.Context, sessionID string, book domain.Book) (bool, error) {
	s.mu.Lock()
	list, added := toggleWishlist(s.wishlist[sessionID], book)
	s.wishlist[sessionID] = list
	s.mu.Unlock()
	s.bus.Publish(Event{Kind: EventWishlist, SessionID: sessionID})
	return added, nil
}

func (s *MemoryStore) InWishlist(_ context.Context, sessionID, title, author string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return containsKey(s.wishlist[sessionID], title, author), nil
}

func (s *MemoryStore) ActiveRead(_ context.Context, sessionID string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.active[sessionID]
	return book, ok, nil
}

func (s *MemoryStore) SetActiveRead(_ context.Context, sessionID string, book domain.Book) error {
	if book.ID == "" {
		book.ID = domain.BookID(book.Title, book.Author)
	}
	s.mu.Lock()
	current, hasCurrent := s.active[sessionID]
	s.active[sessionID] = book
	reset := !hasCurrent || !sameRead(current, book)
	if reset {
		s.progress[sessionID] = freshProgress(book, s.now())
	}
	s.mu.Unlock()
	if reset {
		s.bus.Publish(Event{Kind: EventProgress, SessionID: sessionID})
	}
	s.bus.Publish(Event{Kind: EventActiveRead, SessionID: sessionID})
	return nil
}

func (s *MemoryStore) Progress(_ context.Context, sessionID string) (domain.ReadingProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[sessionID]
	return p, ok, nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, sessionID string, currentPage, totalPages int) (domain.ReadingProgress, error) {
	s.mu.Lock()
	p, ok := s.progress[sessionID]
	if !ok {
		s.mu.Unlock()
		return domain.ReadingProgress{}, ErrNoActiveRead
	}
	p = applyProgress(p, currentPage, totalPages, s.now())
	s.progress[sessionID] = p
	s.mu.Unlock()
	s.bus.Publish(Event{Kind: EventProgress, SessionID: sessionID})
	return p, nil
}
