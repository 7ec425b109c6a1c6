package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"atmosphera/pkg/domain"
)

const (
	keyPrefix  = "atmosphera:sess:"
	defaultTTL = 30 * 24 * time.Hour
)

// ErrNoActiveRead is returned when progress is updated before a book has
// been selected.
var ErrNoActiveRead = errors.New("session: no active read")

// RedisStore keeps session records as JSON blobs under namespaced keys.
// Mutations are read-modify-write per session; concurrent writers to the
// same session resolve last-write-wins.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	bus    *Bus
	now    func() time.Time
}

// NewRedisStore wraps an existing client. TTL <= 0 uses the 30 day default.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, bus: NewBus(), now: time.Now}
}

func (s *RedisStore) Events() *Bus { return s.bus }

func (s *RedisStore) key(sessionID, record string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, sessionID, record)
}

func (s *RedisStore) load(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("session: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Wishlist(ctx context.Context, sessionID string) ([]domain.Book, error) {
	var list []domain.Book
	if _, err := s.load(ctx, s.key(sessionID, "wishlist"), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *RedisStore) ToggleWishlist(ctx context.Context, sessionID string, book domain.Book) (bool, error) {
	list, err := s.Wishlist(ctx, sessionID)
	if err != nil {
		return false, err
	}
	list, added := toggleWishlist(list, book)
	if err := s.save(ctx, s.key(sessionID, "wishlist"), list); err != nil {
		return false, err
	}
	s.bus.Publish(Event{Kind: EventWishlist, SessionID: sessionID})
	return added, nil
}

func (s *RedisStore) InWishlist(ctx context.Context, sessionID, title, author string) (bool, error) {
	list, err := s.Wishlist(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return containsKey(list, title, author), nil
}

func (s *RedisStore) ActiveRead(ctx context.Context, sessionID string) (domain.Book, bool, error) {
	var book domain.Book
	ok, err := s.load(ctx, s.key(sessionID, "active"), &book)
	if err != nil {
		return domain.Book{}, false, err
	}
	return book, ok, nil
}

func (s *RedisStore) SetActiveRead(ctx context.Context, sessionID string, book domain.Book) error {
	current, hasCurrent, err := s.ActiveRead(ctx, sessionID)
	if err != nil {
		return err
	}
	if book.ID == "" {
		book.ID = domain.BookID(book.Title, book.Author)
	}
	if err := s.save(ctx, s.key(sessionID, "active"), book); err != nil {
		return err
	}
	if !hasCurrent || !sameRead(current, book) {
		if err := s.save(ctx, s.key(sessionID, "progress"), freshProgress(book, s.now())); err != nil {
			return err
		}
		s.bus.Publish(Event{Kind: EventProgress, SessionID: sessionID})
	}
	s.bus.Publish(Event{Kind: EventActiveRead, SessionID: sessionID})
	return nil
}

func (s *RedisStore) Progress(ctx context.Context, sessionID string) (domain.ReadingProgress, bool, error) {
	var p domain.ReadingProgress
	ok, err := s.load(ctx, s.key(sessionID, "progress"), &p)
	if err != nil {
		return domain.ReadingProgress{}, false, err
	}
	return p, ok, nil
}

func (s *RedisStore) UpdateProgress(ctx context.Context, sessionID string, currentPage, totalPages int) (domain.ReadingProgress, error) {
	p, ok, err := s.Progress(ctx, sessionID)
	if err != nil {
		return domain.ReadingProgress{}, err
	}
	if !ok {
		return domain.ReadingProgress{}, ErrNoActiveRead
	}
	p = applyProgress(p, currentPage, totalPages, s.now())
	if err := s.save(ctx, s.key(sessionID, "progress"), p); err != nil {
		return domain.ReadingProgress{}, err
	}
	s.bus.Publish(Event{Kind: EventProgress, SessionID: sessionID})
	return p, nil
}
