package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"atmosphera/pkg/domain"
)

func newRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, 0)
}

func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("redis", func(t *testing.T) { fn(t, newRedisStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func TestToggleWishlistIsSelfInverse(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		book := domain.Book{Title: "Piranesi", Author: "Susanna Clarke"}

		added, err := store.ToggleWishlist(ctx, "s1", book)
		if err != nil || !added {
			t.Fatalf("first toggle should add: added=%v err=%v", added, err)
		}
		// Same normalized key under different casing and spacing.
		variant := domain.Book{Title: "  PIRANESI ", Author: "susanna   clarke"}
		if ok, _ := store.InWishlist(ctx, "s1", variant.Title, variant.Author); !ok {
			t.Fatal("membership should be keyed by normalized title and author")
		}
		added, err = store.ToggleWishlist(ctx, "s1", variant)
		if err != nil || added {
			t.Fatalf("second toggle should remove: added=%v err=%v", added, err)
		}
		list, err := store.Wishlist(ctx, "s1")
		if err != nil || len(list) != 0 {
			t.Fatalf("wishlist should be back to empty, got %v err=%v", list, err)
		}
	})
}

func TestWishlistAssignsIdentity(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if _, err := store.ToggleWishlist(ctx, "s1", domain.Book{Title: "Beloved", Author: "Toni Morrison"}); err != nil {
			t.Fatal(err)
		}
		list, _ := store.Wishlist(ctx, "s1")
		if len(list) != 1 || list[0].ID != domain.BookID("Beloved", "Toni Morrison") {
			t.Fatalf("stored book should carry a derived identity: %+v", list)
		}
	})
}

func TestSessionsAreIsolated(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		book := domain.Book{Title: "Circe", Author: "Madeline Miller"}
		if _, err := store.ToggleWishlist(ctx, "s1", book); err != nil {
			t.Fatal(err)
		}
		if ok, _ := store.InWishlist(ctx, "s2", book.Title, book.Author); ok {
			t.Fatal("wishlists must be scoped per session")
		}
	})
}

func TestSetActiveReadResetsProgressForNewTitle(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		first := domain.Book{Title: "Piranesi", Author: "Susanna Clarke", PageCount: 272}

		if err := store.SetActiveRead(ctx, "s1", first); err != nil {
			t.Fatal(err)
		}
		p, ok, err := store.Progress(ctx, "s1")
		if err != nil || !ok {
			t.Fatalf("progress should exist after selecting a read: ok=%v err=%v", ok, err)
		}
		if p.CurrentPage != 0 || p.TotalPages != 272 || p.Percentage != 0 {
			t.Fatalf("fresh progress wrong: %+v", p)
		}

		if _, err := store.UpdateProgress(ctx, "s1", 136, 0); err != nil {
			t.Fatal(err)
		}

		// Re-selecting the same title preserves progress.
		if err := store.SetActiveRead(ctx, "s1", first); err != nil {
			t.Fatal(err)
		}
		p, _, _ = store.Progress(ctx, "s1")
		if p.CurrentPage != 136 || p.Percentage != 50 {
			t.Fatalf("re-selecting the same title must preserve progress: %+v", p)
		}

		// A different title resets it, falling back to 300 pages when the
		// book has no page count.
		if err := store.SetActiveRead(ctx, "s1", domain.Book{Title: "Beloved", Author: "Toni Morrison"}); err != nil {
			t.Fatal(err)
		}
		p, _, _ = store.Progress(ctx, "s1")
		if p.BookTitle != "Beloved" || p.CurrentPage != 0 || p.TotalPages != 300 {
			t.Fatalf("switching titles must reset progress: %+v", p)
		}
	})
}

func TestUpdateProgressDerivesPercentage(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		if err := store.SetActiveRead(ctx, "s1", domain.Book{Title: "Circe", Author: "Madeline Miller", PageCount: 400}); err != nil {
			t.Fatal(err)
		}

		cases := []struct {
			page, total int
			wantPage    int
			wantTotal   int
			wantPct     int
		}{
			{100, 0, 100, 400, 25},
			{133, 0, 133, 400, 33},
			{500, 0, 400, 400, 100},
			{-3, 0, 0, 400, 0},
			{100, 200, 100, 200, 50},
		}
		for _, tc := range cases {
			p, err := store.UpdateProgress(ctx, "s1", tc.page, tc.total)
			if err != nil {
				t.Fatal(err)
			}
			if p.CurrentPage != tc.wantPage || p.TotalPages != tc.wantTotal || p.Percentage != tc.wantPct {
				t.Fatalf("update(%d,%d) = %+v, want page=%d total=%d pct=%d",
					tc.page, tc.total, p, tc.wantPage, tc.wantTotal, tc.wantPct)
			}
			if p.LastUpdated.IsZero() {
				t.Fatal("LastUpdated must be stamped")
			}
		}
	})
}

func TestUpdateProgressWithoutActiveRead(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		if _, err := store.UpdateProgress(context.Background(), "s1", 10, 0); err != ErrNoActiveRead {
			t.Fatalf("expected ErrNoActiveRead, got %v", err)
		}
	})
}

func TestBusDeliversMutationEvents(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		events, cancel := store.Events().Subscribe()
		defer cancel()

		if _, err := store.ToggleWishlist(ctx, "s1", domain.Book{Title: "Educated", Author: "Tara Westover"}); err != nil {
			t.Fatal(err)
		}
		select {
		case evt := <-events:
			if evt.Kind != EventWishlist || evt.SessionID != "s1" {
				t.Fatalf("unexpected event %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("no event delivered")
		}

		if err := store.SetActiveRead(ctx, "s1", domain.Book{Title: "Educated", Author: "Tara Westover"}); err != nil {
			t.Fatal(err)
		}
		kinds := map[EventKind]bool{}
		for len(kinds) < 2 {
			select {
			case evt := <-events:
				kinds[evt.Kind] = true
			case <-time.After(time.Second):
				t.Fatalf("missing events, saw %v", kinds)
			}
		}
		if !kinds[EventActiveRead] || !kinds[EventProgress] {
			t.Fatalf("expected active read and progress events, saw %v", kinds)
		}
	})
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	events, cancel := bus.Subscribe()
	cancel()
	if _, open := <-events; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// A second cancel is a no-op.
	cancel()
	bus.Publish(Event{Kind: EventWishlist, SessionID: "s1"})
}

func TestWishlistConcurrentTabsLastWriteWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client, 0)
	ctx := context.Background()

	if _, err := store.ToggleWishlist(ctx, "s1", domain.Book{Title: "Piranesi", Author: "Susanna Clarke"}); err != nil {
		t.Fatal(err)
	}

	// A second tab that loaded the list before the toggle saves its own
	// snapshot. Wishlist writes replace the blob wholesale, so the earlier
	// addition is lost.
	stale := []domain.Book{{Title: "Beloved", Author: "Toni Morrison"}}
	if err := store.save(ctx, store.key("s1", "wishlist"), stale); err != nil {
		t.Fatal(err)
	}

	books, err := store.Wishlist(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 || books[0].Title != "Beloved" {
		t.Fatalf("expected the later snapshot to win, got %+v", books)
	}
}
