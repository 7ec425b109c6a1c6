package media

import (
	"testing"
	"time"

	"atmosphera/pkg/domain"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	artifact := domain.MediaArtifact{
		ID:        "a1",
		BookID:    "book-1",
		Kind:      domain.MediaAudioPreview,
		Status:    domain.MediaQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.Upsert(artifact, map[string]string{"voice": "Kore"}); err != nil {
		t.Fatal(err)
	}

	if err := store.SetStatus("a1", domain.MediaProcessing, ""); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := store.Get("a1")
	if !ok || got.Status != domain.MediaProcessing {
		t.Fatalf("status not updated: %+v", got)
	}

	if err := store.SetReady("a1", "audio/book-1.wav", "audio/wav"); err != nil {
		t.Fatal(err)
	}
	got, _, _ = store.Get("a1")
	if got.Status != domain.MediaReady || got.ObjectKey != "audio/book-1.wav" {
		t.Fatalf("ready state wrong: %+v", got)
	}

	byKind, ok, _ := store.FindByBookKind("book-1", domain.MediaAudioPreview)
	if !ok || byKind.ID != "a1" {
		t.Fatalf("lookup by book and kind failed: %+v", byKind)
	}
}

func TestMemoryStoreUpsertReplacesSameBookKind(t *testing.T) {
	store := NewMemoryStore()
	first := domain.MediaArtifact{ID: "a1", BookID: "book-1", Kind: domain.MediaMoodImage, Status: domain.MediaReady}
	second := domain.MediaArtifact{ID: "a2", BookID: "book-1", Kind: domain.MediaMoodImage, Status: domain.MediaQueued}
	if err := store.Upsert(first, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Upsert(second, nil); err != nil {
		t.Fatal(err)
	}

	list, _ := store.ListByBook("book-1")
	if len(list) != 1 || list[0].ID != "a2" {
		t.Fatalf("expected replacement for same book and kind, got %+v", list)
	}
	if _, ok, _ := store.Get("a1"); ok {
		t.Fatal("replaced artifact should be gone")
	}
}
