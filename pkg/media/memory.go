package media

import (
	"sync"
	"time"

	"atmosphera/pkg/domain"
)

// MemoryStore is the in-process artifact index used when no database is
// configured and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]domain.MediaArtifact
	params    map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]domain.MediaArtifact),
		params:    make(map[string]map[string]string),
	}
}

func (s *MemoryStore) Upsert(artifact domain.MediaArtifact, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Same (book, kind) pair replaces the previous record.
	for id, existing := range s.artifacts {
		if existing.BookID == artifact.BookID && existing.Kind == artifact.Kind && id != artifact.ID {
			delete(s.artifacts, id)
			delete(s.params, id)
		}
	}
	s.artifacts[artifact.ID] = artifact
	if params != nil {
		s.params[artifact.ID] = params
	}
	return nil
}

func (s *MemoryStore) SetStatus(id string, status domain.MediaStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[id]
	if !ok {
		return nil
	}
	artifact.Status = status
	artifact.ErrorMessage = errMsg
	artifact.UpdatedAt = time.Now().UTC()
	s.artifacts[id] = artifact
	return nil
}

func (s *MemoryStore) SetReady(id, objectKey, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[id]
	if !ok {
		return nil
	}
	artifact.Status = domain.MediaReady
	artifact.ObjectKey = objectKey
	artifact.ContentType = contentType
	artifact.ErrorMessage = ""
	artifact.UpdatedAt = time.Now().UTC()
	s.artifacts[id] = artifact
	return nil
}

func (s *MemoryStore) Get(id string) (domain.MediaArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	artifact, ok := s.artifacts[id]
	return artifact, ok, nil
}

func (s *MemoryStore) FindByBookKind(bookID string, kind domain.MediaKind) (domain.MediaArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, artifact := range s.artifacts {
		if artifact.BookID == bookID && artifact.Kind == kind {
			return artifact, true, nil
		}
	}
	return domain.MediaArtifact{}, false, nil
}

func (s *MemoryStore) ListByBook(bookID string) ([]domain.MediaArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.MediaArtifact
	for _, artifact := range s.artifacts {
		if artifact.BookID == bookID {
			res = append(res, artifact)
		}
	}
	return res, nil
}
