// Package media is the durable index of generated enrichment artifacts.
// Object bytes live in object storage; this package tracks identity, status
// and the object key.
package media

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"atmosphera/pkg/domain"
)

const migrateLockID int64 = 90219021

// Store persists media artifact records.
type Store interface {
	Upsert(artifact domain.MediaArtifact, params map[string]string) error
	SetStatus(id string, status domain.MediaStatus, errMsg string) error
	SetReady(id, objectKey, contentType string) error
	Get(id string) (domain.MediaArtifact, bool, error)
	FindByBookKind(bookID string, kind domain.MediaKind) (domain.MediaArtifact, bool, error)
	ListByBook(bookID string) ([]domain.MediaArtifact, error)
}

// GormStore implements Store on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent workers don't race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ArtifactModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Upsert stores an artifact, replacing any previous record for the same
// (book, kind) pair.
func (s *GormStore) Upsert(artifact domain.MediaArtifact, params map[string]string) error {
	model := artifactToModel(artifact, params)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "book_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "object_key", "content_type", "params", "error_message", "updated_at"}),
	}).Create(&model).Error
}

// SetStatus updates artifact status/error.
func (s *GormStore) SetStatus(id string, status domain.MediaStatus, errMsg string) error {
	return s.db.Model(&ArtifactModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// SetReady marks the artifact ready and records where its bytes landed.
func (s *GormStore) SetReady(id, objectKey, contentType string) error {
	return s.db.Model(&ArtifactModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(domain.MediaReady),
			"object_key":    objectKey,
			"content_type":  contentType,
			"error_message": "",
			"updated_at":    time.Now().UTC(),
		}).Error
}

// Get retrieves one artifact by ID.
func (s *GormStore) Get(id string) (domain.MediaArtifact, bool, error) {
	var model ArtifactModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.MediaArtifact{}, false, nil
		}
		return domain.MediaArtifact{}, false, err
	}
	return artifactFromModel(model), true, nil
}

// FindByBookKind retrieves the artifact for a (book, kind) pair.
func (s *GormStore) FindByBookKind(bookID string, kind domain.MediaKind) (domain.MediaArtifact, bool, error) {
	var model ArtifactModel
	if err := s.db.First(&model, "book_id = ? AND kind = ?", bookID, string(kind)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.MediaArtifact{}, false, nil
		}
		return domain.MediaArtifact{}, false, err
	}
	return artifactFromModel(model), true, nil
}

// ListByBook returns all artifacts for a book, newest first.
func (s *GormStore) ListByBook(bookID string) ([]domain.MediaArtifact, error) {
	var models []ArtifactModel
	if err := s.db.Where("book_id = ?", bookID).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.MediaArtifact, 0, len(models))
	for _, m := range models {
		res = append(res, artifactFromModel(m))
	}
	return res, nil
}

func artifactToModel(a domain.MediaArtifact, params map[string]string) ArtifactModel {
	var raw datatypes.JSON
	if len(params) > 0 {
		raw, _ = json.Marshal(params)
	}
	return ArtifactModel{
		ID:           a.ID,
		BookID:       a.BookID,
		Kind:         string(a.Kind),
		Status:       string(a.Status),
		ObjectKey:    a.ObjectKey,
		ContentType:  a.ContentType,
		Params:       raw,
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func artifactFromModel(m ArtifactModel) domain.MediaArtifact {
	return domain.MediaArtifact{
		ID:           m.ID,
		BookID:       m.BookID,
		Kind:         domain.MediaKind(m.Kind),
		Status:       domain.MediaStatus(m.Status),
		ObjectKey:    m.ObjectKey,
		ContentType:  m.ContentType,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
