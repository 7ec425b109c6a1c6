package media

import (
	"time"

	"gorm.io/datatypes"
)

// ArtifactModel is the GORM row backing a generated media artifact. Params
// echoes the enrichment job inputs so a failed artifact can be replayed.
type ArtifactModel struct {
	ID           string `gorm:"primaryKey"`
	BookID       string `gorm:"not null;index:idx_artifact_book_kind,unique,priority:1"`
	Kind         string `gorm:"not null;index:idx_artifact_book_kind,unique,priority:2"`
	Status       string `gorm:"not null"`
	ObjectKey    string
	ContentType  string
	Params       datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index"`
}
