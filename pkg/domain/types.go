package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// MediaKind identifies a generated enrichment artifact type.
type MediaKind string

const (
	MediaAudioPreview MediaKind = "audio_preview"
	MediaMoodImage    MediaKind = "mood_image"
)

// MediaStatus tracks the lifecycle of an enrichment artifact.
type MediaStatus string

const (
	MediaQueued     MediaStatus = "queued"
	MediaProcessing MediaStatus = "processing"
	MediaReady      MediaStatus = "ready"
	MediaFailed     MediaStatus = "failed"
)

// UserPreferences is the full questionnaire result for one discovery run.
// It is submitted whole; the server only checks the steering fields are
// non-empty.
type UserPreferences struct {
	Weather          string `json:"weather"`
	Mood             string `json:"mood"`
	Pace             string `json:"pace"`
	Setting          string `json:"setting"`
	Language         string `json:"language"`
	Age              string `json:"age"`
	SpecificInterest string `json:"specificInterest"`
	PreferredFormat  string `json:"preferredFormat"`
}

// Book is the denormalized record merging AI-authored fields with
// catalog-sourced metadata. ISBNs may be absent or wrong; identity is the
// normalized (title, author) pair, carried as ID.
type Book struct {
	ID string `json:"id"`

	// AI-authored
	Title        string `json:"title"`
	Author       string `json:"author"`
	ISBN         string `json:"isbn,omitempty"`
	Genre        string `json:"genre,omitempty"`
	Description  string `json:"description,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
	MoodColor    string `json:"moodColor,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	EbookURL     string `json:"ebookUrl,omitempty"`
	MoviePairing string `json:"moviePairing,omitempty"`
	MusicPairing string `json:"musicPairing,omitempty"`
	FoodPairing  string `json:"foodPairing,omitempty"`
	Language     string `json:"language,omitempty"`

	// Catalog-sourced
	CoverURL         string  `json:"coverUrl,omitempty"`
	Publisher        string  `json:"publisher,omitempty"`
	PublishedDate    string  `json:"publishedDate,omitempty"`
	PageCount        int     `json:"pageCount,omitempty"`
	AverageRating    float64 `json:"averageRating,omitempty"`
	RatingsCount     int     `json:"ratingsCount,omitempty"`
	Saleability      string  `json:"saleability,omitempty"`
	Price            string  `json:"price,omitempty"`
	BuyLink          string  `json:"buyLink,omitempty"`
	AccessViewStatus string  `json:"accessViewStatus,omitempty"`
	PDFAvailable     bool    `json:"pdfAvailable,omitempty"`
	EpubAvailable    bool    `json:"epubAvailable,omitempty"`
}

// Shelf is a named, ordered grouping of books rebuilt every session.
type Shelf struct {
	Title  string `json:"title"`
	Books  []Book `json:"books"`
	IsLive bool   `json:"isLive,omitempty"`
}

// ReadingProgress tracks position in the active read. Percentage is always
// derived from CurrentPage/TotalPages; stores recompute it on every mutation.
type ReadingProgress struct {
	BookTitle   string    `json:"bookTitle"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
	Percentage  int       `json:"percentage"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// CharacterPersona is generated once per chat session and then frozen as the
// steering context for all subsequent turns.
type CharacterPersona struct {
	Name              string `json:"name"`
	Greeting          string `json:"greeting"`
	SystemInstruction string `json:"systemInstruction"`
}

// WebSource is one cited result from a search-grounded lookup.
type WebSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LiveInsights is the grounded detail lookup result for a single book.
type LiveInsights struct {
	Summary string      `json:"summary"`
	Sources []WebSource `json:"sources"`
}

// MediaArtifact is the durable record of one generated enrichment asset.
type MediaArtifact struct {
	ID           string      `json:"id"`
	BookID       string      `json:"bookId"`
	Kind         MediaKind   `json:"kind"`
	Status       MediaStatus `json:"status"`
	ObjectKey    string      `json:"-"`
	ContentType  string      `json:"contentType,omitempty"`
	URL          string      `json:"url,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// NormalizeKey folds a (title, author) pair into the canonical identity key:
// casefolded, whitespace-collapsed, joined with "|". Punctuation is kept;
// the contract only smooths case and spacing variance.
func NormalizeKey(title, author string) string {
	return normalizePart(title) + "|" + normalizePart(author)
}

func normalizePart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// BookID derives the stable identity hash for a (title, author) pair.
// Computed once when a record enters the system and carried for its lifetime.
func BookID(title, author string) string {
	sum := blake2b.Sum256([]byte(NormalizeKey(title, author)))
	return hex.EncodeToString(sum[:12])
}

// Key returns the book's normalized identity key.
func (b Book) Key() string {
	return NormalizeKey(b.Title, b.Author)
}
