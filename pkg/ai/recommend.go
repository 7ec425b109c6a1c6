package ai

import (
	"context"
	"fmt"
	"strings"

	"atmosphera/pkg/domain"
)

// recommendationCount is the number of books requested per questionnaire run.
const recommendationCount = 4

// aiBook is the strict shape requested from the model for one recommendation.
type aiBook struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	ISBN         string `json:"isbn"`
	Genre        string `json:"genre"`
	Description  string `json:"description"`
	Reasoning    string `json:"reasoning"`
	MoodColor    string `json:"moodColor"`
	Excerpt      string `json:"excerpt"`
	EbookURL     string `json:"ebookUrl"`
	MoviePairing string `json:"moviePairing"`
	MusicPairing string `json:"musicPairing"`
	FoodPairing  string `json:"foodPairing"`
	Language     string `json:"language"`
}

func bookSchema() *Schema {
	str := func(desc string) *Schema { return &Schema{Type: "string", Description: desc} }
	return &Schema{
		Type: "array",
		Items: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"title":        str("Exact book title"),
				"author":       str("Author full name"),
				"isbn":         str("ISBN-13 when known, else empty"),
				"genre":        str("Primary genre"),
				"description":  str("Two or three sentence description"),
				"reasoning":    str("Why this book fits the reader's current atmosphere"),
				"moodColor":    str("A hex color matching the book's mood, e.g. #4A6FA5"),
				"excerpt":      str("A short evocative excerpt or opening line"),
				"ebookUrl":     str("A public ebook URL when one exists, else empty"),
				"moviePairing": str("A film that pairs with the book"),
				"musicPairing": str("An album or artist that pairs with the book"),
				"foodPairing":  str("A food or drink that pairs with the book"),
				"language":     str("Language of the recommended edition"),
			},
			Required: []string{"title", "author", "genre", "description", "reasoning", "moodColor"},
		},
	}
}

// Recommend asks the model for exactly recommendationCount books matching the
// questionnaire. Genre switching between consecutive picks is a prompt-level
// steering directive, not locally enforced.
func (c *Client) Recommend(ctx context.Context, prefs domain.UserPreferences) ([]domain.Book, error) {
	prompt := buildRecommendationPrompt(prefs)
	req := generateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		GenerationConfig: &GenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   bookSchema(),
		},
	}
	raw, err := c.generateText(ctx, c.textModel, req)
	if err != nil {
		return nil, err
	}
	var picks []aiBook
	if err := decodeModelJSON(raw, &picks); err != nil {
		return nil, err
	}
	books := make([]domain.Book, 0, len(picks))
	for _, p := range picks {
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Author) == "" {
			continue
		}
		books = append(books, domain.Book{
			ID:           domain.BookID(p.Title, p.Author),
			Title:        p.Title,
			Author:       p.Author,
			ISBN:         p.ISBN,
			Genre:        p.Genre,
			Description:  p.Description,
			Reasoning:    p.Reasoning,
			MoodColor:    p.MoodColor,
			Excerpt:      p.Excerpt,
			EbookURL:     p.EbookURL,
			MoviePairing: p.MoviePairing,
			MusicPairing: p.MusicPairing,
			FoodPairing:  p.FoodPairing,
			Language:     p.Language,
		})
	}
	if len(books) == 0 {
		return nil, newError(KindParse, "no usable recommendations in response")
	}
	if len(books) > recommendationCount {
		books = books[:recommendationCount]
	}
	return books, nil
}

func buildRecommendationPrompt(prefs domain.UserPreferences) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are Atmosphera, a literary matchmaker. Recommend exactly %d books for a reader in this atmosphere:\n", recommendationCount)
	writePref := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	writePref("Weather", prefs.Weather)
	writePref("Mood", prefs.Mood)
	writePref("Reading pace", prefs.Pace)
	writePref("Preferred setting", prefs.Setting)
	writePref("Language", prefs.Language)
	writePref("Age band", prefs.Age)
	writePref("Preferred format", prefs.PreferredFormat)
	if interest := SanitizeInterest(prefs.SpecificInterest); interest != "" {
		writePref("Specific interest", interest)
	}
	b.WriteString("\nTreat genre selection as a Markov chain that must switch state between consecutive picks: ")
	b.WriteString("no two adjacent recommendations may share a genre. ")
	b.WriteString("Only recommend real, published books.")
	return b.String()
}
