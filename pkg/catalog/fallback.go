package catalog

import (
	"math/rand"

	"atmosphera/pkg/domain"
)

// fallbackBooks is the embedded shelf served when the catalog is unreachable
// or keeps returning empty pages. Well-known titles so the screen never goes
// blank.
var fallbackBooks = []domain.Book{
	{Title: "Atomic Habits", Author: "James Clear", Genre: "Self-Help", PageCount: 320},
	{Title: "The Midnight Library", Author: "Matt Haig", Genre: "Fiction", PageCount: 304},
	{Title: "Project Hail Mary", Author: "Andy Weir", Genre: "Science Fiction", PageCount: 496},
	{Title: "Educated", Author: "Tara Westover", Genre: "Memoir", PageCount: 334},
	{Title: "Where the Crawdads Sing", Author: "Delia Owens", Genre: "Fiction", PageCount: 384},
	{Title: "The Song of Achilles", Author: "Madeline Miller", Genre: "Historical Fiction", PageCount: 416},
	{Title: "Thinking, Fast and Slow", Author: "Daniel Kahneman", Genre: "Psychology", PageCount: 499},
	{Title: "Circe", Author: "Madeline Miller", Genre: "Fantasy", PageCount: 393},
}

// FallbackShelf returns a shuffled copy of the embedded list with identities
// and mood colors filled in.
func FallbackShelf() []domain.Book {
	books := make([]domain.Book, len(fallbackBooks))
	copy(books, fallbackBooks)
	rand.Shuffle(len(books), func(i, j int) {
		books[i], books[j] = books[j], books[i]
	})
	for i := range books {
		books[i].ID = domain.BookID(books[i].Title, books[i].Author)
		books[i].MoodColor = MoodColor(books[i].Title)
	}
	return books
}
