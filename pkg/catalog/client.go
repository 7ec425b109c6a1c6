// Package catalog queries the public books-metadata API and maps its records
// into the internal Book shape.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"atmosphera/pkg/domain"
)

const (
	defaultBaseURL      = "https://www.googleapis.com/books/v1"
	defaultCoverBaseURL = "https://covers.openlibrary.org"

	// Trending randomizes its offset inside a capped results window so
	// repeated calls surface different books.
	trendingWindow   = 500
	defaultPageSize  = 12
	trendingQuery    = "subject:fiction"
	hiddenGemsQuery  = `subject:fiction "debut novel"`
	literaryPulseQry = "new books literary"
)

// Config configures the catalog client. Zero values select production
// defaults.
type Config struct {
	BaseURL      string
	CoverBaseURL string
	HTTPClient   *http.Client
}

// Client is an unauthenticated books-catalog API client.
type Client struct {
	baseURL      string
	coverBaseURL string
	httpClient   *http.Client

	// randInt is swappable in tests to pin the trending offset.
	randInt func(n int) int
}

// NewClient constructs a catalog client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:      strings.TrimSpace(cfg.BaseURL),
		coverBaseURL: strings.TrimSpace(cfg.CoverBaseURL),
		httpClient:   cfg.HTTPClient,
		randInt:      rand.Intn,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.coverBaseURL == "" {
		c.coverBaseURL = defaultCoverBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// Search returns books matching a text query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return c.volumes(ctx, query, limit, 0, "")
}

// Trending returns a rotating slice of popular fiction. A randomized offset
// varies results across calls; an empty page triggers one retry at offset 0,
// and any remaining failure falls back to the embedded shelf so the caller
// never sees an empty list.
func (c *Client) Trending(ctx context.Context) []domain.Book {
	offset := c.randInt(trendingWindow)
	books, err := c.volumes(ctx, trendingQuery, defaultPageSize, offset, "relevance")
	if err == nil && len(books) > 0 {
		return books
	}
	if offset != 0 {
		books, err = c.volumes(ctx, trendingQuery, defaultPageSize, 0, "relevance")
		if err == nil && len(books) > 0 {
			return books
		}
	}
	return FallbackShelf()
}

// HiddenGems surfaces lesser-known titles.
func (c *Client) HiddenGems(ctx context.Context) ([]domain.Book, error) {
	offset := c.randInt(trendingWindow / 2)
	books, err := c.volumes(ctx, hiddenGemsQuery, defaultPageSize, offset, "relevance")
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return c.volumes(ctx, hiddenGemsQuery, defaultPageSize, 0, "relevance")
	}
	return books, nil
}

// Pulse returns the newest literary releases for the "literary pulse" feed.
func (c *Client) Pulse(ctx context.Context) ([]domain.Book, error) {
	return c.volumes(ctx, literaryPulseQry, defaultPageSize, 0, "newest")
}

func (c *Client) volumes(ctx context.Context, query string, limit, offset int, orderBy string) ([]domain.Book, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", fmt.Sprint(limit))
	params.Set("printType", "books")
	if offset > 0 {
		params.Set("startIndex", fmt.Sprint(offset))
	}
	if orderBy != "" {
		params.Set("orderBy", orderBy)
	}
	reqURL := c.baseURL + "/volumes?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog status %s", resp.Status)
	}
	var payload volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	books := make([]domain.Book, 0, len(payload.Items))
	for _, item := range payload.Items {
		book, ok := mapVolume(item)
		if !ok {
			continue
		}
		books = append(books, book)
	}
	return books, nil
}

// --- upstream wire shapes ---

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		Categories          []string `json:"categories"`
		AverageRating       float64  `json:"averageRating"`
		RatingsCount        int      `json:"ratingsCount"`
		Language            string   `json:"language"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
	SaleInfo struct {
		Saleability string `json:"saleability"`
		BuyLink     string `json:"buyLink"`
		ListPrice   struct {
			Amount       float64 `json:"amount"`
			CurrencyCode string  `json:"currencyCode"`
		} `json:"listPrice"`
	} `json:"saleInfo"`
	AccessInfo struct {
		AccessViewStatus string `json:"accessViewStatus"`
		WebReaderLink    string `json:"webReaderLink"`
		PDF              struct {
			IsAvailable bool `json:"isAvailable"`
		} `json:"pdf"`
		Epub struct {
			IsAvailable bool `json:"isAvailable"`
		} `json:"epub"`
	} `json:"accessInfo"`
}

func mapVolume(v volume) (domain.Book, bool) {
	info := v.VolumeInfo
	if strings.TrimSpace(info.Title) == "" {
		return domain.Book{}, false
	}
	author := "Unknown"
	if len(info.Authors) > 0 {
		author = strings.Join(info.Authors, ", ")
	}
	book := domain.Book{
		ID:               domain.BookID(info.Title, author),
		Title:            info.Title,
		Author:           author,
		Description:      StripHTML(info.Description),
		Publisher:        info.Publisher,
		PublishedDate:    info.PublishedDate,
		PageCount:        info.PageCount,
		AverageRating:    info.AverageRating,
		RatingsCount:     info.RatingsCount,
		Language:         info.Language,
		CoverURL:         secureURL(info.ImageLinks.Thumbnail),
		Saleability:      v.SaleInfo.Saleability,
		BuyLink:          v.SaleInfo.BuyLink,
		AccessViewStatus: v.AccessInfo.AccessViewStatus,
		EbookURL:         v.AccessInfo.WebReaderLink,
		PDFAvailable:     v.AccessInfo.PDF.IsAvailable,
		EpubAvailable:    v.AccessInfo.Epub.IsAvailable,
	}
	if len(info.Categories) > 0 {
		book.Genre = info.Categories[0]
	}
	for _, ident := range info.IndustryIdentifiers {
		if ident.Type == "ISBN_13" {
			book.ISBN = ident.Identifier
			break
		}
		if ident.Type == "ISBN_10" && book.ISBN == "" {
			book.ISBN = ident.Identifier
		}
	}
	if v.SaleInfo.ListPrice.Amount > 0 {
		book.Price = fmt.Sprintf("%.2f %s", v.SaleInfo.ListPrice.Amount, v.SaleInfo.ListPrice.CurrencyCode)
	}
	book.MoodColor = MoodColor(book.Title)
	return book, true
}

// secureURL upgrades upstream http thumbnails; the catalog still serves some
// covers over plain http.
func secureURL(raw string) string {
	return strings.Replace(raw, "http://", "https://", 1)
}
