package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/pkg/slug"
)

// gbQueries is the rotation of discovery queries an incremental sweep walks.
var gbQueries = []string{
	"science fiction",
	"fantasy novels",
	"mystery thriller",
	"romance",
	"historical fiction",
	"biography",
	"philosophy",
	"psychology",
	"business",
	"technology",
}

// gbMaxResults is the API's hard per-request cap.
const gbMaxResults = 40

// GoogleBooks is the incremental adapter for the Google Books volumes API.
type GoogleBooks struct {
	client        *Client
	baseURL       string
	apiKey        string
	fallbackTotal int64
}

// NewGoogleBooks builds the adapter. apiKey may be empty for anonymous use.
func NewGoogleBooks(client *Client, baseURL, apiKey string, fallbackTotal int64) *GoogleBooks {
	return &GoogleBooks{
		client:        client,
		baseURL:       baseURL,
		apiKey:        apiKey,
		fallbackTotal: fallbackTotal,
	}
}

// Name implements [Incremental].
func (g *GoogleBooks) Name() string { return record.SourceGoogleBooks }

// # Wire types

type gbVolumesResponse struct {
	TotalItems int64      `json:"totalItems"`
	Items      []gbVolume `json:"items"`
}

type gbVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title         string   `json:"title"`
		Authors       []string `json:"authors"`
		Description   string   `json:"description"`
		PublishedDate string   `json:"publishedDate"`
		Publisher     string   `json:"publisher"`
		PageCount     int      `json:"pageCount"`
		Categories    []string `json:"categories"`
		PrintType     string   `json:"printType"`
		ImageLinks    struct {
			ExtraLarge string `json:"extraLarge"`
			Large      string `json:"large"`
			Medium     string `json:"medium"`
			Thumbnail  string `json:"thumbnail"`
		} `json:"imageLinks"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
	} `json:"volumeInfo"`
	AccessInfo struct {
		Epub struct {
			IsAvailable bool `json:"isAvailable"`
		} `json:"epub"`
		PDF struct {
			IsAvailable bool `json:"isAvailable"`
		} `json:"pdf"`
	} `json:"accessInfo"`
}

// # Incremental fetching

// NextBatch walks the query rotation, the cursor advancing by batch size
// like the Open Library adapter so both resume uniformly.
func (g *GoogleBooks) NextBatch(ctx context.Context, cursor int64, batchSize int, language string) ([]record.Raw, int64, bool, error) {
	perQuery := batchSize / len(gbQueries)
	if perQuery < 10 {
		perQuery = 10
	}
	if perQuery > gbMaxResults {
		perQuery = gbMaxResults
	}
	startIndex := cursor / int64(len(gbQueries))

	var records []record.Raw
	for _, query := range gbQueries {
		if len(records) >= batchSize {
			break
		}
		if ctx.Err() != nil {
			return records, cursor, false, ctx.Err()
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("langRestrict", language)
		params.Set("maxResults", strconv.Itoa(perQuery))
		params.Set("startIndex", strconv.FormatInt(startIndex, 10))
		params.Set("orderBy", "relevance")
		if g.apiKey != "" {
			params.Set("key", g.apiKey)
		}

		var page gbVolumesResponse
		if err := g.client.GetJSON(ctx, g.baseURL+"/volumes", params, &page); err != nil {
			return records, cursor, false, err
		}

		for i := range page.Items {
			if len(records) >= batchSize {
				break
			}
			raw, ok := parseVolume(&page.Items[i], language)
			if ok {
				records = append(records, *raw)
			}
		}
	}

	return records, cursor + int64(batchSize), len(records) == 0, nil
}

// parseVolume normalizes one API volume. Volumes without a title are skipped.
func parseVolume(volume *gbVolume, language string) (*record.Raw, bool) {
	info := &volume.VolumeInfo
	if info.Title == "" {
		return nil, false
	}

	raw := &record.Raw{
		Title:       info.Title,
		Language:    language,
		Slug:        slug.From(info.Title),
		Description: optString(info.Description),
		Source:      record.SourceGoogleBooks,
	}

	if volume.ID != "" {
		raw.GoogleBooksID = &volume.ID
	}
	raw.OriginalPublicationYear = yearFromDate(info.PublishedDate)
	if info.PageCount > 0 {
		pages := info.PageCount
		raw.NumberOfPages = &pages
	}
	raw.Publisher = optString(info.Publisher)

	for _, name := range info.Authors {
		raw.Authors = append(raw.Authors, record.Author{Name: name, Slug: slug.From(name)})
	}
	for _, category := range firstN(info.Categories, 5) {
		raw.Genres = append(raw.Genres, record.Genre{Name: category, Slug: slug.From(category)})
	}
	for _, identifier := range info.IndustryIdentifiers {
		if identifier.Type == "ISBN_10" || identifier.Type == "ISBN_13" {
			raw.ISBN = append(raw.ISBN, identifier.Identifier)
		}
	}

	// Prefer the largest available cover rendition.
	links := info.ImageLinks
	cover := links.ExtraLarge
	if cover == "" {
		cover = links.Large
	}
	if cover == "" {
		cover = links.Medium
	}
	if cover == "" {
		cover = links.Thumbnail
	}
	if cover != "" {
		raw.PrimaryCoverURL = &cover

		coverYear := time.Now().Year()
		if raw.OriginalPublicationYear != nil {
			coverYear = *raw.OriginalPublicationYear
		}
		publisher := info.Publisher
		if publisher == "" {
			publisher = "Unknown"
		}
		raw.CoverHistory = []record.CoverVersion{{
			Year:      coverYear,
			CoverURL:  cover,
			Publisher: publisher,
		}}
	}

	// Format detection: digital availability plus print type.
	if volume.AccessInfo.Epub.IsAvailable || volume.AccessInfo.PDF.IsAvailable {
		raw.Formats = append(raw.Formats, "ebook")
	}
	if info.PrintType == "BOOK" || len(raw.Formats) == 0 {
		raw.Formats = append(raw.Formats, "paperback")
	}

	if !raw.Clean() {
		return nil, false
	}
	return raw, true
}

// # Search

// Search implements [Incremental] with an intitle/inauthor query.
func (g *GoogleBooks) Search(ctx context.Context, title, author string, limit int) ([]record.Raw, error) {
	query := fmt.Sprintf("intitle:%s", title)
	if author != "" {
		query += fmt.Sprintf("+inauthor:%s", author)
	}

	if limit > gbMaxResults {
		limit = gbMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(limit))
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}

	var response gbVolumesResponse
	if err := g.client.GetJSON(ctx, g.baseURL+"/volumes", params, &response); err != nil {
		return nil, err
	}

	var records []record.Raw
	for i := range response.Items {
		raw, ok := parseVolume(&response.Items[i], "en")
		if ok {
			records = append(records, *raw)
		}
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

// KnownTotal returns the configured fallback: the volumes API's totalItems
// is an estimate that swings wildly between calls, so it is not usable as a
// coverage denominator.
func (g *GoogleBooks) KnownTotal(_ context.Context, _ string) (int64, error) {
	return g.fallbackTotal, nil
}
