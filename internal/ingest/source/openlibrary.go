package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/pkg/slug"
)

// olSubjects is the rotation of subject feeds an incremental sweep walks.
// Spreading a batch across subjects keeps single-genre floods out of the
// catalog.
var olSubjects = []string{
	"science_fiction",
	"fantasy",
	"mystery",
	"thriller",
	"romance",
	"historical_fiction",
	"biography",
	"history",
	"philosophy",
	"psychology",
}

// olCoverURL renders the covers.openlibrary.org URL for a cover ID.
func olCoverURL(coverID int) string {
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", coverID)
}

func olAuthorPhotoURL(photoID int) string {
	return fmt.Sprintf("https://covers.openlibrary.org/a/id/%d-L.jpg", photoID)
}

// olLanguageKeys maps ISO 639-1 codes to Open Library's 639-2 search keys.
var olLanguageKeys = map[string]string{
	"en": "eng", "fr": "fre", "de": "ger", "es": "spa", "it": "ita",
	"pt": "por", "ru": "rus", "ja": "jpn", "zh": "chi", "ko": "kor",
}

// OpenLibrary is the incremental adapter for openlibrary.org.
type OpenLibrary struct {
	client        *Client
	baseURL       string
	fallbackTotal int64
}

// NewOpenLibrary builds the adapter.
func NewOpenLibrary(client *Client, baseURL string, fallbackTotal int64) *OpenLibrary {
	return &OpenLibrary{
		client:        client,
		baseURL:       strings.TrimRight(baseURL, "/"),
		fallbackTotal: fallbackTotal,
	}
}

// Name implements [Incremental].
func (o *OpenLibrary) Name() string { return record.SourceOpenLibrary }

// # Wire types

type olSubjectResponse struct {
	Works []olSubjectWork `json:"works"`
}

type olSubjectWork struct {
	Key     string `json:"key"`
	Title   string `json:"title"`
	CoverID *int   `json:"cover_id"`
	Authors []struct {
		Key string `json:"key"`
	} `json:"authors"`
}

type olWork struct {
	Title            string          `json:"title"`
	Description      json.RawMessage `json:"description"`
	FirstPublishDate string          `json:"first_publish_date"`
	Covers           []int           `json:"covers"`
	Subjects         []string        `json:"subjects"`
}

type olAuthorDetail struct {
	Name           string          `json:"name"`
	Bio            json.RawMessage `json:"bio"`
	BirthDate      string          `json:"birth_date"`
	DeathDate      string          `json:"death_date"`
	Photos         []int           `json:"photos"`
	RemoteIDs      map[string]any  `json:"remote_ids"`
	AlternateNames json.RawMessage `json:"alternate_names"`
	Wikipedia      string          `json:"wikipedia"`
}

type olEditionsResponse struct {
	Entries []olEdition `json:"entries"`
}

type olEdition struct {
	PhysicalFormat string              `json:"physical_format"`
	Covers         []int               `json:"covers"`
	Publishers     []string            `json:"publishers"`
	Series         []string            `json:"series"`
	ISBN10         []string            `json:"isbn_10"`
	ISBN13         []string            `json:"isbn_13"`
	NumberOfPages  *int                `json:"number_of_pages"`
	Identifiers    map[string][]string `json:"identifiers"`
	PublishDate    string              `json:"publish_date"`
}

type olSearchResponse struct {
	NumFound int64         `json:"numFound"`
	Docs     []olSearchDoc `json:"docs"`
}

type olSearchDoc struct {
	Key                 string   `json:"key"`
	Title               string   `json:"title"`
	AuthorName          []string `json:"author_name"`
	ISBN                []string `json:"isbn"`
	CoverI              *int     `json:"cover_i"`
	FirstPublishYear    *int     `json:"first_publish_year"`
	NumberOfPagesMedian *int     `json:"number_of_pages_median"`
	Publisher           []string `json:"publisher"`
	Subject             []string `json:"subject"`
	Language            []string `json:"language"`
}

// # Incremental fetching

// NextBatch walks the subject rotation, parsing up to batchSize works.
func (o *OpenLibrary) NextBatch(ctx context.Context, cursor int64, batchSize int, language string) ([]record.Raw, int64, bool, error) {
	perSubject := batchSize / len(olSubjects)
	if perSubject < 10 {
		perSubject = 10
	}
	subjectOffset := cursor / int64(len(olSubjects))

	var records []record.Raw
	for _, subject := range olSubjects {
		if len(records) >= batchSize {
			break
		}
		if ctx.Err() != nil {
			return records, cursor, false, ctx.Err()
		}

		params := url.Values{}
		params.Set("limit", strconv.Itoa(perSubject))
		params.Set("offset", strconv.FormatInt(subjectOffset, 10))

		var page olSubjectResponse
		if err := o.client.GetJSON(ctx, o.baseURL+"/subjects/"+subject+".json", params, &page); err != nil {
			return records, cursor, false, err
		}

		for i := range page.Works {
			if len(records) >= batchSize {
				break
			}
			raw, ok := o.parseWork(ctx, &page.Works[i], language)
			if ok {
				records = append(records, *raw)
			}
		}
	}

	if len(records) > batchSize {
		records = records[:batchSize]
	}
	return records, cursor + int64(batchSize), len(records) == 0, nil
}

// parseWork resolves one subject entry into a normalized record, fetching
// the work, author, and edition details. Unusable works are skipped.
func (o *OpenLibrary) parseWork(ctx context.Context, entry *olSubjectWork, language string) (*record.Raw, bool) {
	if entry.Key == "" {
		return nil, false
	}

	var work olWork
	if err := o.client.GetJSON(ctx, o.baseURL+entry.Key+".json", nil, &work); err != nil {
		return nil, false
	}

	title := work.Title
	if title == "" {
		title = entry.Title
	}
	if title == "" {
		return nil, false
	}

	raw := &record.Raw{
		Title:       title,
		Language:    language,
		Slug:        slug.From(title),
		Description: textValue(work.Description),
		Source:      record.SourceOpenLibrary,
	}

	workID := keyTail(entry.Key)
	raw.OpenLibraryID = &workID
	raw.OriginalPublicationYear = yearFromDate(work.FirstPublishDate)

	for _, ref := range entry.Authors {
		if ref.Key == "" {
			continue
		}
		author, ok := o.fetchAuthor(ctx, ref.Key)
		if ok {
			raw.Authors = append(raw.Authors, *author)
		}
	}

	coverID := entry.CoverID
	if coverID == nil && len(work.Covers) > 0 {
		coverID = &work.Covers[0]
	}
	if coverID != nil {
		coverURL := olCoverURL(*coverID)
		raw.PrimaryCoverURL = &coverURL
	}

	for _, subject := range firstN(work.Subjects, 5) {
		raw.Genres = append(raw.Genres, record.Genre{Name: subject, Slug: slug.From(subject)})
	}

	editions := o.fetchEditions(ctx, entry.Key)
	raw.Series = seriesFromEditions(editions)
	applyBestEdition(raw, editions, coverID, raw.OriginalPublicationYear)

	if !raw.Clean() {
		return nil, false
	}
	return raw, true
}

// fetchAuthor resolves an /authors/OL...A key into a record author.
func (o *OpenLibrary) fetchAuthor(ctx context.Context, key string) (*record.Author, bool) {
	var detail olAuthorDetail
	if err := o.client.GetJSON(ctx, o.baseURL+key+".json", nil, &detail); err != nil {
		return nil, false
	}
	if detail.Name == "" {
		return nil, false
	}

	author := &record.Author{
		Name: detail.Name,
		Slug: slug.From(detail.Name),
		Bio:  textValue(detail.Bio),
	}

	olID := keyTail(key)
	author.OpenLibraryID = &olID
	author.BirthDate = optString(detail.BirthDate)
	author.DeathDate = optString(detail.DeathDate)
	author.AlternateNames = firstN(stringList(detail.AlternateNames), 20)

	if len(detail.Photos) > 0 && detail.Photos[0] > 0 {
		photo := olAuthorPhotoURL(detail.Photos[0])
		author.PhotoURL = &photo
	}

	remoteIDs := map[string]string{}
	for k, v := range detail.RemoteIDs {
		if s, ok := v.(string); ok && s != "" {
			remoteIDs[k] = s
		}
	}
	if len(remoteIDs) > 0 {
		author.RemoteIDs = remoteIDs
	}
	if wikidata, ok := remoteIDs["wikidata"]; ok {
		author.WikidataID = &wikidata
	}
	if strings.HasPrefix(detail.Wikipedia, "http") {
		author.WikipediaURL = &detail.Wikipedia
	}

	return author, true
}

func (o *OpenLibrary) fetchEditions(ctx context.Context, workKey string) []olEdition {
	params := url.Values{}
	params.Set("limit", "10")

	var response olEditionsResponse
	if err := o.client.GetJSON(ctx, o.baseURL+workKey+"/editions.json", params, &response); err != nil {
		return nil
	}
	return response.Entries
}

// # Search

// Search implements [Incremental] via the /search.json endpoint.
func (o *OpenLibrary) Search(ctx context.Context, title, author string, limit int) ([]record.Raw, error) {
	params := url.Values{}
	params.Set("title", title)
	params.Set("author", author)
	params.Set("limit", strconv.Itoa(limit))

	var response olSearchResponse
	if err := o.client.GetJSON(ctx, o.baseURL+"/search.json", params, &response); err != nil {
		return nil, err
	}

	var records []record.Raw
	for i := range response.Docs {
		doc := &response.Docs[i]
		if doc.Key == "" || doc.Title == "" {
			continue
		}

		language := "en"
		if len(doc.Language) > 0 {
			language = doc.Language[0]
		}

		raw := record.Raw{
			Title:    doc.Title,
			Language: language,
			ISBN:     firstN(doc.ISBN, 5),
			Source:   record.SourceOpenLibrary,
		}

		workID := keyTail(doc.Key)
		raw.OpenLibraryID = &workID
		raw.OriginalPublicationYear = doc.FirstPublishYear
		raw.NumberOfPages = doc.NumberOfPagesMedian

		if doc.CoverI != nil {
			coverURL := olCoverURL(*doc.CoverI)
			raw.PrimaryCoverURL = &coverURL
		}
		if len(doc.Publisher) > 0 {
			raw.Publisher = &doc.Publisher[0]
		}
		for _, name := range doc.AuthorName {
			raw.Authors = append(raw.Authors, record.Author{Name: name, Slug: slug.From(name)})
		}
		for _, subject := range firstN(doc.Subject, 5) {
			raw.Genres = append(raw.Genres, record.Genre{Name: subject, Slug: slug.From(subject)})
		}

		if raw.Clean() {
			records = append(records, raw)
		}
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

// KnownTotal asks the search index how many works exist for a language.
func (o *OpenLibrary) KnownTotal(ctx context.Context, language string) (int64, error) {
	key, ok := olLanguageKeys[language]
	if !ok {
		return o.fallbackTotal, nil
	}

	params := url.Values{}
	params.Set("q", "language:"+key)
	params.Set("limit", "0")

	var response olSearchResponse
	if err := o.client.GetJSON(ctx, o.baseURL+"/search.json", params, &response); err != nil {
		return o.fallbackTotal, err
	}
	if response.NumFound <= 0 {
		return o.fallbackTotal, nil
	}
	return response.NumFound, nil
}

// # Edition helpers

// seriesFromEditions returns the first parseable series membership.
func seriesFromEditions(editions []olEdition) *record.Series {
	for i := range editions {
		for _, s := range editions[i].Series {
			if parsed := parseSeriesString(s); parsed != nil {
				return parsed
			}
		}
	}
	return nil
}

// parseSeriesString splits strings like "Discworld #14" into name and
// position. A bare name yields a series without position.
func parseSeriesString(s string) *record.Series {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	name := s
	var position *float64
	if idx := strings.Index(s, "#"); idx >= 0 {
		name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s[:idx]), ","))
		positionText := strings.TrimSpace(s[idx+1:])
		if fields := strings.Fields(positionText); len(fields) > 0 {
			if value, err := strconv.ParseFloat(fields[0], 64); err == nil {
				position = &value
			}
		}
	}
	if name == "" {
		return nil
	}

	return &record.Series{Name: name, Slug: slug.From(name), Position: position}
}

// applyBestEdition scores editions by metadata completeness (ISBNs, pages,
// publisher, cover) and copies the winner's fields onto the record, along
// with the union of all edition ISBNs, formats, and the cover history.
func applyBestEdition(raw *record.Raw, editions []olEdition, primaryCoverID *int, year *int) {
	formats := map[string]bool{}
	seenISBN := map[string]bool{}
	var allISBNs []string

	bestScore := -1
	var best *olEdition

	for i := range editions {
		edition := &editions[i]
		score := 0

		for _, isbn := range append(edition.ISBN10, edition.ISBN13...) {
			if isbn != "" && !seenISBN[isbn] {
				seenISBN[isbn] = true
				allISBNs = append(allISBNs, isbn)
			}
			if isbn != "" {
				score++
			}
		}
		if edition.NumberOfPages != nil && *edition.NumberOfPages > 0 {
			score++
		}
		if len(edition.Publishers) > 0 {
			score++
		}
		if len(edition.Covers) > 0 {
			score++
		}

		if score > bestScore {
			bestScore = score
			best = edition
		}

		switch format := strings.ToLower(edition.PhysicalFormat); {
		case strings.Contains(format, "hardcover"):
			formats["hardcover"] = true
		case strings.Contains(format, "paperback"), strings.Contains(format, "softcover"):
			formats["paperback"] = true
		case strings.Contains(format, "ebook"), strings.Contains(format, "kindle"):
			formats["ebook"] = true
		case strings.Contains(format, "audio"):
			formats["audiobook"] = true
		}
	}

	raw.ISBN = firstN(allISBNs, 20)

	for format := range formats {
		raw.Formats = append(raw.Formats, format)
	}
	if len(raw.Formats) == 0 {
		raw.Formats = []string{"paperback"}
	}

	raw.CoverHistory = coverHistoryFromEditions(editions, primaryCoverID, year)

	if best != nil {
		if best.NumberOfPages != nil && *best.NumberOfPages > 0 {
			raw.NumberOfPages = best.NumberOfPages
		}
		if len(best.Publishers) > 0 {
			raw.Publisher = &best.Publishers[0]
		}
		externalIDs := map[string]string{}
		for key, values := range best.Identifiers {
			if len(values) > 0 && values[0] != "" {
				externalIDs[key] = values[0]
			}
		}
		if len(externalIDs) > 0 {
			raw.ExternalIDs = externalIDs
		}
	}
}

// coverHistoryFromEditions assembles the chronological cover list.
func coverHistoryFromEditions(editions []olEdition, primaryCoverID *int, year *int) []record.CoverVersion {
	var history []record.CoverVersion

	if primaryCoverID != nil {
		coverYear := time.Now().Year()
		if year != nil {
			coverYear = *year
		}
		history = append(history, record.CoverVersion{
			Year:      coverYear,
			CoverURL:  olCoverURL(*primaryCoverID),
			Publisher: "Unknown",
		})
	}

	for i := range firstN(editions, 5) {
		edition := &editions[i]
		if len(edition.Covers) == 0 || edition.Covers[0] <= 0 {
			continue
		}
		coverYear := time.Now().Year()
		if y := yearFromDate(edition.PublishDate); y != nil {
			coverYear = *y
		}
		publisher := "Unknown"
		if len(edition.Publishers) > 0 {
			publisher = strings.Join(edition.Publishers, ", ")
		}
		history = append(history, record.CoverVersion{
			Year:      coverYear,
			CoverURL:  olCoverURL(edition.Covers[0]),
			Publisher: publisher,
		})
	}

	sortCoverHistory(history)
	return history
}

// # Decoding helpers

// textValue reads Open Library's string-or-{"value": string} shape.
func textValue(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return optString(direct)
	}

	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return optString(wrapped.Value)
	}
	return nil
}

// stringList tolerantly decodes a JSON array, keeping only strings.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// yearFromDate extracts a leading 4-digit year from a free-form date.
func yearFromDate(date string) *int {
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return nil
	}
	return &year
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func keyTail(key string) string {
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func firstN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// sortCoverHistory orders covers chronologically, oldest first.
func sortCoverHistory(history []record.CoverVersion) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Year < history[j].Year
	})
}
