package source

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/minsik-app/ingestion/internal/ingest/record"
	"github.com/minsik-app/ingestion/pkg/slug"
)

// Parsers for the three dump record shapes. Dump payloads are messier than
// API responses; every field is decoded tolerantly and a record missing its
// essentials is rejected rather than guessed at.

type dumpAuthorPayload struct {
	Key            string          `json:"key"`
	Name           string          `json:"name"`
	Bio            json.RawMessage `json:"bio"`
	BirthDate      string          `json:"birth_date"`
	DeathDate      string          `json:"death_date"`
	Photos         []int           `json:"photos"`
	RemoteIDs      map[string]any  `json:"remote_ids"`
	Wikipedia      string          `json:"wikipedia"`
	AlternateNames json.RawMessage `json:"alternate_names"`
}

// ParseDumpAuthor decodes one author dump line into a normalized author.
func ParseDumpAuthor(raw json.RawMessage) (*record.Author, bool) {
	var payload dumpAuthorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return nil, false
	}
	name = record.Truncate(name, 300)

	author := &record.Author{
		Name: name,
		Slug: slug.From(name),
		Bio:  textValue(payload.Bio),
	}
	author.BirthDate = optString(payload.BirthDate)
	author.DeathDate = optString(payload.DeathDate)
	author.AlternateNames = firstN(stringList(payload.AlternateNames), 20)

	for _, photoID := range payload.Photos {
		if photoID > 0 {
			photo := olAuthorPhotoURL(photoID)
			author.PhotoURL = &photo
			break
		}
	}

	if olID := keyTail(payload.Key); olID != "" {
		author.OpenLibraryID = &olID
	}

	remoteIDs := make(map[string]string, len(payload.RemoteIDs))
	for key, value := range payload.RemoteIDs {
		if s, ok := value.(string); ok && s != "" {
			remoteIDs[key] = s
		}
	}
	if len(remoteIDs) > 0 {
		author.RemoteIDs = remoteIDs
	}
	if wikidata := remoteIDs["wikidata"]; wikidata != "" {
		author.WikidataID = &wikidata
	}
	if strings.HasPrefix(payload.Wikipedia, "http") {
		author.WikipediaURL = &payload.Wikipedia
	}

	return author, true
}

type dumpWorkPayload struct {
	Key              string          `json:"key"`
	Title            string          `json:"title"`
	Description      json.RawMessage `json:"description"`
	FirstPublishDate string          `json:"first_publish_date"`
	Covers           []int           `json:"covers"`
	Subjects         json.RawMessage `json:"subjects"`
	Authors          []struct {
		Author struct {
			Key string `json:"key"`
		} `json:"author"`
	} `json:"authors"`
}

// DumpWork is one parsed work dump record. Author links arrive as OL IDs;
// the importer resolves them against previously imported authors.
type DumpWork struct {
	Raw        record.Raw
	AuthorOLID []string
}

// ParseDumpWork decodes one work dump line. Works are imported as English
// rows; other languages arrive later through editions.
func ParseDumpWork(raw json.RawMessage) (*DumpWork, bool) {
	var payload dumpWorkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if strings.TrimSpace(payload.Title) == "" {
		return nil, false
	}

	work := &DumpWork{
		Raw: record.Raw{
			Title:       payload.Title,
			Language:    "en",
			Description: textValue(payload.Description),
			Source:      record.SourceOpenLibrary,
		},
	}

	if olID := keyTail(payload.Key); olID != "" {
		work.Raw.OpenLibraryID = &olID
	}
	work.Raw.OriginalPublicationYear = yearFromDate(payload.FirstPublishDate)

	for _, coverID := range payload.Covers {
		if coverID > 0 {
			coverURL := olCoverURL(coverID)
			work.Raw.PrimaryCoverURL = &coverURL
			break
		}
	}

	for _, subject := range firstN(stringList(payload.Subjects), 5) {
		name := strings.ToLower(subject)
		if len(name) > 100 {
			name = name[:100]
		}
		genreSlug := slug.From(name)
		if genreSlug == "" {
			continue
		}
		work.Raw.Genres = append(work.Raw.Genres, record.Genre{Name: name, Slug: genreSlug})
	}

	for _, ref := range payload.Authors {
		if olID := keyTail(ref.Author.Key); olID != "" {
			work.AuthorOLID = append(work.AuthorOLID, olID)
		}
	}

	return work, true
}

type dumpEditionPayload struct {
	Works []struct {
		Key string `json:"key"`
	} `json:"works"`
	Languages      json.RawMessage            `json:"languages"`
	ISBN10         json.RawMessage            `json:"isbn_10"`
	ISBN13         json.RawMessage            `json:"isbn_13"`
	NumberOfPages  int                        `json:"number_of_pages"`
	Publishers     json.RawMessage            `json:"publishers"`
	PhysicalFormat string                     `json:"physical_format"`
	Identifiers    map[string]json.RawMessage `json:"identifiers"`
	Covers         []int                      `json:"covers"`
	Description    json.RawMessage            `json:"description"`
	Series         json.RawMessage            `json:"series"`
}

// DumpEdition is one parsed edition dump record, already scored for the
// per-(work, language) best-of selection.
type DumpEdition struct {
	WorkOLID    string
	Language    string
	ISBN        []string
	Pages       *int
	Publisher   *string
	Format      *string
	ExternalIDs map[string]string
	CoverURL    *string
	Description *string
	Series      *record.Series
	Score       int
}

// olISOByKey maps OL language keys back to ISO codes.
var olISOByKey = func() map[string]string {
	inverted := make(map[string]string, len(olLanguageKeys))
	for iso, key := range olLanguageKeys {
		inverted[key] = iso
	}
	return inverted
}()

// ParseDumpEdition decodes one edition dump line. Editions without a work
// reference are rejected; unknown languages default to English.
func ParseDumpEdition(raw json.RawMessage) (*DumpEdition, bool) {
	var payload dumpEditionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if len(payload.Works) == 0 {
		return nil, false
	}
	workOLID := keyTail(payload.Works[0].Key)
	if workOLID == "" {
		return nil, false
	}

	edition := &DumpEdition{
		WorkOLID:    workOLID,
		Language:    editionLanguage(payload.Languages),
		Description: textValue(payload.Description),
	}

	for _, isbn := range stringList(payload.ISBN10) {
		edition.ISBN = append(edition.ISBN, isbn)
	}
	for _, isbn := range stringList(payload.ISBN13) {
		edition.ISBN = append(edition.ISBN, isbn)
	}

	if payload.NumberOfPages > 0 {
		pages := payload.NumberOfPages
		edition.Pages = &pages
	}

	if publishers := stringList(payload.Publishers); len(publishers) > 0 {
		publisher := record.Truncate(publishers[0], 500)
		edition.Publisher = &publisher
	}

	if format := strings.ToLower(strings.TrimSpace(payload.PhysicalFormat)); format != "" {
		edition.Format = &format
	}

	externalIDs := make(map[string]string, len(payload.Identifiers))
	for key, values := range payload.Identifiers {
		if list := stringList(values); len(list) > 0 {
			externalIDs[key] = list[0]
		}
	}
	if len(externalIDs) > 0 {
		edition.ExternalIDs = externalIDs
	}

	for _, coverID := range payload.Covers {
		if coverID > 0 {
			coverURL := olCoverURL(coverID)
			edition.CoverURL = &coverURL
			break
		}
	}

	for _, s := range stringList(payload.Series) {
		if series := parseSeriesString(s); series != nil {
			edition.Series = series
			break
		}
	}

	edition.Score = scoreEdition(edition)
	return edition, true
}

// scoreEdition counts the completeness signals used to pick the best
// edition per (work, language).
func scoreEdition(e *DumpEdition) int {
	score := 0
	if len(e.ISBN) > 0 {
		score++
	}
	if e.Pages != nil {
		score++
	}
	if e.Publisher != nil {
		score++
	}
	if e.CoverURL != nil {
		score++
	}
	if e.Description != nil {
		score++
	}
	if e.Format != nil {
		score++
	}
	return score
}

// editionLanguage reads the first language reference, tolerating both the
// {"key": "/languages/eng"} and bare string shapes.
func editionLanguage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "en"
	}

	var refs []struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &refs); err == nil && len(refs) > 0 {
		if iso, ok := olISOByKey[keyTail(refs[0].Key)]; ok {
			return iso
		}
		return "en"
	}

	var keys []string
	if err := json.Unmarshal(raw, &keys); err == nil && len(keys) > 0 {
		if iso, ok := olISOByKey[keyTail(keys[0])]; ok {
			return iso
		}
	}
	return "en"
}

// OLIDToInt extracts the numeric part of an Open Library ID like "OL123W".
// Returns -1 when the ID does not follow the pattern.
func OLIDToInt(olID string) int {
	if len(olID) < 3 || olID[:2] != "OL" {
		return -1
	}
	last := olID[len(olID)-1]
	if last < 'A' || last > 'Z' {
		return -1
	}
	num, err := strconv.Atoi(olID[2 : len(olID)-1])
	if err != nil {
		return -1
	}
	return num
}
