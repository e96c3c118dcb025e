package source

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDumpAuthor(t *testing.T) {
	payload := json.RawMessage(`{
		"key": "/authors/OL9A",
		"name": "Frank Herbert",
		"bio": {"type": "/type/text", "value": "American author."},
		"birth_date": "8 October 1920",
		"death_date": "11 February 1986",
		"photos": [-1, 12345],
		"remote_ids": {"wikidata": "Q101243", "viaf": "56613143", "bad": 7},
		"wikipedia": "https://en.wikipedia.org/wiki/Frank_Herbert",
		"alternate_names": ["Frank Patrick Herbert"]
	}`)

	author, ok := ParseDumpAuthor(payload)
	require.True(t, ok)
	assert.Equal(t, "Frank Herbert", author.Name)
	assert.Equal(t, "frank-herbert", author.Slug)
	require.NotNil(t, author.Bio)
	assert.Equal(t, "American author.", *author.Bio)
	require.NotNil(t, author.OpenLibraryID)
	assert.Equal(t, "OL9A", *author.OpenLibraryID)
	require.NotNil(t, author.WikidataID)
	assert.Equal(t, "Q101243", *author.WikidataID)
	assert.Equal(t, map[string]string{"wikidata": "Q101243", "viaf": "56613143"}, author.RemoteIDs)
	require.NotNil(t, author.PhotoURL)
	assert.Contains(t, *author.PhotoURL, "12345")
	assert.Equal(t, []string{"Frank Patrick Herbert"}, author.AlternateNames)
}

func TestParseDumpAuthor_RejectsNameless(t *testing.T) {
	_, ok := ParseDumpAuthor(json.RawMessage(`{"key": "/authors/OL1A"}`))
	assert.False(t, ok)
}

func TestParseDumpWork(t *testing.T) {
	payload := json.RawMessage(`{
		"key": "/works/OL123W",
		"title": "Dune",
		"description": "A desert planet...",
		"first_publish_date": "1965",
		"covers": [240727],
		"subjects": ["Science Fiction", "Politics", 42],
		"authors": [{"author": {"key": "/authors/OL9A"}}]
	}`)

	work, ok := ParseDumpWork(payload)
	require.True(t, ok)
	assert.Equal(t, "Dune", work.Raw.Title)
	assert.Equal(t, "en", work.Raw.Language)
	require.NotNil(t, work.Raw.OpenLibraryID)
	assert.Equal(t, "OL123W", *work.Raw.OpenLibraryID)
	require.NotNil(t, work.Raw.OriginalPublicationYear)
	assert.Equal(t, 1965, *work.Raw.OriginalPublicationYear)
	require.NotNil(t, work.Raw.PrimaryCoverURL)
	assert.Contains(t, *work.Raw.PrimaryCoverURL, "240727")
	require.Len(t, work.Raw.Genres, 2)
	assert.Equal(t, "science fiction", work.Raw.Genres[0].Name)
	assert.Equal(t, []string{"OL9A"}, work.AuthorOLID)
}

func TestParseDumpWork_RejectsUntitled(t *testing.T) {
	_, ok := ParseDumpWork(json.RawMessage(`{"key": "/works/OL1W"}`))
	assert.False(t, ok)
}

func TestParseDumpEdition(t *testing.T) {
	payload := json.RawMessage(`{
		"works": [{"key": "/works/OL123W"}],
		"languages": [{"key": "/languages/fre"}],
		"isbn_10": ["2266020528"],
		"isbn_13": ["9782266020527"],
		"number_of_pages": 412,
		"publishers": ["Pocket"],
		"physical_format": "Paperback",
		"identifiers": {"goodreads": ["53732"]},
		"covers": [998877],
		"series": ["Dune #1"]
	}`)

	edition, ok := ParseDumpEdition(payload)
	require.True(t, ok)
	assert.Equal(t, "OL123W", edition.WorkOLID)
	assert.Equal(t, "fr", edition.Language)
	assert.Equal(t, []string{"2266020528", "9782266020527"}, edition.ISBN)
	require.NotNil(t, edition.Pages)
	assert.Equal(t, 412, *edition.Pages)
	require.NotNil(t, edition.Publisher)
	assert.Equal(t, "Pocket", *edition.Publisher)
	require.NotNil(t, edition.Format)
	assert.Equal(t, "paperback", *edition.Format)
	assert.Equal(t, map[string]string{"goodreads": "53732"}, edition.ExternalIDs)
	require.NotNil(t, edition.Series)
	assert.Equal(t, "Dune", edition.Series.Name)
	require.NotNil(t, edition.Series.Position)
	assert.Equal(t, float64(1), *edition.Series.Position)
	// isbn + pages + publisher + cover + format (no description).
	assert.Equal(t, 5, edition.Score)
}

func TestParseDumpEdition_RejectsWorklessAndDefaultsLanguage(t *testing.T) {
	_, ok := ParseDumpEdition(json.RawMessage(`{"isbn_10": ["2266020528"]}`))
	assert.False(t, ok)

	edition, ok := ParseDumpEdition(json.RawMessage(`{"works": [{"key": "/works/OL5W"}]}`))
	require.True(t, ok)
	assert.Equal(t, "en", edition.Language)
	assert.Equal(t, 0, edition.Score)
}

func TestOLIDToInt(t *testing.T) {
	assert.Equal(t, 123, OLIDToInt("OL123W"))
	assert.Equal(t, 9, OLIDToInt("OL9A"))
	assert.Equal(t, -1, OLIDToInt("OL"))
	assert.Equal(t, -1, OLIDToInt("OL123"))
	assert.Equal(t, -1, OLIDToInt("123W"))
	assert.Equal(t, -1, OLIDToInt("OLxyzW"))
}
