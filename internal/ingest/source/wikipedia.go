package source

import (
	"context"
	"net/url"
	"strings"
)

const wikipediaAPIURL = "https://en.wikipedia.org/w/api.php"

// Wikipedia fetches short plain-text descriptions from the English
// Wikipedia API. Used by the description enricher to backfill books,
// authors, and series the book sources left without one.
type Wikipedia struct {
	client  *Client
	baseURL string
}

// NewWikipedia wires the enrichment source onto the shared HTTP client.
func NewWikipedia(client *Client) *Wikipedia {
	return &Wikipedia{client: client, baseURL: wikipediaAPIURL}
}

type wikipediaSearchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type wikipediaExtractResponse struct {
	Query struct {
		Pages map[string]struct {
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Description searches for searchTerm and returns the intro extract of the
// top hit, or "" when nothing usable was found. Lookup failures are
// reported as errors; an empty result is not an error.
func (w *Wikipedia) Description(ctx context.Context, searchTerm string) (string, error) {
	searchParams := url.Values{}
	searchParams.Set("action", "query")
	searchParams.Set("list", "search")
	searchParams.Set("srsearch", searchTerm)
	searchParams.Set("srlimit", "1")
	searchParams.Set("format", "json")

	var search wikipediaSearchResponse
	if err := w.client.GetJSON(ctx, w.baseURL, searchParams, &search); err != nil {
		return "", err
	}
	if len(search.Query.Search) == 0 {
		return "", nil
	}

	extractParams := url.Values{}
	extractParams.Set("action", "query")
	extractParams.Set("titles", search.Query.Search[0].Title)
	extractParams.Set("prop", "extracts")
	extractParams.Set("exintro", "true")
	extractParams.Set("exsentences", "3")
	extractParams.Set("explaintext", "true")
	extractParams.Set("format", "json")

	var extract wikipediaExtractResponse
	if err := w.client.GetJSON(ctx, w.baseURL, extractParams, &extract); err != nil {
		return "", err
	}

	for _, page := range extract.Query.Pages {
		if text := strings.TrimSpace(page.Extract); text != "" {
			return text, nil
		}
	}
	return "", nil
}
