package dump

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/minsik-app/ingestion/internal/ingest/record"
)

// Phase 2 queries the public Wikidata SPARQL endpoint for nationality,
// birth place, and English Wikipedia article of every author carrying a
// Wikidata ID but no enrichment yet.
const (
	wikidataSPARQLEndpoint = "https://query.wikidata.org/sparql"
	wikidataBatchSize      = 200
	wikidataMaxAuthors     = 100_000
)

// bareQID rejects labels the label service could not resolve.
var bareQID = regexp.MustCompile(`^Q\d+$`)

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

type wikidataFacts struct {
	nationality  *string
	birthPlace   *string
	wikipediaURL *string
}

// runWikidata is phase 2.
func (im *Importer) runWikidata(ctx context.Context, state *State) error {
	ids, err := im.store.WikidataIDsMissingEnrichment(ctx, wikidataMaxAuthors)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	im.logger.Info("dump_wikidata_pending", slog.Int("authors", len(ids)))

	for start := 0; start < len(ids); start += wikidataBatchSize {
		end := start + wikidataBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		facts, err := im.fetchWikidataBatch(ctx, ids[start:end])
		if err != nil {
			// The endpoint throttles aggressively; a failed batch is logged
			// and skipped rather than failing the whole phase.
			im.logger.Warn("dump_wikidata_batch_failed", slog.Any("error", err))
			continue
		}

		for wikidataID, f := range facts {
			updated, err := im.store.EnrichAuthorWikidata(ctx, wikidataID, f.nationality, f.birthPlace, f.wikipediaURL)
			if err != nil {
				return err
			}
			if updated {
				state.Counters.WikidataCount++
			}
		}
		im.saveState(ctx, state)
	}

	return nil
}

func (im *Importer) fetchWikidataBatch(ctx context.Context, ids []string) (map[string]wikidataFacts, error) {
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, "wd:"+id)
	}

	query := "SELECT ?item ?nationalityLabel ?birthPlaceLabel ?article WHERE { " +
		"VALUES ?item { " + strings.Join(values, " ") + " } " +
		"OPTIONAL { ?item wdt:P27 ?nationality } " +
		"OPTIONAL { ?item wdt:P19 ?birthPlace } " +
		"OPTIONAL { ?article schema:about ?item ; schema:isPartOf <https://en.wikipedia.org/> . } " +
		`SERVICE wikibase:label { bd:serviceParam wikibase:language "en" . } }`

	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")

	var response sparqlResponse
	if err := im.client.GetJSON(ctx, wikidataSPARQLEndpoint, params, &response); err != nil {
		return nil, err
	}

	facts := make(map[string]wikidataFacts)
	for _, binding := range response.Results.Bindings {
		itemURI := binding["item"].Value
		wikidataID := itemURI[strings.LastIndex(itemURI, "/")+1:]
		if wikidataID == "" {
			continue
		}

		entry := facts[wikidataID]
		if nationality := binding["nationalityLabel"].Value; entry.nationality == nil &&
			nationality != "" && !bareQID.MatchString(nationality) {
			entry.nationality = clipped(nationality, 200)
		}
		if birthPlace := binding["birthPlaceLabel"].Value; entry.birthPlace == nil &&
			birthPlace != "" && !bareQID.MatchString(birthPlace) {
			entry.birthPlace = clipped(birthPlace, 500)
		}
		if article := binding["article"].Value; entry.wikipediaURL == nil && article != "" {
			entry.wikipediaURL = clipped(article, 1000)
		}
		facts[wikidataID] = entry
	}

	for id, entry := range facts {
		if entry.nationality == nil && entry.birthPlace == nil && entry.wikipediaURL == nil {
			delete(facts, id)
		}
	}
	return facts, nil
}

func clipped(s string, max int) *string {
	s = record.Truncate(s, max)
	return &s
}
