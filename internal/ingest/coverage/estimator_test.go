package coverage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minsik-app/ingestion/internal/catalog"
)

type fakeCounts struct {
	catalog.Store

	books   int64
	authors int64
	series  int64
	calls   int
}

func (f *fakeCounts) CountBooks(_ context.Context, _ string) (int64, error) {
	f.calls++
	return f.books, nil
}

func (f *fakeCounts) CountAuthors(_ context.Context) (int64, error) { return f.authors, nil }
func (f *fakeCounts) CountSeries(_ context.Context) (int64, error)  { return f.series, nil }

type fakeKnownTotal struct {
	total int64
}

func (f *fakeKnownTotal) KnownTotal(_ context.Context, _ string) (int64, error) {
	return f.total, nil
}

type memCache struct {
	values map[string]string
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := c.values[key]
	return value, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	return nil
}

func newEstimator(store *fakeCounts, total int64) *Estimator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, &fakeKnownTotal{total: total}, &memCache{}, 10*time.Minute, logger)
}

func TestEstimator_ComputesPercent(t *testing.T) {
	store := &fakeCounts{books: 250_000, authors: 80_000, series: 4_000}
	estimator := newEstimator(store, 10_000_000)

	report, err := estimator.Estimate(context.Background(), "en")
	require.NoError(t, err)

	assert.Equal(t, int64(250_000), report.DBBooksCount)
	assert.Equal(t, int64(80_000), report.DBAuthorsCount)
	assert.Equal(t, int64(4_000), report.DBSeriesCount)
	assert.Equal(t, int64(10_000_000), report.SourceKnownTotal)
	assert.InDelta(t, 2.5, report.CoveragePercent, 0.001)
	assert.False(t, report.Cached)
}

func TestEstimator_SecondCallServedFromCache(t *testing.T) {
	store := &fakeCounts{books: 100}
	estimator := newEstimator(store, 1_000)

	first, err := estimator.Estimate(context.Background(), "en")
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := estimator.Estimate(context.Background(), "en")
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.CoveragePercent, second.CoveragePercent)
	assert.Equal(t, 1, store.calls, "count queries run once")
}

func TestEstimator_ZeroKnownTotal(t *testing.T) {
	store := &fakeCounts{books: 100}
	estimator := newEstimator(store, 0)

	report, err := estimator.Estimate(context.Background(), "en")
	require.NoError(t, err)
	assert.Zero(t, report.CoveragePercent)
}
