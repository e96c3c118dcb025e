package source

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDumpFixture(t *testing.T, lines []string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dump.txt.gz")
	file, err := os.Create(path)
	require.NoError(t, err)

	gz := gzip.NewWriter(file)
	for _, line := range lines {
		_, err := gz.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, file.Close())
	return path
}

func TestDumpReader_FiltersByRecordType(t *testing.T) {
	path := writeDumpFixture(t, []string{
		"/type/author\t/authors/OL1A\t3\t2024-01-01T00:00:00\t{\"name\":\"Ursula K. Le Guin\"}",
		"/type/work\t/works/OL2W\t1\t2024-01-01T00:00:00\t{\"title\":\"The Dispossessed\"}",
		"/type/author\t/authors/OL3A\t2\t2024-01-01T00:00:00\t{\"name\":\"Stanislaw Lem\"}",
	})

	reader, err := OpenDump(path, "/type/author")
	require.NoError(t, err)
	defer reader.Close()

	batch, done, err := reader.NextBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, batch, 2)
	assert.JSONEq(t, `{"name":"Ursula K. Le Guin"}`, string(batch[0]))
	assert.JSONEq(t, `{"name":"Stanislaw Lem"}`, string(batch[1]))
}

func TestDumpReader_SkipsMalformedLines(t *testing.T) {
	path := writeDumpFixture(t, []string{
		"/type/work\ttoo\tfew\tcolumns",
		"/type/work\t/works/OL1W\t1\t2024-01-01T00:00:00\tnot-json",
		"/type/work\t/works/OL2W\t1\t2024-01-01T00:00:00\t{\"title\":\"Solaris\"}",
	})

	reader, err := OpenDump(path, "/type/work")
	require.NoError(t, err)
	defer reader.Close()

	batch, done, err := reader.NextBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, batch, 1)
	assert.JSONEq(t, `{"title":"Solaris"}`, string(batch[0]))
}

func TestDumpReader_BatchesAndResumes(t *testing.T) {
	lines := make([]string, 0, 5)
	for _, payload := range []string{
		`{"title":"a"}`, `{"title":"b"}`, `{"title":"c"}`, `{"title":"d"}`, `{"title":"e"}`,
	} {
		lines = append(lines, "/type/edition\t/books/OL1M\t1\t2024-01-01T00:00:00\t"+payload)
	}
	path := writeDumpFixture(t, lines)

	reader, err := OpenDump(path, "/type/edition")
	require.NoError(t, err)
	defer reader.Close()

	first, done, err := reader.NextBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, first, 2)

	second, done, err := reader.NextBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Len(t, second, 2)

	third, done, err := reader.NextBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, third, 1)
}

func TestOpenDump_RejectsNonGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	_, err := OpenDump(path, "/type/author")
	assert.Error(t, err)
}
