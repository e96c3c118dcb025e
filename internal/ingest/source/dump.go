package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/minsik-app/ingestion/internal/ingest/ingesterr"
	"github.com/minsik-app/ingestion/internal/platform/constants"
)

// Download tuning. Dump files run tens of gigabytes, so interrupted
// transfers resume with a Range header instead of restarting.
const (
	downloadMaxRetries  = 5
	downloadChunkSize   = 64 * 1024
	downloadBackoffBase = 30 * time.Second
	downloadBackoffCap  = 5 * time.Minute
	downloadLogEveryMB  = 100
)

// maxDumpLineSize bounds a single dump line. Some OL records carry huge
// embedded tables; 16 MiB covers the largest observed.
const maxDumpLineSize = 16 * 1024 * 1024

// DumpReader streams records of one type out of a gzip'd Open Library dump
// file (TSV: type, key, revision, timestamp, JSON). The file is never held
// in memory; lines of other types are skipped without decoding.
type DumpReader struct {
	recordType string
	file       *os.File
	gz         *gzip.Reader
	scanner    *bufio.Scanner
}

// OpenDump opens path for streaming records whose first column equals
// recordType (e.g. "/type/author", "/type/work", "/type/edition").
func OpenDump(path, recordType string) (*DumpReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", path, err)
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("dump: gzip %s: %w", path, err)
	}

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 1024*1024), maxDumpLineSize)

	return &DumpReader{
		recordType: recordType,
		file:       file,
		gz:         gz,
		scanner:    scanner,
	}, nil
}

// Close releases the underlying readers.
func (r *DumpReader) Close() error {
	_ = r.gz.Close()
	return r.file.Close()
}

// NextBatch decodes up to batchSize matching records into raw JSON payloads.
// Unparseable lines are skipped. done is true once the file is exhausted.
func (r *DumpReader) NextBatch(ctx context.Context, batchSize int) (batch []json.RawMessage, done bool, err error) {
	for r.scanner.Scan() {
		if len(batch) >= batchSize {
			return batch, false, nil
		}
		if err := ctx.Err(); err != nil {
			return batch, false, err
		}

		line := r.scanner.Text()
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) != 5 || parts[0] != r.recordType {
			continue
		}
		if !json.Valid([]byte(parts[4])) {
			continue
		}
		batch = append(batch, json.RawMessage(parts[4]))
		if len(batch) >= batchSize {
			return batch, false, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return batch, false, ingesterr.MalformedRecord("dump.scan", err)
	}
	return batch, true, nil
}

// DownloadDump fetches url into destPath, resuming partial transfers with
// Range requests and backing off exponentially between attempts.
func DownloadDump(ctx context.Context, logger *slog.Logger, url, destPath string) error {
	client := &http.Client{}

	var downloaded int64
	if info, err := os.Stat(destPath); err == nil {
		downloaded = info.Size()
	}

	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("dump: build download request: %w", err)
		}
		request.Header.Set("User-Agent", constants.UserAgent)

		mode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if downloaded > 0 {
			request.Header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
			mode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			logger.Info("dump_download_resuming",
				slog.Int64("downloaded_mb", downloaded/(1024*1024)),
				slog.Int("attempt", attempt),
			)
		}

		response, err := client.Do(request)
		if err == nil {
			switch {
			case response.StatusCode == http.StatusRequestedRangeNotSatisfiable:
				// The file is already complete.
				closeBody(response)
				return nil

			case response.StatusCode == http.StatusOK || response.StatusCode == http.StatusPartialContent:
				written, copyErr := copyToFile(logger, destPath, mode, response.Body)
				closeBody(response)
				downloaded += written
				if copyErr == nil {
					logger.Info("dump_download_complete",
						slog.String("path", destPath),
						slog.Int64("size_mb", downloaded/(1024*1024)),
					)
					return nil
				}
				err = copyErr

			default:
				closeBody(response)
				err = fmt.Errorf("unexpected status %d", response.StatusCode)
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == downloadMaxRetries {
			return ingesterr.SourceUnavailable("dump.download", err)
		}

		backoff := downloadBackoffBase << (attempt - 1)
		if backoff > downloadBackoffCap {
			backoff = downloadBackoffCap
		}
		logger.Warn("dump_download_interrupted",
			slog.Any("error", err),
			slog.Int64("downloaded_mb", downloaded/(1024*1024)),
			slog.Duration("retry_in", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return ingesterr.SourceUnavailable("dump.download", fmt.Errorf("retries exhausted for %s", url))
}

// copyToFile streams the body to disk, logging progress every 100 MB.
func copyToFile(logger *slog.Logger, path string, mode int, body io.Reader) (int64, error) {
	file, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return 0, fmt.Errorf("dump: open dest: %w", err)
	}
	defer func() { _ = file.Close() }()

	var written, lastLoggedMB int64
	buf := make([]byte, downloadChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)

			if mb := written / (1024 * 1024); mb-lastLoggedMB >= downloadLogEveryMB {
				lastLoggedMB = mb
				logger.Info("dump_download_progress", slog.Int64("downloaded_mb", mb))
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
