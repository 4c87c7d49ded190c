package logstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// ArchivePrefix is the object key prefix of daily archives.
const ArchivePrefix = "logs/"

// archiveBatch is how many rows one archive query reads.
const archiveBatch = 5000

// CSVHeader is the first line of every CSV export.
var CSVHeader = []string{"timestamp", "level", "message"}

// WriteCSV writes entries as CSV with CSVHeader.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Level,
			e.Message,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Uploader stores an archive object.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// ArchiveResult describes one archive run.
type ArchiveResult struct {
	Key     string
	Entries int
	Bytes   int
}

// ArchiveKey returns the object key for day's archive.
func ArchiveKey(day time.Time, id string) string {
	return fmt.Sprintf("%s%s/%s.jsonl.zst", ArchivePrefix, day.UTC().Format("2006/01/02"), id)
}

// Archive exports every entry of the UTC day containing day as zstd
// compressed JSON lines and uploads it. A day without entries uploads
// nothing and returns a zero result.
func (s *Store) Archive(ctx context.Context, up Uploader, day time.Time) (ArchiveResult, error) {
	d := day.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: create encoder: %w", err)
	}
	jw := json.NewEncoder(enc)

	total := 0
	since := start
	var lastID int64
	for {
		batch, err := s.Query(ctx, Filter{
			Level:       LevelTrace,
			Limit:       archiveBatch,
			Since:       since,
			Until:       end,
			IncludeMeta: true,
			Oldest:      true,
		})
		if err != nil {
			_ = enc.Close()
			return ArchiveResult{}, fmt.Errorf("archive: %w", err)
		}
		written := 0
		for _, e := range batch {
			// Rows sharing the boundary millisecond are returned again.
			if !e.Timestamp.After(since) && e.ID <= lastID {
				continue
			}
			if err := jw.Encode(e); err != nil {
				_ = enc.Close()
				return ArchiveResult{}, fmt.Errorf("archive: encode entry %d: %w", e.ID, err)
			}
			written++
		}
		total += written
		if len(batch) < archiveBatch || written == 0 {
			break
		}
		last := batch[len(batch)-1]
		since, lastID = last.Timestamp, last.ID
	}
	if err := enc.Close(); err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: flush encoder: %w", err)
	}
	if total == 0 {
		return ArchiveResult{}, nil
	}

	key := ArchiveKey(start, uuid.NewString())
	size := buf.Len()
	if _, err := up.Upload(ctx, key, bytes.NewReader(buf.Bytes()), "application/zstd"); err != nil {
		return ArchiveResult{}, fmt.Errorf("archive: upload: %w", err)
	}
	return ArchiveResult{Key: key, Entries: total, Bytes: size}, nil
}
