package sidecar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// DefaultStatConcurrency bounds parallel stat calls in CollectFileRecords.
const DefaultStatConcurrency = 16

// FileRecord is one input to the cache-key digest.
type FileRecord struct {
	Path  string `json:"path"`
	Size  uint64 `json:"size"`
	Mtime uint64 `json:"mtime"`
}

// ComputeDigest hashes the records sorted by path, one "path|size|mtime\n"
// line each, and returns the lowercase hex SHA-256. The input is not
// modified and its order does not affect the result.
func ComputeDigest(records []FileRecord) string {
	sorted := make([]FileRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	line := make([]byte, 0, 256)
	for _, record := range sorted {
		line = append(line[:0], record.Path...)
		line = append(line, '|')
		line = strconv.AppendUint(line, record.Size, 10)
		line = append(line, '|')
		line = strconv.AppendUint(line, record.Mtime, 10)
		line = append(line, '\n')
		h.Write(line)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CollectFileRecords stats paths concurrently. A missing file yields a
// zero size and mtime so deleting a dependency still changes the digest.
// Mtime is in unix milliseconds. Any other stat failure aborts collection.
func CollectFileRecords(ctx context.Context, paths []string, concurrency int) ([]FileRecord, error) {
	if concurrency <= 0 {
		concurrency = DefaultStatConcurrency
	}

	records := make([]FileRecord, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records[i] = FileRecord{Path: path}
			info, err := os.Stat(path)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			records[i].Size = uint64(info.Size())
			records[i].Mtime = uint64(info.ModTime().UnixMilli())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
