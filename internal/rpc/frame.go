package rpc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	jsonx "fastmd/internal/shared/json"
)

// FrameReader reads newline-delimited frames. Lines have no length limit.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next non-blank frame without its line terminator. It
// returns io.EOF once the input is exhausted. A final frame without a
// trailing newline is still returned.
func (fr *FrameReader) Next() ([]byte, error) {
	for {
		line, err := fr.r.ReadBytes('\n')
		frame := bytes.TrimSpace(line)
		if len(frame) > 0 {
			return frame, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}
}

// FrameWriter writes one JSON document per line and flushes after each so
// the host sees every response immediately. Safe for concurrent use.
type FrameWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: bufio.NewWriter(w)}
}

// WriteFrame encodes v and writes it followed by a newline.
func (fw *FrameWriter) WriteFrame(v any) error {
	data, err := jsonx.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := fw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}
