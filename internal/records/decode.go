package records

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// LineError reports a line that could not be decoded or validated.
type LineError struct {
	Line int // 1-based physical line number
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode reads newline-delimited JSON from r and calls fn for each record in
// order.
//
// Behavior:
//   - Blank (whitespace-only) lines are skipped; line numbers still count them.
//   - A final line without a trailing newline is decoded like any other.
//   - The first undecodable line stops decoding with a *LineError. There is no
//     skip-and-continue mode: a malformed line fails the whole input.
//   - An error returned by fn stops decoding and is returned as-is.
func Decode[T any](ctx context.Context, r io.Reader, fn func(line int, rec T) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("records: read line %d: %w", line+1, readErr)
		}
		if len(raw) > 0 {
			line++
			if line == 1 {
				raw = bytes.TrimPrefix(raw, utf8BOM)
			}
			if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
				var rec T
				if err := json.Unmarshal(trimmed, &rec); err != nil {
					return &LineError{Line: line, Err: err}
				}
				if err := fn(line, rec); err != nil {
					return err
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
	}
}

// DecodeFile runs Decode over the file at path.
func DecodeFile[T any](ctx context.Context, path string, fn func(line int, rec T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(ctx, f, fn)
}
