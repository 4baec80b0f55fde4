package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/rudywasfound/pravaha/pkg/telemetry"
)

const maxReplayLine = 1 << 20

// Replay reads newline-delimited JSON measurements from a recorded
// stream. Blank lines are skipped; a malformed line fails the run with
// its line number rather than being silently dropped.
type Replay struct {
	scanner *bufio.Scanner
	line    int
}

// NewReplay wraps a reader producing one JSON measurement per line.
func NewReplay(r io.Reader) *Replay {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	return &Replay{scanner: sc}
}

// Next returns the next recorded measurement, or io.EOF at the end of
// the stream.
func (r *Replay) Next(ctx context.Context) (*telemetry.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		m, err := telemetry.DecodeMeasurement(raw)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", r.line, err)
		}
		return m, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
