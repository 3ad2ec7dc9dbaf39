package remote

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// TraceDirection classifies a trace record.
type TraceDirection uint8

const (
	TraceIn TraceDirection = iota
	TraceOut
	TraceState
)

// String returns a short direction label.
func (d TraceDirection) String() string {
	switch d {
	case TraceIn:
		return "IN"
	case TraceOut:
		return "OUT"
	case TraceState:
		return "STATE"
	default:
		return "UNKNOWN"
	}
}

// TraceRecord is one captured protocol event. For frames Text holds the
// frame; for state changes it holds "old->new".
type TraceRecord struct {
	Time      time.Time      `cbor:"1,keyasint"`
	Direction TraceDirection `cbor:"2,keyasint"`
	Attempt   string         `cbor:"3,keyasint,omitempty"`
	Text      string         `cbor:"4,keyasint"`
}

// Tracer captures protocol events. Implementations must be safe for
// concurrent use; frames are traced from transport goroutines.
type Tracer interface {
	Trace(rec TraceRecord)
}

// CBORTracer writes records as a stream of CBOR items.
type CBORTracer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	closer io.Closer
	err    error
}

// traceEncMode keeps sub-second timestamps; the default mode truncates to seconds.
var traceEncMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

// NewCBORTracer writes records to w.
func NewCBORTracer(w io.Writer) *CBORTracer {
	t := &CBORTracer{enc: traceEncMode.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// CreateTraceFile creates (or truncates) a trace file.
func CreateTraceFile(path string) (*CBORTracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	return NewCBORTracer(f), nil
}

// Trace encodes rec. After the first write error further records are dropped.
func (t *CBORTracer) Trace(rec TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(rec)
}

// Err returns the first write error, if any.
func (t *CBORTracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close closes the underlying writer if it is an io.Closer.
func (t *CBORTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closer == nil {
		return t.err
	}
	err := t.closer.Close()
	t.closer = nil
	return errors.Join(t.err, err)
}

// ReadTrace decodes records from r and calls fn for each, stopping at EOF or
// the first error returned by fn.
func ReadTrace(r io.Reader, fn func(TraceRecord) error) error {
	dec := cbor.NewDecoder(r)
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode trace: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (s *Service) trace(dir TraceDirection, attempt, text string) {
	if s.tracer == nil {
		return
	}
	s.tracer.Trace(TraceRecord{
		Time:      time.Now(),
		Direction: dir,
		Attempt:   attempt,
		Text:      text,
	})
}
