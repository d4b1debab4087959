package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Encoder writes events as newline-delimited JSON.
type Encoder struct {
	w     io.Writer
	flush func()
}

// NewEncoder wraps w. When w is an http.Flusher (or anything with a Flush
// method) every event is flushed as it is written.
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(interface{ Flush() }); ok {
		enc.flush = f.Flush
	}
	return enc
}

// Encode writes one event line.
func (e *Encoder) Encode(evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	if e.flush != nil {
		e.flush()
	}
	return nil
}

// Decoder reads an NDJSON event sequence and enforces its shape: events are
// well formed and nothing follows a terminal event.
type Decoder struct {
	scanner  *bufio.Scanner
	line     int
	terminal bool
}

// NewDecoder reads events from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next event, or io.EOF at the end of input.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		raw := bytes.TrimSpace(d.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if d.terminal {
			return Event{}, fmt.Errorf("line %d: event after terminal event", d.line)
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return Event{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		if err := evt.Validate(); err != nil {
			return Event{}, fmt.Errorf("line %d: %w", d.line, err)
		}
		d.terminal = evt.Terminal()
		return evt, nil
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

// Collect reads a whole sequence. It returns the events and the authoritative
// last one; a sequence that ends without a terminal event yields ok=false.
func Collect(r io.Reader) (events []Event, last Event, ok bool, err error) {
	dec := NewDecoder(r)
	for {
		evt, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return events, last, false, err
		}
		events = append(events, evt)
		last = evt
	}
	return events, last, len(events) > 0 && last.Terminal(), nil
}
