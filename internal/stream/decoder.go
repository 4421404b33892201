// Package stream reassembles chat-completion text deltas from a
// server-sent event stream and writes the same framing back out.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// State is the decoder's position in the line framing cycle.
type State int

const (
	// AwaitingLine means no complete line is held; the decoder scans its
	// buffer for a newline and reads from the source when there is none.
	AwaitingLine State = iota
	// HaveLine means one complete line has been cut from the buffer and
	// has not been processed yet.
	HaveLine
	// Done means the sentinel was seen or the source ended.
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingLine:
		return "awaiting_line"
	case HaveLine:
		return "have_line"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

const (
	readSize = 4096
	sentinel = "[DONE]"
)

var dataPrefix = []byte("data:")

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns an event stream into text deltas.
//
// The decoder owns buf. Bytes read from the source are appended to it,
// complete lines are cut from its front, and a line whose payload does not
// parse is put back at the front with its newline restored. A put-back line
// is retried only after another read; if it fails again it is dropped.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	scratch []byte
	buf     []byte
	line    []byte
	state   State

	pushedBack []byte
	needRead   bool
	dropped    int
	readErr    error
	err        error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, scratch: make([]byte, readSize)}
}

// State reports the current framing state.
func (d *Decoder) State() State {
	return d.state
}

// Dropped reports how many malformed data lines were discarded.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Next returns the next non-empty text delta. It returns io.EOF once the
// sentinel has been seen or the source is exhausted, and the source's error
// for any other read failure.
func (d *Decoder) Next() (string, error) {
	for {
		switch d.state {
		case Done:
			if d.err != nil {
				return "", d.err
			}
			return "", io.EOF
		case HaveLine:
			if delta, ok := d.process(); ok {
				return delta, nil
			}
		default:
			if !d.needRead {
				if i := bytes.IndexByte(d.buf, '\n'); i >= 0 {
					d.line = d.buf[:i]
					d.buf = d.buf[i+1:]
					d.state = HaveLine
					continue
				}
			}
			if err := d.fill(); err != nil {
				if !errors.Is(err, io.EOF) {
					d.err = err
				}
				// An unterminated tail is never a complete event.
				d.buf = nil
				d.state = Done
			}
		}
	}
}

func (d *Decoder) fill() error {
	if d.readErr != nil {
		return d.readErr
	}
	n, err := d.r.Read(d.scratch)
	if n > 0 {
		d.buf = append(d.buf, d.scratch[:n]...)
		d.needRead = false
	}
	if err != nil {
		d.readErr = err
		if n > 0 {
			return nil
		}
		return err
	}
	return nil
}

// process consumes the held line and reports a delta when it carries one.
func (d *Decoder) process() (string, bool) {
	line := bytes.TrimSuffix(d.line, []byte("\r"))
	d.line = nil
	d.state = AwaitingLine

	if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == sentinel {
		d.state = Done
		return "", false
	}

	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		if d.pushedBack != nil && bytes.Equal(d.pushedBack, line) {
			d.pushedBack = nil
			d.dropped++
			return "", false
		}
		d.pushBack(line)
		return "", false
	}
	d.pushedBack = nil

	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
		return "", false
	}
	return c.Choices[0].Delta.Content, true
}

func (d *Decoder) pushBack(line []byte) {
	restored := make([]byte, 0, len(line)+1+len(d.buf))
	restored = append(restored, line...)
	restored = append(restored, '\n')
	restored = append(restored, d.buf...)
	d.buf = restored
	d.pushedBack = append([]byte(nil), line...)
	d.needRead = true
}

// Collect drains d, passing every delta to fn (when non-nil), and returns
// the concatenated text. It stops early if fn returns an error.
func Collect(d *Decoder, fn func(delta string) error) (string, error) {
	var sb bytes.Buffer
	for {
		delta, err := d.Next()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
		if fn != nil {
			if err := fn(delta); err != nil {
				return sb.String(), err
			}
		}
	}
}
