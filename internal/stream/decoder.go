// Package stream turns Server-Sent Event response bodies into ordered text
// deltas, independent of how the bytes were chunked on the wire.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Stats counts what the decoder saw
type Stats struct {
	Records      int
	Deltas       int
	Thoughts     int
	Unrecognized int
	Malformed    int
}

// Decoder pulls deltas from an SSE body. It is not safe for concurrent use;
// one goroutine reads a stream from start to end.
type Decoder struct {
	reader  *bufio.Reader
	adapter Adapter
	stats   Stats
	err     error
}

// NewDecoder wraps r. Bytes pass through a streaming UTF-8 decoder, which
// holds an incomplete multi-byte sequence until the rest arrives and
// replaces invalid bytes with U+FFFD.
func NewDecoder(r io.Reader, adapter Adapter) *Decoder {
	utf8 := transform.NewReader(r, unicode.UTF8.NewDecoder())
	return &Decoder{
		reader:  bufio.NewReader(utf8),
		adapter: adapter,
	}
}

// Next returns the next delta. At the end of the body it returns io.EOF;
// any other error is a read failure of the underlying body.
func (d *Decoder) Next() (string, error) {
	for {
		if d.err != nil {
			return "", d.err
		}

		line, err := d.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("read stream: %w", err)
			}
		}

		// on EOF, line is the unterminated residue and is handled once here
		if text, ok := d.processLine(line); ok {
			return text, nil
		}
	}
}

// Stats returns counters for the records read so far
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) processLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" || payload == doneSentinel {
		return "", false
	}

	d.stats.Records++
	if !gjson.Valid(payload) {
		d.stats.Malformed++
		return "", false
	}

	ev := d.adapter.Extract(gjson.Parse(payload))
	switch ev.Kind {
	case Delta:
		d.stats.Deltas++
		return ev.Text, true
	case Thought:
		d.stats.Thoughts++
	default:
		d.stats.Unrecognized++
	}
	return "", false
}

// Collect drains r and returns every delta in order
func Collect(r io.Reader, adapter Adapter) ([]string, Stats, error) {
	dec := NewDecoder(r, adapter)
	var deltas []string
	for {
		text, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return deltas, dec.Stats(), nil
			}
			return deltas, dec.Stats(), err
		}
		deltas = append(deltas, text)
	}
}
