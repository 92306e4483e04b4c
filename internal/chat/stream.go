package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"ryco/internal/stream"

	"github.com/sirupsen/logrus"
)

// Stream is a pull iterator over the deltas of one response:
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
//
// Next returning false is the single end-of-stream signal.
type Stream struct {
	dec    *stream.Decoder
	body   io.ReadCloser
	cancel context.CancelFunc
	log    logrus.FieldLogger

	text string
	full strings.Builder
	err  error
	done bool
}

func newStream(body io.ReadCloser, adapter stream.Adapter, cancel context.CancelFunc, log logrus.FieldLogger) *Stream {
	return &Stream{
		dec:    stream.NewDecoder(body, adapter),
		body:   body,
		cancel: cancel,
		log:    log,
	}
}

// Next advances to the next delta
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	text, err := s.dec.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = &StreamError{Partial: s.full.String(), Err: err}
		}
		s.finish()
		return false
	}

	s.text = text
	s.full.WriteString(text)
	return true
}

// Text returns the current delta
func (s *Stream) Text() string {
	return s.text
}

// Full returns everything received so far
func (s *Stream) Full() string {
	return s.full.String()
}

// Err returns the failure that ended the stream, if any
func (s *Stream) Err() error {
	return s.err
}

// Close releases the response. Safe to call more than once.
func (s *Stream) Close() error {
	s.finish()
	return nil
}

func (s *Stream) finish() {
	if s.done {
		return
	}
	s.done = true
	s.body.Close()
	s.cancel()

	stats := s.dec.Stats()
	s.log.WithFields(logrus.Fields{
		"records":   stats.Records,
		"deltas":    stats.Deltas,
		"thoughts":  stats.Thoughts,
		"malformed": stats.Malformed,
	}).Debug("stream finished")
}
