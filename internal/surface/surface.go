// Package surface holds the live response for one trigger and the actions
// a user can take on it.
package surface

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ryco/internal/relay"
	"ryco/internal/trigger"

	"github.com/atotto/clipboard"
	"github.com/sirupsen/logrus"
)

// ErrNoRequest is returned by actions when nothing is showing
var ErrNoRequest = errors.New("no active request")

// ErrNoResponse is returned by Insert and Copy before any text arrived
var ErrNoResponse = errors.New("no response to use yet")

// ToastKind is the tone of a notification
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is a short dismissible notification
type Toast struct {
	Kind    ToastKind
	Title   string
	Message string
}

// Clipboard writes text to the system clipboard
type Clipboard interface {
	WriteAll(text string) error
}

type systemClipboard struct{}

// SystemClipboard returns the OS clipboard
func SystemClipboard() Clipboard {
	return systemClipboard{}
}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Requester sends a relay request and waits for the reply
type Requester interface {
	Request(ctx context.Context, msg relay.Message) (relay.Message, error)
}

// View is a snapshot of the live request
type View struct {
	CorrelationID string
	TabID         string
	Prompt        string
	Text          string
	Complete      bool
	Err           error
}

type pending struct {
	correlationID string
	tabID         string
	field         trigger.Field
	match         trigger.Match
	text          strings.Builder
	complete      bool
	err           error
	cancel        context.CancelFunc
}

// Surface owns at most one pending request. A new Open supersedes the old
// one, and chunks for any other correlation id are dropped.
type Surface struct {
	clipboard Clipboard
	onDismiss func(fieldID string)
	log       logrus.FieldLogger

	mu      sync.Mutex
	current *pending
	updates chan struct{}
	toasts  chan Toast
}

// Option configures a Surface
type Option func(*Surface)

// WithClipboard replaces the system clipboard
func WithClipboard(c Clipboard) Option {
	return func(s *Surface) {
		s.clipboard = c
	}
}

// WithDismissHook is called with the field id whenever a request is
// dismissed or superseded
func WithDismissHook(fn func(fieldID string)) Option {
	return func(s *Surface) {
		s.onDismiss = fn
	}
}

// WithLogger sets the logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Surface) {
		s.log = log
	}
}

// New creates a Surface
func New(opts ...Option) *Surface {
	s := &Surface{
		clipboard: systemClipboard{},
		log:       logrus.StandardLogger(),
		updates:   make(chan struct{}, 1),
		toasts:    make(chan Toast, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Toasts returns notifications. Toasts are dropped when nobody reads them.
func (s *Surface) Toasts() <-chan Toast {
	return s.toasts
}

// Updates signals that the view changed. Signals coalesce.
func (s *Surface) Updates() <-chan struct{} {
	return s.updates
}

// Open starts a request for match in field and returns its new
// correlation id
func (s *Surface) Open(tabID string, field trigger.Field, match trigger.Match) string {
	p := &pending{
		correlationID: relay.NewCorrelationID(),
		tabID:         tabID,
		field:         field,
		match:         match,
	}

	s.mu.Lock()
	old := s.current
	s.current = p
	s.mu.Unlock()

	if old != nil {
		s.release(old, old.field != nil && field != nil && old.field.ID() != field.ID())
	}
	s.log.WithField("correlation_id", p.correlationID).Debug("surface opened")
	s.changed()
	return p.correlationID
}

// Attach ties the live request to cancel, which runs on dismissal
func (s *Surface) Attach(correlationID string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.correlationID != correlationID {
		return false
	}
	s.current.cancel = cancel
	return true
}

// Apply adds a stream chunk. It returns false for chunks that do not
// belong to the live request.
func (s *Surface) Apply(chunk relay.Message) bool {
	s.mu.Lock()
	p := s.current
	if p == nil || chunk.CorrelationID != p.correlationID || p.complete {
		s.mu.Unlock()
		s.log.WithField("correlation_id", chunk.CorrelationID).Debug("dropping stale chunk")
		return false
	}
	p.text.WriteString(chunk.Chunk)
	if chunk.IsDone {
		p.complete = true
	}
	s.mu.Unlock()

	s.changed()
	return true
}

// Finish settles the live request with its relay reply. A successful
// reply carries the full response and replaces whatever the chunks built,
// so dropped chunks are repaired. A failed reply only extends the shown
// text; partial output is never retracted.
func (s *Surface) Finish(correlationID string, reply relay.Message) bool {
	s.mu.Lock()
	p := s.current
	if p == nil || p.correlationID != correlationID {
		s.mu.Unlock()
		return false
	}
	shown := p.text.String()
	switch {
	case reply.OK() && reply.Response != "" && reply.Response != shown:
		p.text.Reset()
		p.text.WriteString(reply.Response)
	case len(reply.Response) > len(shown) && strings.HasPrefix(reply.Response, shown):
		p.text.WriteString(reply.Response[len(shown):])
	}
	p.complete = true
	if !reply.OK() && reply.Error != "" {
		p.err = errors.New(reply.Error)
	}
	err := p.err
	s.mu.Unlock()

	if err != nil {
		s.toast(ToastError, "Error", err.Error())
	}
	s.changed()
	return true
}

// Fail records err next to whatever text has accumulated
func (s *Surface) Fail(correlationID string, err error) bool {
	s.mu.Lock()
	p := s.current
	if p == nil || p.correlationID != correlationID {
		s.mu.Unlock()
		return false
	}
	p.err = err
	p.complete = true
	s.mu.Unlock()

	s.toast(ToastError, "Error", err.Error())
	s.changed()
	return true
}

// View returns a snapshot of the live request
func (s *Surface) View() (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.current
	if p == nil {
		return View{}, false
	}
	return View{
		CorrelationID: p.correlationID,
		TabID:         p.tabID,
		Prompt:        p.match.Prompt,
		Text:          p.text.String(),
		Complete:      p.complete,
		Err:           p.err,
	}, true
}

// Insert splices the response into the field in place of the trigger
func (s *Surface) Insert() error {
	p, text, err := s.take()
	if err != nil {
		return err
	}
	if p.field == nil {
		s.restore(p)
		return ErrNoRequest
	}
	if err := trigger.Insert(p.field, p.match, text); err != nil {
		s.restore(p)
		s.toast(ToastError, "Error", err.Error())
		return err
	}
	s.release(p, true)
	s.toast(ToastSuccess, "Inserted", "Response inserted successfully")
	return nil
}

// Copy puts the response on the clipboard and dismisses
func (s *Surface) Copy() error {
	p, text, err := s.take()
	if err != nil {
		return err
	}
	if err := s.clipboard.WriteAll(text); err != nil {
		s.restore(p)
		s.toast(ToastError, "Error", err.Error())
		return err
	}
	s.release(p, true)
	s.toast(ToastSuccess, "Copied", "Response copied to clipboard")
	return nil
}

// Cancel discards the live request
func (s *Surface) Cancel() {
	s.mu.Lock()
	p := s.current
	s.current = nil
	s.mu.Unlock()
	if p == nil {
		return
	}
	s.release(p, true)
	s.toast(ToastInfo, "Cancelled", "Response discarded")
	s.changed()
}

// Ask sends the prompt for match through r and settles the surface with the
// reply. Chunks arrive separately through Apply.
func (s *Surface) Ask(ctx context.Context, r Requester, tabID string, field trigger.Field, match trigger.Match) (View, error) {
	id := s.Open(tabID, field, match)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.Attach(id, cancel)

	reply, err := r.Request(ctx, relay.Message{
		Type:          relay.TypeChat,
		Prompt:        match.Prompt,
		CorrelationID: id,
	})
	if err != nil {
		if s.Fail(id, err) {
			v, _ := s.View()
			return v, err
		}
		return View{}, err
	}

	s.Finish(id, reply)
	v, ok := s.View()
	if !ok || v.CorrelationID != id {
		return View{}, ErrNoRequest
	}
	return v, v.Err
}

// Pump applies chunks until the channel closes or ctx ends
func (s *Surface) Pump(ctx context.Context, chunks <-chan relay.Message) {
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			s.Apply(chunk)
		case <-ctx.Done():
			return
		}
	}
}

// take detaches the live request for an action that needs its text
func (s *Surface) take() (*pending, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.current
	if p == nil {
		return nil, "", ErrNoRequest
	}
	text := p.text.String()
	if text == "" {
		return nil, "", ErrNoResponse
	}
	s.current = nil
	return p, text, nil
}

// restore puts back a request whose action failed, unless another one
// took its place
func (s *Surface) restore(p *pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = p
	}
}

// release cancels p's request and, when resetField is set, lets its field
// fire again
func (s *Surface) release(p *pending, resetField bool) {
	if p.cancel != nil {
		p.cancel()
	}
	if resetField && p.field != nil && s.onDismiss != nil {
		s.onDismiss(p.field.ID())
	}
	s.changed()
}

func (s *Surface) changed() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Surface) toast(kind ToastKind, title, message string) {
	select {
	case s.toasts <- Toast{Kind: kind, Title: title, Message: message}:
	default:
	}
}
