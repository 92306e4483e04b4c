package trigger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a field must be quiet before it is checked
const DefaultDebounce = 100 * time.Millisecond

// State is a field's position in the trigger cycle
type State int

const (
	// Idle fields are checked on input
	Idle State = iota
	// Fired fields ignore input until Reset
	Fired
)

func (s State) String() string {
	if s == Fired {
		return "fired"
	}
	return "idle"
}

// Event reports a trigger that fired in Field
type Event struct {
	Field Field
	Match Match
}

type entry struct {
	field Field
	state State
	timer *time.Timer
}

// Detector tracks fields and emits an Event when one of them completes a
// trigger
type Detector struct {
	debounce time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	fields map[string]*entry

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewDetector creates a Detector
func NewDetector(debounce time.Duration, log logrus.FieldLogger) *Detector {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Detector{
		debounce: debounce,
		log:      log,
		fields:   make(map[string]*entry),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Events returns fired triggers
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Observe registers field. It returns false when the field was already
// known or its kind does not accept text.
func (d *Detector) Observe(field Field) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.observeLocked(field) != nil
}

func (d *Detector) observeLocked(field Field) *entry {
	if _, ok := d.fields[field.ID()]; ok {
		return nil
	}
	if !editable(field) {
		return nil
	}
	e := &entry{field: field}
	d.fields[field.ID()] = e
	return e
}

// Notify is the input hook. It registers unknown editable fields and
// schedules a debounced check unless the field has already fired.
func (d *Detector) Notify(field Field) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.fields[field.ID()]
	if !ok {
		if e = d.observeLocked(field); e == nil {
			return
		}
	}
	if e.state == Fired {
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	id := field.ID()
	e.timer = time.AfterFunc(d.debounce, func() {
		d.check(id)
	})
}

// NotifyKey is the keyup hook: only space, Enter and "/" can complete a
// trigger
func (d *Detector) NotifyKey(field Field, key string) {
	switch key {
	case " ", "space", "enter", "Enter", "/":
		d.Notify(field)
	}
}

// Reset returns a fired field to Idle, typically when its surface is
// dismissed
func (d *Detector) Reset(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.fields[id]; ok {
		e.state = Idle
	}
}

// Forget stops tracking a field
func (d *Detector) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.fields[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(d.fields, id)
	}
}

// State returns the state of a field, Idle when unknown
func (d *Detector) State(id string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.fields[id]; ok {
		return e.state
	}
	return Idle
}

// Close stops delivering events
func (d *Detector) Close() {
	d.once.Do(func() {
		close(d.done)
		d.mu.Lock()
		for _, e := range d.fields {
			if e.timer != nil {
				e.timer.Stop()
			}
		}
		d.mu.Unlock()
	})
}

func (d *Detector) check(id string) {
	d.mu.Lock()
	e, ok := d.fields[id]
	if !ok || e.state == Fired {
		d.mu.Unlock()
		return
	}
	field := e.field
	d.mu.Unlock()

	text, err := field.Text()
	if err != nil {
		d.log.WithError(err).WithField("field", id).Debug("failed to read field")
		return
	}
	m, ok := Detect(text, field.Caret())
	if !ok {
		return
	}

	d.mu.Lock()
	if e.state == Fired {
		d.mu.Unlock()
		return
	}
	e.state = Fired
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{"field": id, "start": m.Start, "end": m.End}).Debug("trigger fired")
	select {
	case d.events <- Event{Field: field, Match: m}:
	case <-d.done:
	}
}
