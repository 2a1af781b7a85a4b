package events

import (
	"log/slog"
	"sync"
	"time"
)

// Emitter publishes a payload on a topic. Implementations must not block.
type Emitter interface {
	Emit(topic string, payload any)
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(topic string, payload any)

// Emit calls f
func (f EmitterFunc) Emit(topic string, payload any) {
	f(topic, payload)
}

// Discard drops every event
var Discard Emitter = EmitterFunc(func(string, any) {})

type multiEmitter []Emitter

// Multi fans an event out to every emitter in order
func Multi(emitters ...Emitter) Emitter {
	var m multiEmitter
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}

func (m multiEmitter) Emit(topic string, payload any) {
	for _, e := range m {
		e.Emit(topic, payload)
	}
}

// LogEmitter logs every event at debug level
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates an emitter that writes events to logger
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the event
func (l *LogEmitter) Emit(topic string, payload any) {
	l.logger.Debug("Event emitted",
		slog.String("topic", topic),
		slog.Any("payload", payload),
	)
}

// Event is one recorded emission
type Event struct {
	Topic   string
	Payload any
}

// Recorder keeps every emitted event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit records the event
func (r *Recorder) Emit(topic string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Topic: topic, Payload: payload})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of all recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Topic returns the payloads recorded on topic, in emission order
func (r *Recorder) Topic(topic string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []any
	for _, e := range r.events {
		if e.Topic == topic {
			out = append(out, e.Payload)
		}
	}
	return out
}

// WaitFor blocks until at least n events are recorded or timeout elapses.
// It reports whether n events arrived.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		r.mu.Lock()
		count := len(r.events)
		r.mu.Unlock()
		if count >= n {
			return true
		}

		select {
		case <-r.notify:
		case <-deadline.C:
			return false
		}
	}
}
