// Package hooks implements the transformation pipeline that optional modules
// use to observe and rewrite resource payloads as they cross the pull and push
// boundaries.
//
// Each Event binds a name to a payload type, so handlers are statically typed.
// Handlers registered on the same event form a chain ordered by priority
// (lower runs first, ties in registration order): each handler receives the
// previous handler's output and must return a value of the same type.
//
// A Pipeline is an explicit instance owned by the service that runs it; there
// is no package-level registry.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"mirror-go/internal/model"
)

// DefaultPriority is the mid-range priority used when a caller has no preference.
const DefaultPriority = 10

// Handler transforms a payload. Returning an error stops the chain for this
// payload; wrap it with Halt to fail the resource instead of degrading.
type Handler[T any] func(ctx context.Context, payload T) (T, error)

// Event names an extension point and fixes its payload type.
type Event[T any] struct {
	name  string
	clone func(T) T
}

// NewEvent defines an event. clone is used to isolate each handler's input
// so a handler that fails half-way cannot leak partial edits; it may be nil
// for value payloads without reference fields.
func NewEvent[T any](name string, clone func(T) T) Event[T] {
	return Event[T]{name: name, clone: clone}
}

// Name returns the event name.
func (e Event[T]) Name() string { return e.name }

var (
	// ResourceBeforeSync fires after a remote resource is fetched (or returned
	// by a push) and before it is written to the mirror.
	ResourceBeforeSync = NewEvent("resource_before_sync", model.SyncPayload.Clone)

	// ResourceBeforePush fires before the outbound payload is sent to the remote.
	ResourceBeforePush = NewEvent("resource_before_push", model.PushPayload.Clone)

	// SyncComplete fires once per pull with the batch counts. Side-effect only.
	SyncComplete = NewEvent[model.SyncSummary]("sync_complete", nil)
)

// Logger is the logging surface the pipeline needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type registration struct {
	id       uint64
	name     string
	priority int
	fn       any // Handler[T] for the event's T
}

// Pipeline holds handler registrations per event. It is safe for concurrent use.
type Pipeline struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
	seq      uint64
	logger   Logger
}

// New creates an empty pipeline.
func New(logger Logger) *Pipeline {
	return &Pipeline{
		handlers: make(map[string][]*registration),
		logger:   logger,
	}
}

// On registers h on event ev and returns a function that removes it.
// The returned function is safe to call more than once.
func On[T any](p *Pipeline, ev Event[T], name string, priority int, h Handler[T]) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	reg := &registration{id: p.seq, name: name, priority: priority, fn: h}

	// fresh slice so a concurrent Run keeps iterating its own snapshot
	list := append(slices.Clone(p.handlers[ev.name]), reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].id < list[j].id
	})
	p.handlers[ev.name] = list

	var once sync.Once
	return func() {
		once.Do(func() { p.remove(ev.name, reg.id) })
	}
}

func (p *Pipeline) remove(event string, id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := p.handlers[event]
	for i, reg := range list {
		if reg.id == id {
			next := make([]*registration, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			p.handlers[event] = next
			return
		}
	}
}

// Count returns the number of handlers registered on ev.
func Count[T any](p *Pipeline, ev Event[T]) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers[ev.name])
}

// Run threads payload through every handler registered on ev.
//
// On success it returns the final payload and nil. When a handler fails the
// chain stops and Run returns the output of the last successful handler (or
// the input) together with a *TransformError; Hard is set when the handler
// signalled the failure with Halt.
func Run[T any](ctx context.Context, p *Pipeline, ev Event[T], payload T) (T, error) {
	p.mu.RLock()
	chain := p.handlers[ev.name]
	p.mu.RUnlock()

	current := payload
	for _, reg := range chain {
		h := reg.fn.(Handler[T])

		in := current
		if ev.clone != nil {
			in = ev.clone(current)
		}

		out, err := invoke(ctx, h, in)
		if err != nil {
			tErr := &TransformError{Event: ev.name, Handler: reg.name, Err: err}
			var hard *haltError
			if errors.As(err, &hard) {
				tErr.Hard = true
				tErr.Err = hard.err
			}
			if p.logger != nil {
				p.logger.Warn("hook handler failed", "event", ev.name, "handler", reg.name, "hard", tErr.Hard, "error", tErr.Err)
			}
			return current, tErr
		}
		current = out
	}

	if p.logger != nil && len(chain) > 0 {
		p.logger.Debug("hook chain complete", "event", ev.name, "handlers", len(chain))
	}
	return current, nil
}

// invoke calls h, turning a panic into an error.
func invoke[T any](ctx context.Context, h Handler[T], in T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, in)
}

// Halt marks err as a hard failure: the resource being transformed is failed
// for this cycle instead of continuing with the last good payload.
func Halt(err error) error {
	if err == nil {
		return nil
	}
	return &haltError{err: err}
}

type haltError struct{ err error }

func (e *haltError) Error() string { return e.err.Error() }
func (e *haltError) Unwrap() error { return e.err }

// TransformError reports a handler failure inside a chain.
type TransformError struct {
	Event   string
	Handler string
	Hard    bool
	Err     error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s/%s: %v", e.Event, e.Handler, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
