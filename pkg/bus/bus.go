package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind identifies a class of events on the dispatcher
type Kind string

// Event is any named payload broadcast through the dispatcher.
// Implementations are expected to be immutable once fired.
type Event interface {
	Kind() Kind
}

// Handler processes a single event. A handler may block on the passed
// context to perform asynchronous work; Fire does not return until the
// handler does.
type Handler func(ctx context.Context, event Event) error

// Subscriber is a component, typically a plugin, that registers its
// handlers on a dispatcher in one call.
type Subscriber interface {
	Subscribe(d *Dispatcher)
}

type registration struct {
	priority int
	seq      uint64
	handler  Handler
}

// Dispatcher is a synchronous typed publish/subscribe hub.
// Handlers fire in ascending priority order, registration order within
// equal priority. Fire returns the first handler error and does not
// invoke the remaining handlers for that event.
type Dispatcher struct {
	mu     sync.Mutex
	seq    uint64
	events map[Kind][]registration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		events: make(map[Kind][]registration),
	}
}

// Listen registers a handler for the given event kind.
// Returns the dispatcher to allow chained registration.
func (d *Dispatcher) Listen(kind Kind, handler Handler, priority int) *Dispatcher {
	if handler == nil {
		panic(fmt.Sprintf("bus: nil handler registered for %q", kind))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	regs := append(d.events[kind], registration{
		priority: priority,
		seq:      d.seq,
		handler:  handler,
	})
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority == regs[j].priority {
			return regs[i].seq < regs[j].seq
		}
		return regs[i].priority < regs[j].priority
	})
	d.events[kind] = regs

	return d
}

// Register subscribes all of the subscriber's handlers.
func (d *Dispatcher) Register(subscribers ...Subscriber) *Dispatcher {
	for _, s := range subscribers {
		s.Subscribe(d)
	}
	return d
}

// Fire delivers the event to every handler registered for its kind,
// synchronously. The first handler error aborts delivery and is
// returned to the publisher, which decides whether the run can
// continue.
func (d *Dispatcher) Fire(ctx context.Context, event Event) error {
	d.mu.Lock()
	regs := d.events[event.Kind()]
	d.mu.Unlock()

	for _, reg := range regs {
		if err := reg.handler(ctx, event); err != nil {
			return fmt.Errorf("handler for %q: %w", event.Kind(), err)
		}
	}

	return nil
}

// HasListeners reports whether any handler is registered for the kind.
func (d *Dispatcher) HasListeners(kind Kind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events[kind]) > 0
}
