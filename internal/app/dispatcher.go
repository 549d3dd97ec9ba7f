package app

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/neomorfeo/groupdir/internal/domain"
)

// Dispatcher delivers group events to listeners in registration order.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []domain.GroupListener
	timeout   time.Duration
}

// NewDispatcher creates an empty dispatcher. A zero timeout means listeners
// run without a deadline.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{timeout: timeout}
}

// Register appends a listener. Registering the same listener twice is a no-op.
// Listeners are matched by ==, so nil and non-comparable values (func or slice
// kinds, for instance) are refused.
func (d *Dispatcher) Register(l domain.GroupListener) error {
	if !isComparable(l) {
		return &domain.ValidationError{
			Field:   "listener",
			Message: fmt.Sprintf("%T cannot be registered; use a pointer or another comparable type", l),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.Contains(d.listeners, l) {
		return nil
	}
	d.listeners = append(d.listeners, l)
	return nil
}

// Unregister removes a listener. Removing an unknown listener is a no-op.
func (d *Dispatcher) Unregister(l domain.GroupListener) {
	if !isComparable(l) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners = slices.DeleteFunc(d.listeners, func(existing domain.GroupListener) bool {
		return existing == l
	})
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Dispatch delivers the event to a snapshot of the registered listeners.
//
// Pre-phase delivery stops at the first failure so later listeners never see a
// vetoed mutation. Post-phase delivery reaches every listener and reports the
// first failure.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.GroupEvent) error {
	d.mu.RLock()
	listeners := slices.Clone(d.listeners)
	d.mu.RUnlock()

	var first error
	for _, l := range listeners {
		if err := d.deliver(ctx, l, event); err != nil {
			if first == nil {
				first = &domain.ListenerError{
					Phase:     event.Phase,
					Operation: event.Operation,
					GroupID:   event.Group.ID,
					Err:       err,
				}
			}
			if event.Phase == domain.PhasePre {
				return first
			}
		}
	}
	return first
}

func isComparable(l domain.GroupListener) bool {
	t := reflect.TypeOf(l)
	return t != nil && t.Comparable()
}

func (d *Dispatcher) deliver(ctx context.Context, l domain.GroupListener, event domain.GroupEvent) error {
	if d.timeout <= 0 {
		return l.OnEvent(ctx, event)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return l.OnEvent(ctx, event)
}
