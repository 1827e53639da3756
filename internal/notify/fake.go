package notify

import (
	"context"
	"sync"
)

// Fake records events for assertions in tests.
type Fake struct {
	mu     sync.Mutex
	events []Event
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Send(ctx context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

// Events returns a copy of everything sent so far.
func (f *Fake) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.events))
	copy(out, f.events)
	return out
}
