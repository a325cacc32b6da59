package notify

import (
	"context"
	"sync"
)

// Recorder keeps notifications and activity events in memory.
// It backs the service tests and can be set to fail to prove failures are swallowed.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	events        []ActivityEvent
	Err           error
}

var (
	_ Notifier    = (*Recorder)(nil)
	_ ActivityLog = (*Recorder)(nil)
)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *Recorder) Record(_ context.Context, ev ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Notifications returns a copy of what was sent.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Templates returns the templates sent, in order.
func (r *Recorder) Templates() []Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Template, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Template)
	}
	return out
}

// Events returns a copy of the recorded activity events.
func (r *Recorder) Events() []ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActivityEvent(nil), r.events...)
}
