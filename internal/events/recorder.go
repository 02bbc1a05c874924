package events

import (
	"context"
	"sync"

	"yield-ledger/internal/ledger"
)

// Recorder keeps the last events in a ring buffer. It is the feed used when
// Redis is not configured.
type Recorder struct {
	mu    sync.Mutex
	buf   []ledger.Event
	next  int
	count int
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecent
	}
	return &Recorder{buf: make([]ledger.Event, capacity)}
}

func (r *Recorder) Publish(_ context.Context, events ...ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		r.buf[r.next] = ev
		r.next = (r.next + 1) % len(r.buf)
		if r.count < len(r.buf) {
			r.count++
		}
	}
	return nil
}

func (r *Recorder) Recent(_ context.Context, n int) ([]ledger.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]ledger.Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out, nil
}
