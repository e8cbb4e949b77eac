package notify

import (
	"context"
	"sync"
)

// Feed keeps the most recent notifications so clients can poll for them.
type Feed struct {
	mu      sync.RWMutex
	size    int
	nextSeq uint64
	items   []Notification
}

// NewFeed returns a feed retaining at most size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 50
	}
	return &Feed{size: size, items: make([]Notification, 0, size)}
}

// Append stores n, assigning the next sequence number.
func (f *Feed) Append(n Notification) Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	n.Seq = f.nextSeq
	if len(f.items) == f.size {
		copy(f.items, f.items[1:])
		f.items = f.items[:len(f.items)-1]
	}
	f.items = append(f.items, n)
	return n
}

// Since returns retained notifications with a sequence number greater than after.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Notification, 0, len(f.items))
	for _, n := range f.items {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Handler adapts the feed for a Dispatcher.
func (f *Feed) Handler() Handler {
	return func(_ context.Context, n Notification) error {
		f.Append(n)
		return nil
	}
}
