package busy

import "sync"

// Counter tracks outstanding operations and exposes a derived busy flag.
// It is safe for concurrent use.
type Counter struct {
	mu        sync.Mutex
	count     int
	busy      bool
	nextID    int
	observers map[int]func(bool)
}

// NewCounter returns an idle counter.
func NewCounter() *Counter {
	return &Counter{observers: make(map[int]func(bool))}
}

// Show registers one more outstanding operation.
func (c *Counter) Show() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	c.publishLocked()
}

// Hide settles one outstanding operation. Hiding an idle counter is a no-op.
func (c *Counter) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count > 0 {
		c.count--
	}
	c.publishLocked()
}

// Reset forgets every outstanding operation.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	c.publishLocked()
}

// IsBusy reports whether at least one operation is outstanding.
func (c *Counter) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Count returns the number of outstanding operations.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Acquire calls Show and returns a release func that calls Hide exactly
// once, however many times it is invoked.
func (c *Counter) Acquire() (release func()) {
	c.Show()
	var once sync.Once
	return func() {
		once.Do(c.Hide)
	}
}

// Subscribe registers fn to be called with the new busy flag every time it
// flips. Observers run while the counter is locked: they must not block and
// must not call back into the counter.
func (c *Counter) Subscribe(fn func(bool)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observers == nil {
		c.observers = make(map[int]func(bool))
	}
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

func (c *Counter) publishLocked() {
	busy := c.count > 0
	if busy == c.busy {
		return
	}
	c.busy = busy
	for _, fn := range c.observers {
		fn(busy)
	}
}
