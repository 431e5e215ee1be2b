package diag

import "sync"

// Sink receives resolution errors. Implementations must be safe for
// concurrent use; batch resolution reports from multiple goroutines.
type Sink interface {
	Report(err Error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(err Error)

func (f SinkFunc) Report(err Error) { f(err) }

// Collector is a Sink that accumulates errors in order of arrival.
type Collector struct {
	mu   sync.Mutex
	errs []Error
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Report(err Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the collected errors.
func (c *Collector) Errors() []Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Error, len(c.errs))
	copy(out, c.errs)
	return out
}

func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}
