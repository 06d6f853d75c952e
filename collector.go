package flamez

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers finished traces for batch export. Install its
// Handler on any number of tracers; traces from different goroutines
// are snapshotted on their own goroutine and queued here.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	traces       []*Trace
	tracesCh     chan *Trace
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
	closeOnce    sync.Once
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:     name,
		traces:   make([]*Trace, 0, 8),
		tracesCh: make(chan *Trace, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// Handler returns a trace handler feeding this collector.
func (c *Collector) Handler() Handler {
	return func(fg *FlameGraph) {
		c.Collect(fg.Snapshot())
	}
}

// start runs the collector's main loop, receiving traces from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining traces before shutdown.
			for {
				select {
				case t := <-c.tracesCh:
					c.buffer(t)
				default:
					return
				}
			}
		case t := <-c.tracesCh:
			c.buffer(t)
		}
	}
}

// Close shuts down the collector. Buffered traces stay available to Export;
// later Collect calls are dropped.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect queues a trace. If the internal channel is full, or the
// collector is closed, the trace is dropped and counted.
// In sync mode, traces are buffered directly for deterministic testing.
func (c *Collector) Collect(t *Trace) {
	if t == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(t)
		return
	}

	select {
	case c.tracesCh <- t:
	default:
		// Channel full - drop trace to prevent blocking the traced goroutine.
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(t *Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces = append(c.traces, t)
}

// Export returns all buffered traces and clears the buffer.
func (c *Collector) Export() []*Trace {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.traces) == 0 {
		return nil
	}

	result := make([]*Trace, len(c.traces))
	copy(result, c.traces)

	// Shrink only when the buffer is very oversized to avoid allocation churn.
	if cap(c.traces) > 256 && len(c.traces) < cap(c.traces)/8 {
		c.traces = make([]*Trace, 0, cap(c.traces)/4)
	} else {
		clear(c.traces)
		c.traces = c.traces[:0]
	}

	return result
}

// Count returns the current number of buffered traces.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.traces)
}

// DroppedCount returns the total number of traces dropped.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered traces and resets the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.traces)
	c.traces = c.traces[:0]
	c.droppedCount.Store(0)
}
