package flamez

import (
	"sync"
)

// IDPool hands out pre-generated trace IDs so starting a trace does not
// wait on crypto/rand.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	once    sync.Once
}

// NewIDPool creates a pool holding up to capacity IDs from factory and
// starts filling it in the background.
func NewIDPool(capacity int, factory func() string) *IDPool {
	if capacity < 1 {
		capacity = 1
	}
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get returns a pooled ID, or a freshly generated one when the pool is drained.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.factory()
	}
}

func (p *IDPool) refill() {
	for {
		id := p.factory()
		select {
		case p.ids <- id:
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the background refill. Get keeps working afterwards.
func (p *IDPool) Close() {
	p.once.Do(func() { close(p.stopCh) })
}
