package flamez

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrAlreadyConfigured is returned when a second handler is installed.
	ErrAlreadyConfigured = errors.New("flamez: trace handler already configured")

	// ErrNilHandler is returned when a nil handler is installed.
	ErrNilHandler = errors.New("flamez: nil trace handler")
)

// Handler is called when a trace completes. The FlameGraph is only valid
// until the handler returns.
type Handler func(fg *FlameGraph)

// handlerSlot holds at most one handler for its whole lifetime.
type handlerSlot struct {
	handler atomic.Pointer[Handler]
}

func (s *handlerSlot) set(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	if !s.handler.CompareAndSwap(nil, &h) {
		return ErrAlreadyConfigured
	}
	return nil
}

func (s *handlerSlot) get() Handler {
	if h := s.handler.Load(); h != nil {
		return *h
	}
	return nil
}

var global handlerSlot

// SetHandler installs the process-wide trace completion handler.
// It succeeds once; later calls return ErrAlreadyConfigured and leave
// the installed handler in place.
func SetHandler(h Handler) error {
	return global.set(h)
}

// MustSetHandler is like SetHandler but panics on failure.
// Use it during program initialization.
func MustSetHandler(h Handler) {
	if err := SetHandler(h); err != nil {
		panic(err)
	}
}
