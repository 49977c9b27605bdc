package resource

import (
	"fmt"
	"sync/atomic"
)

// Resource is a reference-counted object a command buffer can hold until its GPU work completes
type Resource interface {
	Acquire()
	Release() error
}

type shared struct {
	refs    atomic.Int32
	destroy func() error
}

func (s *shared) init(destroy func() error) {
	s.refs.Store(1)
	s.destroy = destroy
}

// Acquire adds a reference
func (s *shared) Acquire() {
	if s.refs.Add(1) <= 1 {
		panic("acquired a resource that was already destroyed")
	}
}

// Release drops a reference and destroys the resource when none remain
func (s *shared) Release() error {
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic(fmt.Sprintf("resource released too many times: %d references", refs))
	}
	if refs > 0 {
		return nil
	}
	return s.destroy()
}

// References returns the number of live references
func (s *shared) References() int {
	return int(s.refs.Load())
}
