package devmem_test

import (
	"github.com/cockroachdb/errors"
)

type fakeHeap struct {
	id     int
	size   int
	typeID uint32
}

type fakeHeaps struct {
	created  []*fakeHeap
	released []*fakeHeap
	fail     bool
}

func (h *fakeHeaps) CreateHeap(size int, typeID uint32) (*fakeHeap, error) {
	if h.fail {
		return nil, errors.New("out of device memory")
	}
	heap := &fakeHeap{id: len(h.created), size: size, typeID: typeID}
	h.created = append(h.created, heap)
	return heap, nil
}

func (h *fakeHeaps) ReleaseHeap(heap *fakeHeap, size int, typeID uint32) {
	if heap.size != size || heap.typeID != typeID {
		panic("released heap with mismatched size or type")
	}
	h.released = append(h.released, heap)
}

func (h *fakeHeaps) live() int {
	return len(h.created) - len(h.released)
}
