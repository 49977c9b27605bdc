package metadata

import "math"

type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// Suballocation is one live range within a page
type Suballocation struct {
	Offset   int
	Size     int
	UserData any
}

type freeRange struct {
	offset int
	size   int
}

func (r freeRange) end() int { return r.offset + r.size }
