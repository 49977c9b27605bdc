package metadata

// AllocationStrategy chooses among the free ranges that could hold a new allocation
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory selects the smallest free range the allocation fits in, to minimize
	// fragmentation at the cost of scanning the whole free list
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime selects the first free range the allocation fits in
	AllocationStrategyMinTime
)

var strategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
}

func (s AllocationStrategy) String() string {
	return strategyMapping[s]
}

// ParseAllocationStrategy maps a configuration string onto an AllocationStrategy
func ParseAllocationStrategy(name string) (AllocationStrategy, bool) {
	switch name {
	case "best-fit", "min-memory", "":
		return AllocationStrategyMinMemory, true
	case "first-fit", "min-time":
		return AllocationStrategyMinTime, true
	}
	return 0, false
}
