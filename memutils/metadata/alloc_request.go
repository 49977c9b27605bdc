package metadata

// AllocationRequest is a type returned from PageMetadata.CreateAllocationRequest which indicates where the
// metadata intends to place new memory. It can be committed with PageMetadata.Alloc.
type AllocationRequest struct {
	// Offset is the aligned offset that the allocation will start at
	Offset int
	// Size is the size of the allocation, as requested
	Size int
	// FreeOffset is the offset of the free range the allocation will be carved out of
	FreeOffset int
	// FreeSize is the size of that free range when the request was created
	FreeSize int
}
