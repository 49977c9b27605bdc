package gapi

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrDeviceUnavailable is returned when no suitable adapter or device could be found. It is fatal to
	// the device creation call that returned it and nothing else.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrAllocationFailed is returned when a native heap or descriptor heap could not be created. The
	// allocator does not retry; the caller decides whether to evict, defragment, or abort.
	ErrAllocationFailed = errors.New("allocation failed")
	// ErrLayoutBuild is returned when the native root signature or descriptor set layout compiler rejects
	// an assembled binding table. The layout is unusable and pipeline creation must be aborted.
	ErrLayoutBuild = errors.New("layout build failed")
	// ErrPresentationStale is returned when a swapchain no longer matches its surface. Callers are
	// expected to catch it and rebuild the swapchain.
	ErrPresentationStale = errors.New("presentation stale")
)

// categoryError places cause in one of the categories above. It matches its category under both the
// standard library and cockroachdb errors.Is, while the message stays that of cause.
type categoryError struct {
	cause    error
	category error
}

func (e *categoryError) Error() string                 { return e.cause.Error() }
func (e *categoryError) Unwrap() error                 { return e.cause }
func (e *categoryError) Is(target error) bool          { return target == e.category }
func (e *categoryError) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }
func (e *categoryError) FormatError(p errors.Printer) error {
	return e.cause
}

func markCategory(err, category error) error {
	if err == nil {
		return nil
	}
	return &categoryError{cause: err, category: category}
}

// DeviceUnavailable marks err as belonging to the device unavailable category
func DeviceUnavailable(err error) error {
	return markCategory(err, ErrDeviceUnavailable)
}

// AllocationFailed marks err as belonging to the allocation failure category
func AllocationFailed(err error) error {
	return markCategory(err, ErrAllocationFailed)
}

// LayoutBuildFailed marks err as belonging to the layout build failure category
func LayoutBuildFailed(err error) error {
	return markCategory(err, ErrLayoutBuild)
}

// PresentationStale marks err as belonging to the presentation stale category
func PresentationStale(err error) error {
	return markCategory(err, ErrPresentationStale)
}

func IsDeviceUnavailable(err error) bool { return errors.Is(err, ErrDeviceUnavailable) }
func IsAllocationFailed(err error) bool  { return errors.Is(err, ErrAllocationFailed) }
func IsLayoutBuild(err error) bool       { return errors.Is(err, ErrLayoutBuild) }
func IsPresentationStale(err error) bool { return errors.Is(err, ErrPresentationStale) }
