package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ForeignAllocationError is returned when a page is asked to release a range it never handed out
var ForeignAllocationError error = errors.New("allocation does not belong to this page")
