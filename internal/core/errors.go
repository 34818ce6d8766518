package core

import (
	"errors"
	"fmt"
)

// Resolution errors. They stop an install before any download starts.
var (
	ErrVersionNotFound        = errors.New("version not found")
	ErrParentResolutionFailed = errors.New("parent resolution failed")
	ErrCyclicInheritance      = errors.New("cyclic inheritance")
)

// ParentError reports that the version named by inheritsFrom could not
// be resolved. It matches ErrParentResolutionFailed and unwraps to the
// parent's own error.
type ParentError struct {
	Child  string
	Parent string
	Err    error
}

func (e *ParentError) Error() string {
	return fmt.Sprintf("%s: %s inherits from %s: %v", ErrParentResolutionFailed, e.Child, e.Parent, e.Err)
}

func (e *ParentError) Unwrap() error {
	return e.Err
}

func (e *ParentError) Is(target error) bool {
	return target == ErrParentResolutionFailed
}

// NotFound wraps ErrVersionNotFound with the missing id.
func NotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrVersionNotFound, id)
}
