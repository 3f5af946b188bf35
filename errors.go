package unitpool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is matched by every "name not found" failure, including ExhaustedError.
	ErrNotFound = errors.New("unit not found")
	// ErrStaleAccess marks a resolution requested on a container that is not started.
	ErrStaleAccess = errors.New("resolution on a container that is not started")
	// ErrAlreadyStarted is returned by Start on a started container.
	ErrAlreadyStarted = errors.New("container already started")
	// ErrStopped is returned by Start on a container that was stopped; containers are not restartable.
	ErrStopped = errors.New("container stopped")
)

// NotFoundError means a single tier could not resolve the name.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("unit not found: %q", e.Name)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ExhaustedError means no tier resolved the name. Causes holds probe failures
// other than "not found" that were skipped along the way.
type ExhaustedError struct {
	Name   string
	Causes []error
}

func (e ExhaustedError) Error() string {
	if len(e.Causes) == 0 {
		return fmt.Sprintf("unit %q not found in any tier", e.Name)
	}
	return fmt.Sprintf("unit %q not found in any tier: %v", e.Name, errors.Join(e.Causes...))
}

func (e ExhaustedError) Unwrap() []error {
	return append([]error{ErrNotFound}, e.Causes...)
}

// SecurityDeniedError means the permission check refused the name's prefix.
type SecurityDeniedError struct {
	Name   string
	Prefix string
	Err    error
}

func (e SecurityDeniedError) Error() string {
	return fmt.Sprintf("security violation, attempt to use restricted unit %q (prefix %q): %v", e.Name, e.Prefix, e.Err)
}

func (e SecurityDeniedError) Unwrap() error { return e.Err }

// LifecycleError means the underlying lifecycle base failed to start or stop.
type LifecycleError struct {
	Container string
	Op        string
	Err       error
}

func (e LifecycleError) Error() string {
	return fmt.Sprintf("%s container %s: %v", e.Op, e.Container, e.Err)
}

func (e LifecycleError) Unwrap() error { return e.Err }

// LinkError means the link step failed for a resolved unit.
type LinkError struct {
	Name string
	Err  error
}

func (e LinkError) Error() string {
	return fmt.Sprintf("link unit %q: %v", e.Name, e.Err)
}

func (e LinkError) Unwrap() error { return e.Err }

// CycleDetectedError means a unit's resolution requires itself on the same container.
type CycleDetectedError struct {
	Container string
	Path      []string
}

func (e CycleDetectedError) Error() string {
	if len(e.Path) == 0 {
		return "unit resolution cycle detected"
	}
	return fmt.Sprintf("unit resolution cycle detected in %s: %s", e.Container, strings.Join(e.Path, " -> "))
}

// TypeMismatchError means ResolveAs[T] could not cast the resolved value to T.
type TypeMismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("unit type mismatch for %q: expected=%s actual=%s",
		e.Name, e.Expected, e.Actual)
}

// missing reports whether err only says that name itself is absent. A failure
// about another name, such as a dependency that could not be resolved while
// building name, is a real failure even though it matches ErrNotFound.
func missing(err error, name string) bool {
	if !errors.Is(err, ErrNotFound) {
		return false
	}
	var exhausted ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Name == name
	}
	var notFound NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Name == name
	}
	return true
}
