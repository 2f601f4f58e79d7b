package reago

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is. The typed errors below wrap these
// so callers can branch on the category without unpacking the struct.
var (
	// ErrConfiguration is the category for bad constructor input.
	ErrConfiguration = errors.New("reago: invalid configuration")

	// ErrUnknownKey is the category for references to keys that were never
	// part of the initial record. Always fatal to the operation that raised
	// it; silently tracking a non-existent dependency would mask programmer
	// error.
	ErrUnknownKey = errors.New("reago: unknown key")

	// ErrReadOnly is the category for write attempts on method-backed
	// entries. Methods are never writable.
	ErrReadOnly = errors.New("reago: read-only entry")

	// ErrInvalidArgument is the category for malformed Watch/Pick argument
	// shapes.
	ErrInvalidArgument = errors.New("reago: invalid argument")

	// ErrDependencyTrace is the category for selector trial executions that
	// failed.
	ErrDependencyTrace = errors.New("reago: dependency trace failed")
)

// ConfigurationError reports bad input to New.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "reago: invalid configuration: " + e.Reason
}

// Unwrap returns the category sentinel for errors.Is support.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// UnknownKeyError reports a reference to a key absent from the original
// record.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("reago: unknown key %q", e.Key)
}

func (e *UnknownKeyError) Unwrap() error { return ErrUnknownKey }

// ReadOnlyError reports a write attempt on a method-backed entry.
type ReadOnlyError struct {
	Key string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("reago: entry %q is method-backed and read-only", e.Key)
}

func (e *ReadOnlyError) Unwrap() error { return ErrReadOnly }

// InvalidArgumentError reports a malformed Watch or Pick argument.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "reago: invalid argument: " + e.Reason
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// DependencyTraceError reports that the trial execution of a selector
// failed. Selector carries the selector's identity so a broken selector can
// be diagnosed from the error alone.
type DependencyTraceError struct {
	Selector string
	Err      error
}

func (e *DependencyTraceError) Error() string {
	return fmt.Sprintf("reago: dependency trace of selector %s failed: %v", e.Selector, e.Err)
}

// Unwrap returns the wrapped cause so errors.Is/As can reach both the
// category sentinel and the original failure.
func (e *DependencyTraceError) Unwrap() error { return e.Err }

// Is reports whether target matches this error's category.
func (e *DependencyTraceError) Is(target error) bool {
	return target == ErrDependencyTrace
}
