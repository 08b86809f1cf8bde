// ABOUTME: Error taxonomy for routing failures
// ABOUTME: Context and primary errors are recovered internally; the rest reach the caller

package router

import (
	"errors"
	"fmt"
)

// ErrNoRouteConfigured is returned when both generation paths are disabled.
var ErrNoRouteConfigured = errors.New("no generation path enabled: set PRIMARY_GENERATION_ENABLED or SECONDARY_GENERATION_ENABLED")

// ErrSecondaryDisabled is the secondary cause when the primary path failed and no fallback is enabled.
var ErrSecondaryDisabled = errors.New("secondary path disabled")

// ContextFetchError wraps a context provider failure. It is logged, never returned by Route.
type ContextFetchError struct {
	Err error
}

func (e *ContextFetchError) Error() string {
	return fmt.Sprintf("context fetch failed: %v", e.Err)
}

func (e *ContextFetchError) Unwrap() error { return e.Err }

// PrimaryGenerationError wraps a primary path failure. It triggers the fallback.
type PrimaryGenerationError struct {
	Err error
}

func (e *PrimaryGenerationError) Error() string {
	return fmt.Sprintf("primary generation failed: %v", e.Err)
}

func (e *PrimaryGenerationError) Unwrap() error { return e.Err }

// SecondaryGenerationError is the terminal failure when every enabled path failed.
// Primary is set when the primary path was attempted first.
type SecondaryGenerationError struct {
	Err     error
	Primary *PrimaryGenerationError
}

func (e *SecondaryGenerationError) Error() string {
	if e.Primary != nil {
		return fmt.Sprintf("all routing paths failed: primary: %v; secondary: %v", e.Primary.Err, e.Err)
	}
	return fmt.Sprintf("all routing paths failed: secondary: %v", e.Err)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *SecondaryGenerationError) Unwrap() []error {
	if e.Primary != nil {
		return []error{e.Err, e.Primary}
	}
	return []error{e.Err}
}
