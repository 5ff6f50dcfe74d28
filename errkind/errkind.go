// Package errkind contains the typed errors returned across package
// boundaries by the diffusion engine.
package errkind

import "fmt"

// Kind identifies which of the engine's error categories an error belongs
// to, so callers can branch with errors.As instead of string matching.
type Kind int

const (
	KindModelLoadFailed Kind = iota
	KindInferenceFailed
	KindShapeMismatch
	KindUnsupportedDiffuser
	KindUnsupportedScheduler
	KindInvalidOptions
	KindCancelled
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindModelLoadFailed:
		return "model_load_failed"
	case KindInferenceFailed:
		return "inference_failed"
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindUnsupportedDiffuser:
		return "unsupported_diffuser"
	case KindUnsupportedScheduler:
		return "unsupported_scheduler"
	case KindInvalidOptions:
		return "invalid_options"
	case KindCancelled:
		return "cancelled"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// Error is the common shape for every engine error: a kind, the component
// that raised it, and an underlying cause.
type Error struct {
	Kind      Kind
	Component string
	Reason    string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Component, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Component, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, component, reason string) *Error {
	return &Error{Kind: kind, Component: component, Reason: reason}
}

func Wrap(kind Kind, component, reason string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Reason: reason, Cause: cause}
}

// ModelLoadFailed reports a sub-model that could not be loaded.
func ModelLoadFailed(component, reason string, cause error) *Error {
	return Wrap(KindModelLoadFailed, component, reason, cause)
}

// InferenceFailed reports a failed run_inference call.
func InferenceFailed(component, reason string, cause error) *Error {
	return Wrap(KindInferenceFailed, component, reason, cause)
}

// ShapeMismatch reports a tensor whose shape didn't match what was expected.
func ShapeMismatch(component, reason string) *Error {
	return New(KindShapeMismatch, component, reason)
}

// UnsupportedDiffuser reports a DiffuserType not in a pipeline's supported set.
func UnsupportedDiffuser(diffuserType string) *Error {
	return New(KindUnsupportedDiffuser, "pipeline", fmt.Sprintf("diffuser %q is not supported by this pipeline", diffuserType))
}

// UnsupportedScheduler reports a SchedulerType not in a pipeline's supported set.
func UnsupportedScheduler(schedulerType string) *Error {
	return New(KindUnsupportedScheduler, "pipeline", fmt.Sprintf("scheduler %q is not supported by this pipeline", schedulerType))
}

// InvalidOptions reports a validation failure on PromptOptions/SchedulerOptions.
func InvalidOptions(reason string) *Error {
	return New(KindInvalidOptions, "pipeline", reason)
}

// Cancelled reports a run that was cancelled by the caller.
func Cancelled(component string) *Error {
	return New(KindCancelled, component, "operation cancelled")
}

// ResourceExhausted reports insufficient memory/VRAM or an unsupported platform.
func ResourceExhausted(reason string) *Error {
	return New(KindResourceExhausted, "pipeline", reason)
}
