package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	// ErrInvalidInput indicates invalid user input or configuration
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTool indicates a tool name that is not in the registry
	ErrUnknownTool = errors.New("unknown tool")

	// ErrConsentDenied indicates the user declined a consent request.
	// This is a normal negative result, not an orchestrator failure.
	ErrConsentDenied = errors.New("consent denied")

	// ErrTurnCancelled indicates the turn was aborted by the caller
	ErrTurnCancelled = errors.New("turn cancelled")

	// ErrMaxSteps indicates the step cap was reached before the model finished
	ErrMaxSteps = errors.New("maximum steps reached")

	// ErrShutdown indicates the system is shutting down
	ErrShutdown = errors.New("system shutting down")
)

// DeniedError is thrown by a wrapped tool executor when consent is declined.
// It unwraps to ErrConsentDenied and carries the tool name so the model-call
// layer can surface a readable tool failure.
type DeniedError struct {
	Tool string // Tool name the user declined
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("user declined consent for tool %q", e.Tool)
}

// Is implements error comparison for errors.Is
func (e *DeniedError) Is(target error) bool {
	return target == ErrConsentDenied
}

// NewDeniedError creates a consent denial error for the given tool.
func NewDeniedError(tool string) *DeniedError {
	return &DeniedError{Tool: tool}
}

// ToolError represents a failure inside a tool executor. It is recovered at
// the executor boundary, recorded, and re-thrown to the model-call layer so
// the model can see it and retry or compensate.
type ToolError struct {
	Tool string // Tool name
	Err  error  // Underlying error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new tool execution error.
func NewToolError(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Err: err}
}

// IsToolError checks whether an error originated inside a tool executor.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// StreamError represents a fatal model-stream failure. It is terminal for
// the turn: teardown runs, the terminal state is "error", and no finalize
// side effects (commit, deploy) execute.
type StreamError struct {
	Step int   // Step index the stream failed on
	Err  error // Underlying error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("model stream failed at step %d: %v", e.Step, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError creates a new fatal stream error.
func NewStreamError(step int, err error) *StreamError {
	return &StreamError{Step: step, Err: err}
}

// PermanentError represents a non-recoverable failure that Retry must not retry
type PermanentError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error in %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError creates a new permanent error
func NewPermanentError(op string, err error) *PermanentError {
	return &PermanentError{Op: op, Err: err}
}

// MultiError aggregates multiple errors
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Append adds an error to the multi-error if it's non-nil
func (e *MultiError) Append(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ErrorOrNil returns the MultiError if it has errors, otherwise nil
func (e *MultiError) ErrorOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
