package executor

import (
	"net/http"

	"github.com/hochfrequenz/prompt-executor/internal/domain"
)

// Kind classifies a failed run
type Kind string

const (
	InputError    Kind = "InputError"
	UpstreamError Kind = "UpstreamError"
	FormatError   Kind = "FormatError"
	ContractError Kind = "ContractError"
	SandboxError  Kind = "SandboxError"
	IOError       Kind = "IOError"
)

// Status maps the kind to its HTTP status code
func (k Kind) Status() int {
	switch k {
	case InputError:
		return http.StatusBadRequest
	case FormatError, ContractError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is the terminal failure of a run. Raw carries the model text for
// FormatError and Details the joined violations for ContractError.
type Error struct {
	Kind    Kind
	Stage   domain.Stage
	Message string
	Raw     string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error
func (e *Error) Status() int { return e.Kind.Status() }
