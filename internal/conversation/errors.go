package conversation

import (
	"errors"
	"fmt"
)

// ErrSessionComplete is returned by [Engine.RunTurn] once the scheduler has
// handed out every configured turn. It is a normal terminal signal, not a
// failure; repeated calls keep returning it.
var ErrSessionComplete = errors.New("session complete")

// GenerationUnavailableError is returned when the generation collaborator
// stays unreachable (or keeps producing unusable output) after the retry
// budget is exhausted. It is fatal to the session; the transcript accumulated
// so far is preserved and returned to the caller.
type GenerationUnavailableError struct {
	// Turn is the index of the turn that could not be generated.
	Turn int

	// Attempts is the number of generation attempts made.
	Attempts int

	// Err is the last underlying error, if the provider erred. Nil when the
	// provider answered but every response sanitized to nothing.
	Err error
}

// Error implements the error interface.
func (e *GenerationUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation unavailable on turn %d after %d attempts: %v", e.Turn, e.Attempts, e.Err)
	}
	return fmt.Sprintf("generation unavailable on turn %d: %d attempts produced no usable text", e.Turn, e.Attempts)
}

// Unwrap returns the underlying provider error.
func (e *GenerationUnavailableError) Unwrap() error {
	return e.Err
}
