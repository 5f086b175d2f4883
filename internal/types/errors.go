package types

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded is returned when an identity has used its daily allowance
	ErrQuotaExceeded = errors.New("daily question limit exceeded")

	// ErrInvalidInput is returned for empty or malformed requests
	ErrInvalidInput = errors.New("invalid input")
)

// GenerationError wraps a failure of the answer-generation provider.
// It never reaches callers of the answer pipeline; the pipeline degrades
// to a fallback answer instead.
type GenerationError struct {
	Question string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for %q: %v", truncate(e.Question, 60), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed durable or mirror write.
// Op names the write, e.g. "append answer" or "write cache mirror".
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err is or wraps a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
