// internal/wait/errors.go
package wait

import (
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/flowcheck/internal/browser"
)

// ElementNotFoundError reports that no element matching Locator satisfied
// Condition within the timeout.
type ElementNotFoundError struct {
	Locator   string
	Condition string
	Waited    time.Duration
	// LastErr is the last error a attempt returned, if any.
	LastErr error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("element %s not found: condition %s not met after %dms",
		e.Locator, e.Condition, e.Waited.Milliseconds())
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error { return e.LastErr }

// IsAbsent reports whether err is a timeout in which the browser answered
// every attempt: the element simply never matched. A timeout whose last attempt
// failed, or any other error, is not absence.
func IsAbsent(err error) bool {
	var notFound *ElementNotFoundError
	if !errors.As(err, &notFound) {
		return false
	}
	return notFound.LastErr == nil || errors.Is(notFound.LastErr, browser.ErrStaleElement)
}

// TimeoutError reports that a custom predicate passed to Until never held.
type TimeoutError struct {
	What    string
	Waited  time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %dms waiting for %s", e.Waited.Milliseconds(), e.What)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }
