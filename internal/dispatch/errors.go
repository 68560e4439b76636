package dispatch

import (
	"errors"
	"fmt"
)

// ErrExhausted is matched by errors.Is on an *ExhaustedError.
var ErrExhausted = errors.New("all credentials exhausted")

// ExhaustedError reports the Work Item that could not be completed.
// The batch stops at this item.
type ExhaustedError struct {
	Item     int
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("item %d: %s after %d attempts", e.Item+1, ErrExhausted, e.Attempts)
	}
	return fmt.Sprintf("item %d: %s after %d attempts: %v", e.Item+1, ErrExhausted, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
