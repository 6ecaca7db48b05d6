package vector

import "fmt"

// ValidationError indicates a caller-side misuse of the store, such as
// mismatched parallel lists or a vector of the wrong dimension.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
