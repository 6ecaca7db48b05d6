// Package memory implements the best-effort semantic and procedural memory
// used by agents. Writes and recalls never fail the caller: failures are
// logged and reported in an Outcome.
package memory

// Outcome is the result of a best-effort operation. Value is always safe to
// use; on failure it holds the zero or empty value and Err says why.
type Outcome[T any] struct {
	Value T
	Err   error
	// Skipped is true when nothing was attempted (disabled or empty input).
	Skipped bool
}

// OK reports whether the operation ran, or was skipped, without error.
func (o Outcome[T]) OK() bool { return o.Err == nil }
