package domain

import "fmt"

// StoreError wraps a vector backend failure (unreachable, I/O, timeout).
// An empty result set is not a StoreError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("vector store: %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError names a corpus record that failed schema validation.
type ValidationError struct {
	Index   int
	ChunkID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("corpus record %d: %s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("corpus record %d (chunk %q): %s: %s", e.Index, e.ChunkID, e.Field, e.Reason)
}

// GenerationError wraps a failure of the generation backend or stream.
// Canceled distinguishes a user-initiated abort from a backend fault; in
// both cases partial text produced before the cut is preserved by the caller.
type GenerationError struct {
	Err      error
	Canceled bool
}

func (e *GenerationError) Error() string {
	if e.Canceled {
		return fmt.Sprintf("generation canceled: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
