// Package generation turns the ranked evidence set into a cited answer. It
// holds the two downstream LLM stages, context compression and answer
// generation, and reports every graceful-degradation branch explicitly
// through Result instead of hiding it.
package generation

// Result is a stage output plus whether the stage fell back to a degraded
// value. Err holds the cause of the fallback and is nil otherwise.
type Result[T any] struct {
	Value    T
	Degraded bool
	Err      error
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func degraded[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Degraded: true, Err: err}
}
