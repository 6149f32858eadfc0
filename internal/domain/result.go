package domain

// Outcome classifies the result of a mutating store operation. Callers
// branch on outcomes instead of errors; a Failed outcome carries the reason.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeRemoved     Outcome = "removed"
	OutcomeNoOperation Outcome = "noop"
	OutcomeFailed      Outcome = "failed"
)

// Result is the typed outcome of a mutating operation, carrying the
// resulting entity on success. Failed results keep the underlying error so
// callers can branch on sentinels (ErrNotFound, ErrDowngrade) instead of
// message text.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Reason  string
	Err     error
}

func Created[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeCreated, Value: v}
}

func Updated[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeUpdated, Value: v}
}

func Removed[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeRemoved, Value: v}
}

func NoOperation[T any](v T, reason string) Result[T] {
	return Result[T]{Outcome: OutcomeNoOperation, Value: v, Reason: reason}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFailed, Reason: err.Error(), Err: err}
}

// OK reports whether the operation took or confirmed the intended effect.
func (r Result[T]) OK() bool {
	return r.Outcome != OutcomeFailed
}
