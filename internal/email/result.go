package email

import (
	"context"
	"sync"
)

// result is a one-shot completion signal: pending until settled once with
// success (nil) or a failure.
type result struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newResult() *result {
	return &result{done: make(chan struct{})}
}

func (r *result) settle(err error) error {
	settled := false
	r.once.Do(func() {
		r.err = err
		close(r.done)
		settled = true
	})
	if !settled {
		return ErrAlreadySettled
	}

	return nil
}

// Settle records the delivery outcome: nil for success, otherwise the failure.
// Only the first call takes effect; later calls return ErrAlreadySettled and
// leave the outcome unchanged.
func (m *Message) Settle(err error) error {
	return m.result.settle(err)
}

// Done is closed once the message has been settled.
func (m *Message) Done() <-chan struct{} { return m.result.done }

// Settled reports whether the outcome is known.
func (m *Message) Settled() bool {
	select {
	case <-m.result.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the message is settled and returns the delivery error,
// or returns ctx.Err() if ctx ends first.
func (m *Message) Wait(ctx context.Context) error {
	select {
	case <-m.result.done:
		return m.result.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
