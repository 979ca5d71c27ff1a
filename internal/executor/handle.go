package executor

import "context"

// Handle tracks the completion of one scheduled [Task].
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// finish records the task result. It is called exactly once per handle.
func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done returns a channel that is closed once the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task has finished or ctx is done. It returns the
// task's error, or ctx.Err() if the context ended first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error once it has finished, and nil before that.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
