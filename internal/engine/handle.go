package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LoadHandle tracks one two-phase load
type LoadHandle struct {
	ID        string
	Root      string
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	err  error
}

func newLoadHandle(root string, now time.Time) *LoadHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoadHandle{
		ID:        uuid.New().String(),
		Root:      root,
		StartedAt: now,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (h *LoadHandle) finish(err error) {
	h.once.Do(func() {
		h.err = err
		h.cancel()
		close(h.done)
	})
}

// Wait blocks until the background phase ends. It returns nil once the full
// dataset is published, or the error that stopped it.
func (h *LoadHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the load has finished, successfully or not
func (h *LoadHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel abandons the load. A dataset it produces afterwards is discarded.
func (h *LoadHandle) Cancel() {
	h.cancel()
}
