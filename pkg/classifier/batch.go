// pkg/classifier/batch.go
package classifier

import "context"

// batch buffers records for one target partition and bulk-writes them on flush
type batch[T any] struct {
	items   []T
	size    int
	write   func(ctx context.Context, items []T) error
	written int64
	flushes int
}

func newBatch[T any](size int, write func(ctx context.Context, items []T) error) *batch[T] {
	return &batch[T]{
		items: make([]T, 0, size),
		size:  size,
		write: write,
	}
}

func (b *batch[T]) add(item T) {
	b.items = append(b.items, item)
}

// flush writes any buffered items. An empty buffer is a no-op.
func (b *batch[T]) flush(ctx context.Context) error {
	if len(b.items) == 0 {
		return nil
	}
	if err := b.write(ctx, b.items); err != nil {
		return err
	}
	b.written += int64(len(b.items))
	b.flushes++
	// a fresh slice, the writer may still reference the flushed one
	b.items = make([]T, 0, b.size)
	return nil
}
