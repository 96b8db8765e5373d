// pkg/store/memstore/cursor.go
package memstore

import (
	"context"
	"fmt"

	"github.com/David-Botos/flat-ingress/pkg/model"
)

// cursor walks a snapshot of documents
type cursor struct {
	items   []interface{}
	pos     int
	failAt  int
	failErr error
	err     error
	closed  bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.failAt >= 0 && c.pos+1 >= c.failAt {
		c.err = c.failErr
		return false
	}
	c.pos++
	return c.pos < len(c.items)
}

func (c *cursor) Decode(v interface{}) error {
	if c.pos < 0 || c.pos >= len(c.items) {
		return fmt.Errorf("cursor is not positioned on a document")
	}
	item := c.items[c.pos]
	switch out := v.(type) {
	case *model.WorkingDocument:
		doc, ok := item.(model.WorkingDocument)
		if !ok {
			return fmt.Errorf("cannot decode %T into %T", item, v)
		}
		*out = doc
	case *model.RawRecord:
		rec, ok := item.(model.RawRecord)
		if !ok {
			return fmt.Errorf("cannot decode %T into %T", item, v)
		}
		*out = rec
	default:
		return fmt.Errorf("unsupported decode target %T", v)
	}
	return nil
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}
