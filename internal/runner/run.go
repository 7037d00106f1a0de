// Package runner is the generic JSONL subprocess core.
//
// run.go - blocking convenience wrapper

package runner

import (
	"context"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/stream"
)

// Run starts a runner and drains its stream to completion, returning
// every item in order. Context cancellation cancels the child and
// still drains the terminal items.
func Run(ctx context.Context, adapter engine.Adapter, opts Options) ([]stream.Item, error) {
	r, err := Start(adapter, opts)
	if err != nil {
		return nil, err
	}
	reader := r.Stream().NewReader()
	defer reader.Close()

	var items []stream.Item
	for {
		it, err := reader.Next(ctx)
		if err == stream.ErrDrained {
			return items, nil
		}
		if err != nil {
			// Context gone: stop the child, then drain what remains so
			// callers still observe the terminal marker.
			r.Cancel("context")
			rest, _ := reader.Drain(context.Background())
			return append(items, rest...), ctx.Err()
		}
		items = append(items, it)
	}
}
