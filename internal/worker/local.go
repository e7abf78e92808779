package worker

import (
	"context"

	"github.com/dreamware/arbor/internal/cluster"
	"github.com/dreamware/arbor/internal/transport"
)

// NewLocalFactory returns a factory that runs every spawned node as an
// in-process Worker on a pipe. Descendants are spawned through the same
// factory, so pids stay unique across the whole tree.
//
// Each worker gets its own store; opts.Store is ignored.
func NewLocalFactory(ctx context.Context, basePID int, opts Options) *transport.LocalFactory {
	opts.Store = nil
	var factory *transport.LocalFactory
	factory = transport.NewLocalFactory(ctx, basePID, func(ctx context.Context, id cluster.NodeID, ch cluster.Channel) {
		w := New(id, ch, factory, opts)
		_ = w.Run(ctx)
	})
	return factory
}
