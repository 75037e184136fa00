package bridge

import (
	"context"

	"golang.org/x/sync/errgroup"
	"pkt.systems/nexus/core"
	"pkt.systems/nexus/schema"
)

// Catalog is the model list of both backends. A backend that could not be
// listed carries its error instead.
type Catalog struct {
	Local     []schema.ModelInfo
	Remote    []schema.ModelInfo
	LocalErr  error
	RemoteErr error
}

// ListModels queries both backends concurrently.
func ListModels(ctx context.Context, lister core.ModelLister) Catalog {
	var out Catalog
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Local, out.LocalErr = lister.LocalModels(gctx)
		return nil
	})
	g.Go(func() error {
		out.Remote, out.RemoteErr = lister.RemoteModels(gctx)
		return nil
	})
	_ = g.Wait()
	return out
}
