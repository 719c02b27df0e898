package discovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rexliu/idelink/pkg/core"
	"github.com/rexliu/idelink/pkg/ipc"
)

// Discoverer probes every port of a range concurrently.
type Discoverer struct {
	Prober    Prober
	BasePort  int
	PortCount int
}

// NewDiscoverer returns a discoverer over the default port range.
func NewDiscoverer(p Prober) *Discoverer {
	return &Discoverer{Prober: p, BasePort: ipc.DefaultBasePort, PortCount: ipc.DefaultPortCount}
}

// Discover returns every instance in range that satisfies q, ordered by port. Finding nothing is
// not an error. If ctx ends first Discover returns ctx.Err() without waiting for probes in flight.
func (d *Discoverer) Discover(ctx context.Context, q Query) ([]core.Instance, error) {
	f, err := q.compile()
	if err != nil {
		return nil, err
	}
	if d.PortCount <= 0 {
		return nil, nil
	}

	slots := make([]*core.Instance, d.PortCount)
	var g errgroup.Group
	for i := range slots {
		port := d.BasePort + i
		g.Go(func() error {
			if inst, ok := d.Prober.probe(ctx, port, f); ok {
				slots[i] = &inst
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	found := make([]core.Instance, 0, len(slots))
	for _, inst := range slots {
		if inst != nil {
			found = append(found, *inst)
		}
	}
	d.Prober.Logger.Debug().
		Str("workspace", q.Workspace).
		Int("base", d.BasePort).
		Int("count", d.PortCount).
		Int("found", len(found)).
		Msg("discovery complete")
	return found, nil
}

// DiscoverAny returns every listening instance regardless of workspace.
func (d *Discoverer) DiscoverAny(ctx context.Context, q Query) ([]core.Instance, error) {
	q.Workspace = ""
	return d.Discover(ctx, q)
}
