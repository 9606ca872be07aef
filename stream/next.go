// Package stream implements the successor allocator (§4.F): turning a
// chain of single-assignment cells into an ordered stream by lazily
// allocating and linking each cell's next pointer.
package stream

import (
	"context"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/varid"
)

// Declare creates a fresh cell for a newly allocated successor
// VarId on whatever partition that id hashes to. The executor
// supplies this as a closure over its coordinator so this package
// never needs to know about partitions or routing.
type Declare func(ctx context.Context, id varid.ID, typ lattice.Type, hasType bool) error

// NextKey returns current if it is already set; otherwise it
// allocates a fresh VarId, declares a cell for it through declare (so
// the new cell lives on whatever partition that id hashes to, not
// necessarily this one), and returns the new id. A cell that never
// streams never pays this cost, since NextKey is only called on
// demand, from bind, next, and the handling of an incoming fetch.
func NextKey(ctx context.Context, current *varid.ID, typ lattice.Type, hasType bool, declare Declare) (varid.ID, error) {
	if current != nil {
		return *current, nil
	}
	id := varid.New()
	if err := declare(ctx, id, typ, hasType); err != nil {
		return varid.ID{}, err
	}
	return id, nil
}
