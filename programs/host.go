// Package programs defines the interface the core executor forwards
// thread-spawn and program-registration requests to. The program host
// itself — code loading, compilation, and the user-program runtime —
// is an external collaborator out of scope for this core (spec.md
// §1); only the interface it must satisfy is specified here.
package programs

import (
	"context"

	"github.com/latticeflow/dflow/store"
)

// Host registers and runs user programs by name. Execute is called on
// its own goroutine by the executor and should run to completion or
// until ctx is cancelled; the executor does not wait for it.
type Host interface {
	Register(name string, source []byte) error
	Execute(ctx context.Context, name string, args ...store.Value) error
}

// Nop is a Host that registers nothing and runs nothing. It lets an
// Executor be constructed and tested without a real program host.
type Nop struct{}

func (Nop) Register(name string, source []byte) error { return nil }

func (Nop) Execute(ctx context.Context, name string, args ...store.Value) error { return nil }
