package exec

import "errors"

// Error kinds per §7. The core never retries; every error propagates
// synchronously to the caller of the operation that produced it.
var (
	// ErrConflictingBind is returned when a non-lattice cell already
	// bound to one value is bound again with a different one, or when
	// a redeclare's type disagrees with the existing cell.
	ErrConflictingBind = errors.New("exec: conflicting bind")

	// ErrUnknownVar is returned when an operation names a VarId with
	// no cell on this partition. Routing (component E) is expected to
	// have already resolved the id to this partition; seeing this
	// error here means the id was never declared anywhere.
	ErrUnknownVar = errors.New("exec: unknown variable")

	// ErrNotImplemented is reserved for paths the core explicitly does
	// not support, such as binding to an alias with no coordinator
	// configured to carry out the fetch protocol.
	ErrNotImplemented = errors.New("exec: not implemented")
)
