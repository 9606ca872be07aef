package partition

import "errors"

// ErrRoutingUnavailable is returned when an operation names a VarId
// whose owning partition has no configured Peer: a networked cluster
// whose topology configuration is missing an entry, or a partition
// that has not finished joining. Ownership assignment is assumed
// stable during normal operation; this error covers the
// misconfiguration case, not a membership change.
var ErrRoutingUnavailable = errors.New("partition: routing unavailable")
