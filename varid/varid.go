// Package varid defines the opaque, globally unique identifier that
// names a variable (a cell) in the store, and the pure routing
// function that maps an identifier to an owning partition.
package varid

import (
	"github.com/dchest/siphash"
	"github.com/google/uuid"
)

// ID is an opaque, globally unique token naming a cell. It is
// comparable and suitable as a map key.
type ID = uuid.UUID

// Nil is the zero-value ID, never allocated by New.
var Nil = uuid.Nil

// New allocates a fresh, globally unique identifier.
func New() ID {
	return uuid.New()
}

// Parse decodes the canonical string form of an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// routing keys: fixed for the lifetime of a cluster, per the §6
// requirement that owner() be stable during normal operation.
const (
	routeKey0 uint64 = 0x6c617474696365 // "lattice" in ASCII, truncated
	routeKey1 uint64 = 0x646174616669 // "datafi" in ASCII
)

// Owner computes the partition index that owns id, out of n total
// partitions. It is a pure function: the same id and n always produce
// the same result, independent of process, time, or cluster history.
func Owner(id ID, n int) int {
	if n <= 0 {
		panic("varid: Owner called with n <= 0")
	}
	h := siphash.Hash(routeKey0, routeKey1, id[:])
	return int(h % uint64(n))
}
