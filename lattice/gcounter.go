package lattice

import "golang.org/x/exp/maps"

// GCounter is a grow-only counter lattice: a map from replica name to
// its local count, joined by taking the elementwise maximum. This is
// the reference lattice used in the threshold-read scenario (§8
// scenario 3): bind(inc(bottom)) advances a single replica's count,
// and a threshold read blocks until every tracked replica has reached
// at least the requested count.
type GCounter struct{}

// GCounterValue is the concrete representation of a GCounter value.
// It must be treated as immutable once stored in a cell: Join and Inc
// both return fresh maps rather than mutating their inputs.
type GCounterValue map[string]int64

// Bottom returns the empty counter.
func (GCounter) Bottom() Value {
	return GCounterValue{}
}

// Join returns the elementwise maximum of a and b.
func (GCounter) Join(a, b Value) Value {
	av, bv := a.(GCounterValue), b.(GCounterValue)
	out := maps.Clone(av)
	if out == nil {
		out = GCounterValue{}
	}
	for k, v := range bv {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// LessEq reports whether every replica count in a is no greater than
// the corresponding count in b.
func (GCounter) LessEq(a, b Value) bool {
	av, bv := a.(GCounterValue), b.(GCounterValue)
	for k, v := range av {
		if v > bv[k] {
			return false
		}
	}
	return true
}

// Inc returns a copy of v with replica's count incremented by one.
// Clients use this to build the payload passed to bind on a GCounter
// cell.
func Inc(v GCounterValue, replica string) GCounterValue {
	out := maps.Clone(v)
	if out == nil {
		out = GCounterValue{}
	}
	out[replica]++
	return out
}
