package lattice

// MaxScalar is a lattice over int64 ordered by the usual integer
// order and joined by max. It is the simplest possible lattice,
// useful for tests and for clients that only need a monotone
// high-water mark (e.g. a logical clock or a progress counter).
type MaxScalar struct{}

// Bottom returns int64(0).
func (MaxScalar) Bottom() Value {
	return int64(0)
}

// Join returns the larger of a and b.
func (MaxScalar) Join(a, b Value) Value {
	av, bv := a.(int64), b.(int64)
	if av > bv {
		return av
	}
	return bv
}

// LessEq reports a <= b.
func (MaxScalar) LessEq(a, b Value) bool {
	return a.(int64) <= b.(int64)
}
