package domain

import "math"

// valueEpsilon is the tolerance used for value-object equality. Prices and
// quantities are accumulated through weighted averages, so exact float
// comparison is never meaningful.
const valueEpsilon = 1e-9

// Quantity is a non-negative amount of an instrument.
type Quantity float64

// NewQuantity validates and returns a Quantity. Zero is allowed (a fully
// reduced position holds zero), negative is not.
func NewQuantity(v float64) (Quantity, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, Errf(KindInvalidArgument, "quantity must be non-negative, got %v", v)
	}
	return Quantity(v), nil
}

// Equals compares two quantities within tolerance.
func (q Quantity) Equals(other Quantity) bool {
	return math.Abs(float64(q)-float64(other)) < valueEpsilon
}

// IsZero reports whether the quantity is zero within tolerance.
func (q Quantity) IsZero() bool { return q.Equals(0) }

// Sub returns q - other, failing if the result would be negative. Residue
// within tolerance snaps to zero so an exactly-exhausting subtraction is not
// rejected for float noise.
func (q Quantity) Sub(other Quantity) (Quantity, error) {
	d := float64(q) - float64(other)
	if d < 0 && d > -valueEpsilon {
		d = 0
	}
	return NewQuantity(d)
}

// Price is a strictly positive per-unit price.
type Price float64

// NewPrice validates and returns a Price.
func NewPrice(v float64) (Price, error) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, Errf(KindInvalidArgument, "price must be positive, got %v", v)
	}
	return Price(v), nil
}

// Equals compares two prices within tolerance.
func (p Price) Equals(other Price) bool {
	return math.Abs(float64(p)-float64(other)) < valueEpsilon
}

// Notional returns quantity x price.
func Notional(q Quantity, p Price) float64 {
	return float64(q) * float64(p)
}
