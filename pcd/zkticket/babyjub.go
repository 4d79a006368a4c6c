package zkticket

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Baby Jubjub in the coordinates used by circom and the ticket issuer:
// a*x^2 + y^2 = 1 + d*x^2*y^2 with a = 168700, d = 168696.
var babyJubA, babyJubD fr.Element

func init() {
	babyJubA.SetUint64(168700)
	babyJubD.SetUint64(168696)
}

func onBabyJubJub(x, y *fr.Element) bool {
	var x2, y2, lhs, rhs, t fr.Element
	x2.Square(x)
	y2.Square(y)

	lhs.Mul(&babyJubA, &x2)
	lhs.Add(&lhs, &y2)

	t.Mul(&x2, &y2)
	rhs.Mul(&babyJubD, &t)
	t.SetOne()
	rhs.Add(&rhs, &t)

	return lhs.Equal(&rhs)
}

// PointForY returns the point with the given y coordinate, when one exists.
func PointForY(y fr.Element) (fr.Element, bool) {
	// x^2 = (1 - y^2) / (a - d*y^2)
	var y2, num, den, x2, x fr.Element
	y2.Square(&y)
	num.SetOne()
	num.Sub(&num, &y2)
	den.Mul(&babyJubD, &y2)
	den.Sub(&babyJubA, &den)
	if den.IsZero() {
		return x, false
	}
	den.Inverse(&den)
	x2.Mul(&num, &den)
	if x.Sqrt(&x2) == nil {
		return x, false
	}
	return x, true
}
