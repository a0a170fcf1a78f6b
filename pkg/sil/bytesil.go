package sil

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Range limits for the two ByteSil fields.
const (
	RhoMin   = -8
	RhoMax   = 7
	ThetaMax = 15

	// phaseStep is the angle of one theta step (π/8).
	phaseStep = math.Pi / 8
)

// ByteSil is an 8-bit log-polar complex number.
//
// Rho is the log-magnitude in [-8, 7] (linear magnitude e^rho) and Theta is
// the phase index in [0, 15] (phase theta·π/8). The packed form stores rho in
// the high nibble (two's complement) and theta in the low nibble.
type ByteSil struct {
	Rho   int8
	Theta uint8
}

var (
	// Null is the vacuum value; it stands for zero.
	Null = ByteSil{Rho: RhoMin, Theta: 0}

	// One is the unit positive real.
	One = ByteSil{Rho: 0, Theta: 0}

	// Max has the largest magnitude and phase index.
	Max = ByteSil{Rho: RhoMax, Theta: ThetaMax}
)

// New returns a ByteSil with rho clamped to [-8, 7] and theta wrapped mod 16.
func New(rho, theta int) ByteSil {
	return ByteSil{Rho: clampRho(rho), Theta: wrapTheta(theta)}
}

// FromU8 unpacks a byte. Every byte is a valid ByteSil.
func FromU8(b byte) ByteSil {
	return ByteSil{Rho: int8(b) >> 4, Theta: b & 0x0F}
}

// ToU8 packs the value into one byte.
func (b ByteSil) ToU8() byte {
	return byte(b.Rho)<<4 | b.Theta&0x0F
}

// IsNull reports whether b is the vacuum value.
func (b ByteSil) IsNull() bool {
	return b == Null
}

// Mul adds log-magnitudes (saturating) and phase indices (mod 16).
func (b ByteSil) Mul(o ByteSil) ByteSil {
	return New(int(b.Rho)+int(o.Rho), int(b.Theta)+int(o.Theta))
}

// Div is the inverse of Mul.
func (b ByteSil) Div(o ByteSil) ByteSil {
	return New(int(b.Rho)-int(o.Rho), int(b.Theta)-int(o.Theta))
}

// Pow raises b to the integer power n. Negative n is allowed.
func (b ByteSil) Pow(n int) ByteSil {
	return New(int(b.Rho)*n, int(b.Theta)*n)
}

// Root takes the principal n-th root on the grid: rho is divided with
// truncation toward zero and theta is floor-divided. A negative n yields the
// reciprocal of the |n|-th root. Root(0) is One.
func (b ByteSil) Root(n int) ByteSil {
	if n == 0 {
		return One
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	r := New(int(b.Rho)/abs, int(b.Theta)/abs)
	if n < 0 {
		return r.Inv()
	}
	return r
}

// Conj negates the phase.
func (b ByteSil) Conj() ByteSil {
	return New(int(b.Rho), -int(b.Theta))
}

// Inv returns the multiplicative inverse on the grid.
func (b ByteSil) Inv() ByteSil {
	return New(-int(b.Rho), -int(b.Theta))
}

// Mix is the complex mean of the two values, re-quantized with FromComplex.
func (b ByteSil) Mix(o ByteSil) ByteSil {
	return FromComplex((b.ToComplex() + o.ToComplex()) / 2)
}

// Xor combines the packed bytes. It is a diffusion operation and has no
// complex-domain meaning.
func (b ByteSil) Xor(o ByteSil) ByteSil {
	return FromU8(b.ToU8() ^ o.ToU8())
}

// Magnitude returns e^rho, or 0 for Null.
func (b ByteSil) Magnitude() float64 {
	if b.IsNull() {
		return 0
	}
	return math.Exp(float64(b.Rho))
}

// Phase returns theta·π/8 in radians.
func (b ByteSil) Phase() float64 {
	return float64(b.Theta) * phaseStep
}

// ToComplex converts to a complex128. Null maps to exactly zero.
func (b ByteSil) ToComplex() complex128 {
	if b.IsNull() {
		return 0
	}
	return cmplx.Rect(b.Magnitude(), b.Phase())
}

// FromComplex quantizes z to the nearest grid point using math.Round (half
// away from zero) on both ln|z| and arg(z)/(π/8). Values whose log-magnitude
// falls below -8 collapse to Null.
func FromComplex(z complex128) ByteSil {
	mag := cmplx.Abs(z)
	if mag == 0 || math.IsNaN(mag) {
		return Null
	}
	logMag := math.Log(mag)
	if logMag < RhoMin {
		return Null
	}
	rho := clampRho(int(math.Round(logMag)))
	theta := wrapTheta(int(math.Round(cmplx.Phase(z) / phaseStep)))
	return ByteSil{Rho: rho, Theta: theta}
}

// String renders the value as rho:theta.
func (b ByteSil) String() string {
	return fmt.Sprintf("%d:%d", b.Rho, b.Theta)
}

func clampRho(rho int) int8 {
	if rho < RhoMin {
		return RhoMin
	}
	if rho > RhoMax {
		return RhoMax
	}
	return int8(rho)
}

func wrapTheta(theta int) uint8 {
	t := theta % 16
	if t < 0 {
		t += 16
	}
	return uint8(t)
}
