package physics

import (
	"math/bits"
	"time"
)

// Q32.32 fixed point; every peer steps bodies with integer math only
const (
	Shift = 32
	Scale = 1 << Shift
)

func FromInt(i int) int64 { return int64(i) << Shift }
func ToInt(f int64) int   { return int(f >> Shift) }

// FromFloat32 converts a wire value; float32 to float64 widening is exact
func FromFloat32(f float32) int64 { return int64(float64(f) * Scale) }
func ToFloat(f int64) float64     { return float64(f) / Scale }

// Mul multiplies two Q32.32 values with a 128-bit intermediate
func Mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	ua, ub := uint64(a), uint64(b)
	if a < 0 {
		ua = uint64(-a)
	}
	if b < 0 {
		ub = uint64(-b)
	}
	hi, lo := bits.Mul64(ua, ub)
	result := int64((hi << 32) | (lo >> 32))
	if negative {
		return -result
	}
	return result
}

// Abs returns absolute value
func Abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// StepSeconds converts a step duration into Q32.32 seconds without floating point
func StepSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(d), Scale)
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return int64(q)
}
