package vix

import "math"

// TargetYears is the 30-calendar-day constant maturity.
const TargetYears = 30.0 / 365.0

// Leg is one expiry's variance and its time to expiry in years.
type Leg struct {
	Variance float64
	Years    float64
}

// Aggregate interpolates the near and far variances to the 30-day target
// and returns 100·sqrt of the result:
//
//	[T1·σ1²·(T2−T30)/(T2−T1) + T2·σ2²·(T30−T1)/(T2−T1)] / T30
//
// Equal maturities and a negative interpolated variance are not
// computable; neither is clamped.
func Aggregate(near, far Leg) (float64, error) {
	span := far.Years - near.Years
	if span == 0 {
		return 0, ErrNotComputable
	}

	wNear := (far.Years - TargetYears) / span
	wFar := (TargetYears - near.Years) / span
	cum := (near.Years*near.Variance*wNear + far.Years*far.Variance*wFar) / TargetYears
	if !finite(cum) || cum < 0 {
		return 0, ErrNotComputable
	}

	v := 100 * math.Sqrt(cum)
	if !finite(v) {
		return 0, ErrNotComputable
	}
	return v, nil
}
