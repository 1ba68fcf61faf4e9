package vix

import "sort"

// Variance computes the annualized variance contribution of one expiry:
//
//	σ² = (2/T) Σ (ΔK_i / K_i²) · e^(rT) · Q(K_i) − (1/T) · (F/K0 − 1)²
//
// A negative result is returned unchanged.
func Variance(otm map[float64]float64, forward, k0, years, timeMultiple float64) (float64, error) {
	if len(otm) < MinOtmStrikes {
		return 0, ErrInsufficientOtmStrikes
	}
	if years <= 0 || k0 <= 0 {
		return 0, ErrNotComputable
	}

	adj := forward/k0 - 1
	v := (2/years)*WeightedSum(otm, timeMultiple) - (1/years)*adj*adj
	if !finite(v) {
		return 0, ErrNotComputable
	}
	return v, nil
}

// WeightedSum returns Σ (ΔK_i / K_i²) · timeMultiple · Q(K_i) over the
// strip sorted by strike. ΔK_i is the gap to the only neighbour at either
// end and half the distance between both neighbours inside. The strip
// must hold at least two strikes.
func WeightedSum(otm map[float64]float64, timeMultiple float64) float64 {
	strikes := make([]float64, 0, len(otm))
	for k := range otm {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	var sum float64
	last := len(strikes) - 1
	for i, k := range strikes {
		var dk float64
		switch i {
		case 0:
			dk = strikes[1] - strikes[0]
		case last:
			dk = strikes[last] - strikes[last-1]
		default:
			dk = (strikes[i+1] - strikes[i-1]) / 2
		}
		sum += dk / (k * k) * timeMultiple * otm[k]
	}
	return sum
}
