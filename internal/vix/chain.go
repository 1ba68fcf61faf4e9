package vix

import (
	"math"
	"sort"
	"time"

	"github.com/atmx/vix-engine/internal/model"
)

// MinOtmStrikes is the smallest out-of-the-money strip a variance can be
// computed from.
const MinOtmStrikes = 3

// maxConsecutiveGaps ends a strike walk. The counter is local to one
// walking direction and resets on every liquid strike.
const maxConsecutiveGaps = 2

// ChainResult is the filtered view of one expiry's chain.
type ChainResult struct {
	Expiry    time.Time
	ATMStrike float64
	Quote     model.ForwardQuote
	// OTM maps each out-of-the-money strike to its mid price.
	OTM map[float64]float64
}

// Strikes returns the OTM strikes in ascending order.
func (r *ChainResult) Strikes() []float64 {
	out := make([]float64, 0, len(r.OTM))
	for k := range r.OTM {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

// legs holds the call and put mid of one strike. Zero means absent.
type legs struct {
	call float64
	put  float64
}

func (l legs) liquid() bool {
	return l.call > 0 && l.put > 0
}

// FilterChain derives the forward price, the at-the-money strike K0 and
// the out-of-the-money strip for one expiry.
//
// Strikes at or below the underlying price are walked downwards, strikes
// above it upwards. A strike needs a positive call and put mid to count;
// two illiquid strikes in a row end that direction's walk.
func FilterChain(quotes []model.Quote, underlyingPrice float64, expiry time.Time, rate, years float64) (*ChainResult, error) {
	book := collectLegs(quotes, expiry)

	var below, above []float64
	for k := range book {
		if k <= underlyingPrice {
			below = append(below, k)
		} else {
			above = append(above, k)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(below)))
	sort.Float64s(above)

	diffs := make(map[float64]float64)
	walk(below, book, diffs)
	walk(above, book, diffs)

	if len(diffs) == 0 {
		return nil, ErrNoAtmCandidate
	}

	survivors := make([]float64, 0, len(diffs))
	for k := range diffs {
		survivors = append(survivors, k)
	}
	sort.Float64s(survivors)

	// Ties on |call - put| resolve to the lowest strike.
	atm := survivors[0]
	for _, k := range survivors[1:] {
		if math.Abs(diffs[k]) < math.Abs(diffs[atm]) {
			atm = k
		}
	}

	growth, err := TimeMultiple(rate, years)
	if err != nil {
		return nil, err
	}
	forward := atm + growth*diffs[atm]
	if !finite(forward) {
		return nil, ErrNotComputable
	}
	if forward <= 0 {
		return nil, ErrNoForwardPrice
	}

	k0 := math.NaN()
	for _, k := range survivors {
		if k > forward {
			break
		}
		k0 = k
	}
	if math.IsNaN(k0) {
		return nil, ErrNoForwardPrice
	}

	otm := make(map[float64]float64, len(survivors))
	for _, k := range survivors {
		l := book[k]
		var sum float64
		var n int
		if k >= forward {
			sum += l.call
			n++
		}
		if k <= forward {
			sum += l.put
			n++
		}
		otm[k] = sum / float64(n)
	}
	if len(otm) < MinOtmStrikes {
		return nil, ErrInsufficientOtmStrikes
	}

	return &ChainResult{
		Expiry:    model.Day(expiry),
		ATMStrike: atm,
		Quote:     model.ForwardQuote{Forward: forward, K0: k0},
		OTM:       otm,
	}, nil
}

// collectLegs restricts quotes to one expiry and indexes them by strike.
// A repeated contract keeps its last quote.
func collectLegs(quotes []model.Quote, expiry time.Time) map[float64]legs {
	book := make(map[float64]legs)
	for _, q := range quotes {
		if !model.SameDay(q.Key.Expiry, expiry) {
			continue
		}
		k := q.Key.Strike.InexactFloat64()
		mid := q.Mid.InexactFloat64()
		l := book[k]
		switch q.Key.Right {
		case model.Call:
			l.call = mid
		case model.Put:
			l.put = mid
		default:
			continue
		}
		book[k] = l
	}
	return book
}

// walk records call - put for each liquid strike until the gap limit.
func walk(strikes []float64, book map[float64]legs, diffs map[float64]float64) {
	gaps := 0
	for _, k := range strikes {
		l := book[k]
		if l.liquid() {
			diffs[k] = l.call - l.put
			gaps = 0
			continue
		}
		gaps++
		if gaps >= maxConsecutiveGaps {
			return
		}
	}
}

// TimeMultiple returns e^(rate*years), the forward growth factor.
func TimeMultiple(rate, years float64) (float64, error) {
	m := math.Exp(rate * years)
	if !finite(m) || m == 0 {
		return 0, ErrNotComputable
	}
	return m, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
