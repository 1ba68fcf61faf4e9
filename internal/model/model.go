// Package model defines the core domain types shared across the vix engine.
// Values that leave the engine (quotes, strikes, index levels, ranks) use
// shopspring/decimal; the numeric core converts to float64 internally.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Right is the exercise right of an option contract.
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// Valid reports whether r is Call or Put.
func (r Right) Valid() bool {
	return r == Call || r == Put
}

// ContractKey identifies one option contract. Two keys are the same
// contract when Equal reports true.
type ContractKey struct {
	Expiry time.Time       `json:"expiry"`
	Strike decimal.Decimal `json:"strike"`
	Right  Right           `json:"right"`
}

// Equal compares keys by value. Expiries are compared by calendar day.
func (k ContractKey) Equal(o ContractKey) bool {
	return SameDay(k.Expiry, o.Expiry) && k.Strike.Equal(o.Strike) && k.Right == o.Right
}

// Quote is the mid price of one contract in a chain snapshot.
type Quote struct {
	Key ContractKey     `json:"key"`
	Mid decimal.Decimal `json:"mid"`
}

// Snapshot is the option chain of one underlying on one date.
// Quote order is irrelevant.
type Snapshot struct {
	Underlying      string          `json:"underlying"`
	Date            time.Time       `json:"date"`
	UnderlyingPrice decimal.Decimal `json:"underlying_price"`
	Quotes          []Quote         `json:"quotes"`
}

// Expiries returns the distinct expiry dates present in the snapshot.
func (s *Snapshot) Expiries() []time.Time {
	seen := make(map[string]bool)
	var out []time.Time
	for _, q := range s.Quotes {
		day := DayKey(q.Key.Expiry)
		if seen[day] {
			continue
		}
		seen[day] = true
		out = append(out, Day(q.Key.Expiry))
	}
	return out
}

// ExpiryBracket is the pair of expiries straddling the 30-day target.
type ExpiryBracket struct {
	Near time.Time `json:"near"`
	Far  time.Time `json:"far"`
}

// ForwardQuote is the forward price and at-the-money strike of one expiry.
type ForwardQuote struct {
	Forward float64 `json:"forward"`
	K0      float64 `json:"k0"`
}

// ExpiryVariance is the variance contribution of one expiry. It only
// exists for a successful computation; a failed expiry is reported as an
// error and never as a zero variance.
type ExpiryVariance struct {
	Expiry      time.Time       `json:"expiry"`
	Years       decimal.Decimal `json:"years"`
	Rate        decimal.Decimal `json:"rate"`
	Forward     decimal.Decimal `json:"forward"`
	K0          decimal.Decimal `json:"k0"`
	StrikeCount int             `json:"strike_count"`
	Variance    decimal.Decimal `json:"variance"`
}

// IndexResult is one computed volatility index value with its two legs.
type IndexResult struct {
	Underlying string          `json:"underlying"`
	Date       time.Time       `json:"date"`
	Value      decimal.Decimal `json:"vix"`
	Near       ExpiryVariance  `json:"near"`
	Far        ExpiryVariance  `json:"far"`
}

// Observation is the persisted daily record for one underlying. Nil
// pointers mark values that could not be computed; Reason carries the
// soft-failure code for a missing index value.
type Observation struct {
	ID              string           `json:"id" db:"id"`
	Underlying      string           `json:"underlying" db:"underlying"`
	Date            time.Time        `json:"date" db:"date"`
	UnderlyingPrice decimal.Decimal  `json:"underlying_price" db:"underlying_price"`
	ATMIV           *decimal.Decimal `json:"atm_iv" db:"atm_iv"`
	VIX             *decimal.Decimal `json:"vix" db:"vix"`
	NearExpiry      *time.Time       `json:"near_expiry,omitempty" db:"near_expiry"`
	FarExpiry       *time.Time       `json:"far_expiry,omitempty" db:"far_expiry"`
	IVRank          *decimal.Decimal `json:"iv_rank" db:"iv_rank"`
	IVPercentile    *decimal.Decimal `json:"iv_percentile" db:"iv_percentile"`
	VIXRank         *decimal.Decimal `json:"vix_rank" db:"vix_rank"`
	VIXPercentile   *decimal.Decimal `json:"vix_percentile" db:"vix_percentile"`
	Reason          string           `json:"reason,omitempty" db:"reason"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats t as YYYY-MM-DD in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return DayKey(a) == DayKey(b)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
