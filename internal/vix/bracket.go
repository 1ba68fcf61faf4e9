package vix

import (
	"time"

	"github.com/atmx/vix-engine/internal/model"
)

// Calendar-day windows for the near and far expiries, inclusive.
const (
	NearMinDays = 23
	NearMaxDays = 30
	FarMinDays  = 31
	FarMaxDays  = 37
)

// SelectExpiryBracket picks the latest expiry in [date+23d, date+30d] and
// the earliest expiry in [date+31d, date+37d]. Expiries are compared by
// calendar day; duplicates are harmless.
func SelectExpiryBracket(date time.Time, expiries []time.Time) (model.ExpiryBracket, error) {
	var near, far time.Time
	var haveNear, haveFar bool

	for _, raw := range expiries {
		e := model.Day(raw)
		days := model.DaysBetween(date, e)
		switch {
		case days >= NearMinDays && days <= NearMaxDays:
			if !haveNear || e.After(near) {
				near, haveNear = e, true
			}
		case days >= FarMinDays && days <= FarMaxDays:
			if !haveFar || e.Before(far) {
				far, haveFar = e, true
			}
		}
	}

	if !haveNear || !haveFar {
		return model.ExpiryBracket{}, ErrNoExpiryBracket
	}
	return model.ExpiryBracket{Near: near, Far: far}, nil
}
