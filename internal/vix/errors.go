package vix

import "errors"

// Soft failures local to one (underlying, date) observation. None of them
// is fatal to a batch; callers record a missing value instead.
var (
	// ErrNoExpiryBracket is returned when the near or far window is empty.
	ErrNoExpiryBracket = errors.New("vix: no expiry bracket around the 30-day target")

	// ErrNoAtmCandidate is returned when no strike has both legs quoted.
	ErrNoAtmCandidate = errors.New("vix: no strike with both call and put quoted")

	// ErrNoForwardPrice is returned when the forward is non-positive or no
	// liquid strike lies at or below it.
	ErrNoForwardPrice = errors.New("vix: forward price could not be established")

	// ErrInsufficientOtmStrikes is returned when fewer than MinOtmStrikes
	// out-of-the-money strikes survive liquidity truncation.
	ErrInsufficientOtmStrikes = errors.New("vix: insufficient out-of-the-money strikes")

	// ErrNotComputable is returned for degenerate interpolation, negative
	// cumulative variance, or non-finite intermediate arithmetic.
	ErrNotComputable = errors.New("vix: index not computable")
)

// Reason maps a soft failure to a stable snake_case code. It returns ""
// for nil and "error" for anything outside the taxonomy.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoExpiryBracket):
		return "no_expiry_bracket"
	case errors.Is(err, ErrNoAtmCandidate):
		return "no_atm_candidate"
	case errors.Is(err, ErrNoForwardPrice):
		return "no_forward_price"
	case errors.Is(err, ErrInsufficientOtmStrikes):
		return "insufficient_otm_strikes"
	case errors.Is(err, ErrNotComputable):
		return "not_computable"
	default:
		return "error"
	}
}

// IsSoft reports whether err belongs to the per-observation taxonomy.
func IsSoft(err error) bool {
	r := Reason(err)
	return r != "" && r != "error"
}
