// Package contract handles OCC option symbol parsing and formatting.
// Chain snapshots may identify contracts either by an explicit
// (expiry, strike, right) triple or by an OCC symbol; this package turns
// the latter into a model.ContractKey.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/model"
)

// symbolRegex matches: [O:]{root}{YYMMDD}{C|P}{strike*1000, 8 digits}
// Example: SPY250117C00580000
var symbolRegex = regexp.MustCompile(
	`^(?:O:)?([A-Z][A-Z0-9.]{0,5})(\d{6})([CP])(\d{8})$`,
)

var (
	ErrInvalidSymbol = errors.New("contract: invalid option symbol")
	ErrInvalidRight  = errors.New("contract: right must be C or P")
	ErrInvalidStrike = errors.New("contract: strike must be positive")
	ErrRootMismatch  = errors.New("contract: symbol root does not match underlying")
)

// rootAliases lists the extra OCC roots listed on an index, such as the
// PM-settled weeklies trading as SPXW.
var rootAliases = map[string][]string{
	"SPX": {"SPXW", "SPXPM"},
	"NDX": {"NDXP"},
	"RUT": {"RUTW"},
	"VIX": {"VIXW"},
}

// MatchesUnderlying reports whether an OCC root belongs to underlying.
func MatchesUnderlying(root, underlying string) bool {
	root = strings.ToUpper(root)
	underlying = strings.ToUpper(underlying)
	if root == underlying {
		return true
	}
	for _, alias := range rootAliases[underlying] {
		if root == alias {
			return true
		}
	}
	return false
}

var strikeScale = decimal.NewFromInt(1000)

// Contract is a parsed option symbol.
type Contract struct {
	Symbol     string            `json:"symbol"`
	Underlying string            `json:"underlying"`
	Key        model.ContractKey `json:"key"`
}

// ParseSymbol parses and validates an OCC option symbol.
func ParseSymbol(symbol string) (*Contract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	matches := symbolRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {root}{YYMMDD}{C|P}{strike*1000})",
			ErrInvalidSymbol, symbol)
	}

	expiry, err := time.Parse("060102", matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidSymbol, matches[2])
	}

	raw, err := decimal.NewFromString(matches[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidSymbol, matches[4])
	}
	strike := raw.Div(strikeScale)
	if !strike.IsPositive() {
		return nil, ErrInvalidStrike
	}

	return &Contract{
		Symbol:     strings.TrimPrefix(s, "O:"),
		Underlying: matches[1],
		Key: model.ContractKey{
			Expiry: expiry,
			Strike: strike,
			Right:  model.Right(matches[3]),
		},
	}, nil
}

// FormatSymbol renders a contract key as an OCC symbol for underlying.
func FormatSymbol(underlying string, key model.ContractKey) (string, error) {
	if !key.Right.Valid() {
		return "", ErrInvalidRight
	}
	if !key.Strike.IsPositive() {
		return "", ErrInvalidStrike
	}
	milli := key.Strike.Mul(strikeScale).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying),
		key.Expiry.UTC().Format("060102"),
		key.Right,
		milli,
	), nil
}

// NewKey builds a validated contract key from its parts. right accepts
// C/P as well as call/put in any case.
func NewKey(expiry time.Time, strike decimal.Decimal, right string) (model.ContractKey, error) {
	var r model.Right
	switch strings.ToUpper(strings.TrimSpace(right)) {
	case "C", "CALL":
		r = model.Call
	case "P", "PUT":
		r = model.Put
	default:
		return model.ContractKey{}, fmt.Errorf("%w: %q", ErrInvalidRight, right)
	}
	if !strike.IsPositive() {
		return model.ContractKey{}, ErrInvalidStrike
	}
	return model.ContractKey{Expiry: model.Day(expiry), Strike: strike, Right: r}, nil
}
