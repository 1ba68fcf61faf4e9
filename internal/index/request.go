package index

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/contract"
	"github.com/atmx/vix-engine/internal/engine"
	"github.com/atmx/vix-engine/internal/model"
)

const dateLayout = "2006-01-02"

// QuoteRequest is one contract mid. The contract is named either by an
// OCC symbol or by expiry, strike and right.
type QuoteRequest struct {
	Symbol string          `json:"symbol,omitempty"` // e.g. SPX250131C05000000
	Expiry string          `json:"expiry,omitempty"` // YYYY-MM-DD
	Strike decimal.Decimal `json:"strike"`
	Right  string          `json:"right,omitempty"` // C, P, call or put
	Mid    decimal.Decimal `json:"mid"`
}

// SnapshotRequest is the JSON body for POST /observations and POST /vix.
type SnapshotRequest struct {
	Underlying      string           `json:"underlying"`
	Date            string           `json:"date"` // YYYY-MM-DD
	UnderlyingPrice decimal.Decimal  `json:"underlying_price"`
	ATMIV           *decimal.Decimal `json:"atm_iv,omitempty"`
	Quotes          []QuoteRequest   `json:"quotes"`
}

// Input validates the request and converts it for the engine.
func (req *SnapshotRequest) Input() (*engine.Input, error) {
	underlying := strings.ToUpper(strings.TrimSpace(req.Underlying))
	if underlying == "" {
		return nil, fmt.Errorf("underlying is required")
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD")
	}
	if !req.UnderlyingPrice.IsPositive() {
		return nil, fmt.Errorf("underlying_price must be positive")
	}

	quotes := make([]model.Quote, 0, len(req.Quotes))
	for i, q := range req.Quotes {
		key, err := q.key(underlying)
		if err != nil {
			return nil, fmt.Errorf("quotes[%d]: %w", i, err)
		}
		if q.Mid.IsNegative() {
			return nil, fmt.Errorf("quotes[%d]: mid must not be negative", i)
		}
		quotes = append(quotes, model.Quote{Key: key, Mid: q.Mid})
	}

	return &engine.Input{
		Snapshot: model.Snapshot{
			Underlying:      underlying,
			Date:            date,
			UnderlyingPrice: req.UnderlyingPrice,
			Quotes:          quotes,
		},
		ATMIV: req.ATMIV,
	}, nil
}

func (q *QuoteRequest) key(underlying string) (model.ContractKey, error) {
	if q.Symbol != "" {
		c, err := contract.ParseSymbol(q.Symbol)
		if err != nil {
			return model.ContractKey{}, err
		}
		if !contract.MatchesUnderlying(c.Underlying, underlying) {
			return model.ContractKey{}, fmt.Errorf("%w: %s in %s snapshot",
				contract.ErrRootMismatch, c.Underlying, underlying)
		}
		return c.Key, nil
	}
	expiry, err := time.Parse(dateLayout, q.Expiry)
	if err != nil {
		return model.ContractKey{}, fmt.Errorf("expiry must be YYYY-MM-DD")
	}
	return contract.NewKey(expiry, q.Strike, q.Right)
}
