// Package vix computes a CBOE-style 30-day volatility index from one
// day's option chain.
//
// The pipeline for one (underlying, date) pair is:
//
//	SelectExpiryBracket → FilterChain ×2 → Variance ×2 → Aggregate
//
// The two expiries are independent and run concurrently. Arithmetic is
// done in float64; results leave the package as shopspring/decimal.
package vix

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/vix-engine/internal/model"
)

var (
	// IndexScale is the number of decimal places kept on index values.
	IndexScale int32 = 8

	// VarianceScale is the number of decimal places kept on variances.
	VarianceScale int32 = 12
)

// DaysPerYear is the ACT/365 year used for times to expiry.
const DaysPerYear = 365.0

// RateProvider returns the risk-free rate for an expiry date.
type RateProvider interface {
	RiskFreeRate(expiry time.Time) (decimal.Decimal, error)
}

// Calculator runs the full index pipeline. It holds no per-call state
// and is safe for concurrent use.
type Calculator struct {
	rates RateProvider
}

// NewCalculator creates a calculator backed by the given rate provider.
func NewCalculator(rates RateProvider) *Calculator {
	return &Calculator{rates: rates}
}

// YearsBetween returns the ACT/365 year fraction from date to expiry.
func YearsBetween(date, expiry time.Time) float64 {
	return float64(model.DaysBetween(date, expiry)) / DaysPerYear
}

// Compute returns the index for one snapshot. Every soft failure is
// reported through the package's sentinel errors.
func (c *Calculator) Compute(snap *model.Snapshot) (*model.IndexResult, error) {
	bracket, err := SelectExpiryBracket(snap.Date, snap.Expiries())
	if err != nil {
		return nil, err
	}

	price := snap.UnderlyingPrice.InexactFloat64()

	var near, far model.ExpiryVariance
	var nearLeg, farLeg Leg

	// When both legs fail the near error is reported.
	var nearErr, farErr error
	var g errgroup.Group
	g.Go(func() error {
		near, nearLeg, nearErr = c.expiryVariance(snap, price, bracket.Near)
		return nil
	})
	g.Go(func() error {
		far, farLeg, farErr = c.expiryVariance(snap, price, bracket.Far)
		return nil
	})
	g.Wait()
	if nearErr != nil {
		return nil, fmt.Errorf("near expiry %s: %w", model.DayKey(bracket.Near), nearErr)
	}
	if farErr != nil {
		return nil, fmt.Errorf("far expiry %s: %w", model.DayKey(bracket.Far), farErr)
	}

	value, err := Aggregate(nearLeg, farLeg)
	if err != nil {
		return nil, err
	}

	return &model.IndexResult{
		Underlying: snap.Underlying,
		Date:       model.Day(snap.Date),
		Value:      decimal.NewFromFloat(value).Round(IndexScale),
		Near:       near,
		Far:        far,
	}, nil
}

// expiryVariance runs ChainFilter and VarianceCalculator for one expiry.
func (c *Calculator) expiryVariance(snap *model.Snapshot, price float64, expiry time.Time) (model.ExpiryVariance, Leg, error) {
	rateDec, err := c.rates.RiskFreeRate(expiry)
	if err != nil {
		return model.ExpiryVariance{}, Leg{}, fmt.Errorf("risk-free rate: %w", err)
	}
	rate := rateDec.InexactFloat64()
	years := YearsBetween(snap.Date, expiry)

	chain, err := FilterChain(snap.Quotes, price, expiry, rate, years)
	if err != nil {
		return model.ExpiryVariance{}, Leg{}, err
	}

	growth, err := TimeMultiple(rate, years)
	if err != nil {
		return model.ExpiryVariance{}, Leg{}, err
	}

	v, err := Variance(chain.OTM, chain.Quote.Forward, chain.Quote.K0, years, growth)
	if err != nil {
		return model.ExpiryVariance{}, Leg{}, err
	}

	ev := model.ExpiryVariance{
		Expiry:      model.Day(expiry),
		Years:       decimal.NewFromFloat(years).Round(VarianceScale),
		Rate:        rateDec,
		Forward:     decimal.NewFromFloat(chain.Quote.Forward).Round(IndexScale),
		K0:          decimal.NewFromFloat(chain.Quote.K0),
		StrikeCount: len(chain.OTM),
		Variance:    decimal.NewFromFloat(v).Round(VarianceScale),
	}
	return ev, Leg{Variance: v, Years: years}, nil
}
