// Package rates supplies the risk-free rate used to discount each expiry.
package rates

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/atmx/vix-engine/internal/model"
)

var (
	ErrEmptyCurve    = errors.New("rates: curve has no points")
	ErrDuplicateDate = errors.New("rates: duplicate curve date")
	ErrInvalidDate   = errors.New("rates: invalid curve date")
)

// Source returns the risk-free rate for an expiry date.
type Source interface {
	RiskFreeRate(expiry time.Time) (decimal.Decimal, error)
}

// Open returns the curve in path, or a flat rate when path is empty.
func Open(path string, flat decimal.Decimal) (Source, error) {
	if path == "" {
		return NewFlat(flat), nil
	}
	c, err := LoadCurve(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Flat returns the same rate for every expiry.
type Flat struct {
	Rate decimal.Decimal
}

// NewFlat creates a flat provider.
func NewFlat(rate decimal.Decimal) Flat {
	return Flat{Rate: rate}
}

// RiskFreeRate implements vix.RateProvider.
func (f Flat) RiskFreeRate(time.Time) (decimal.Decimal, error) {
	return f.Rate, nil
}

// Point is one node of a term structure.
type Point struct {
	Date time.Time
	Rate decimal.Decimal
}

// Curve is a term structure of rates by date. Between nodes the rate is
// linear in calendar days; beyond the first or last node it is flat.
type Curve struct {
	dates []time.Time
	rates []float64
}

// NewCurve builds a curve from points in any order.
func NewCurve(points []Point) (*Curve, error) {
	if len(points) == 0 {
		return nil, ErrEmptyCurve
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	c := &Curve{}
	for i, p := range sorted {
		day := model.Day(p.Date)
		if i > 0 && day.Equal(c.dates[i-1]) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDate, model.DayKey(day))
		}
		c.dates = append(c.dates, day)
		c.rates = append(c.rates, p.Rate.InexactFloat64())
	}
	return c, nil
}

// RiskFreeRate implements vix.RateProvider.
func (c *Curve) RiskFreeRate(expiry time.Time) (decimal.Decimal, error) {
	target := model.Day(expiry)
	idx := sort.Search(len(c.dates), func(i int) bool {
		return !c.dates[i].Before(target)
	})

	switch {
	case idx == 0:
		return decimal.NewFromFloat(c.rates[0]), nil
	case idx >= len(c.dates):
		return decimal.NewFromFloat(c.rates[len(c.rates)-1]), nil
	case c.dates[idx].Equal(target):
		return decimal.NewFromFloat(c.rates[idx]), nil
	}

	d1, d2 := c.dates[idx-1], c.dates[idx]
	r1, r2 := c.rates[idx-1], c.rates[idx]
	w := float64(model.DaysBetween(d1, target)) / float64(model.DaysBetween(d1, d2))
	return decimal.NewFromFloat(r1 + w*(r2-r1)).Round(10), nil
}

// Len returns the number of nodes.
func (c *Curve) Len() int { return len(c.dates) }

type curveFile struct {
	Points []struct {
		Date string  `yaml:"date"`
		Rate float64 `yaml:"rate"`
	} `yaml:"points"`
}

// ParseCurve decodes a YAML document of the form
//
//	points:
//	  - date: 2025-02-21
//	    rate: 0.0431
func ParseCurve(data []byte) (*Curve, error) {
	var f curveFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rates: decode curve: %w", err)
	}
	points := make([]Point, 0, len(f.Points))
	for _, p := range f.Points {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, p.Date)
		}
		points = append(points, Point{Date: date, Rate: decimal.NewFromFloat(p.Rate)})
	}
	return NewCurve(points)
}

// LoadCurve reads a YAML curve file.
func LoadCurve(path string) (*Curve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rates: read %s: %w", path, err)
	}
	return ParseCurve(data)
}
