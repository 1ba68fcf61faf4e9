// Package augment renders observations as delimited columns. The set of
// column variants is closed; each derivative class selects one by name.
package augment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/model"
)

// Places is the fixed number of decimals in every numeric field.
const Places int32 = 6

// Columns appends a fixed, ordered set of computed fields to a row.
type Columns interface {
	// Name is the configuration value that selects the variant.
	Name() string
	// Header returns the column names in output order.
	Header() []string
	// Append adds the observation's fields to row. A missing value is an
	// empty field.
	Append(row []string, obs *model.Observation) []string

	sealed()
}

// IV renders implied-volatility statistics only.
type IV struct{}

func (IV) Name() string { return "iv" }

func (IV) Header() []string { return []string{"iv_rank", "iv_percentile"} }

func (IV) Append(row []string, obs *model.Observation) []string {
	return append(row, field(obs.IVRank), field(obs.IVPercentile))
}

func (IV) sealed() {}

// VIX renders the index value with both series' statistics.
type VIX struct{}

func (VIX) Name() string { return "vix" }

func (VIX) Header() []string {
	return []string{"vix", "iv_rank", "iv_percentile", "vix_rank", "vix_percentile"}
}

func (VIX) Append(row []string, obs *model.Observation) []string {
	return append(row,
		field(obs.VIX),
		field(obs.IVRank), field(obs.IVPercentile),
		field(obs.VIXRank), field(obs.VIXPercentile))
}

func (VIX) sealed() {}

// Variants lists every column variant.
var Variants = []Columns{IV{}, VIX{}}

// Parse selects a variant by name, case-insensitively.
func Parse(name string) (Columns, error) {
	for _, c := range Variants {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("augment: unknown column variant %q", name)
}

func field(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.StringFixed(Places)
}

// Writer writes one CSV row per observation, keyed by underlying and date.
type Writer struct {
	w      *csv.Writer
	cols   Columns
	header bool
}

// NewWriter creates a writer for the given variant.
func NewWriter(w io.Writer, cols Columns) *Writer {
	return &Writer{w: csv.NewWriter(w), cols: cols}
}

// Write emits the header on first use, then the observation's row.
func (w *Writer) Write(obs *model.Observation) error {
	if !w.header {
		if err := w.w.Write(append([]string{"underlying", "date"}, w.cols.Header()...)); err != nil {
			return err
		}
		w.header = true
	}
	row := w.cols.Append([]string{obs.Underlying, model.DayKey(obs.Date)}, obs)
	return w.w.Write(row)
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}
