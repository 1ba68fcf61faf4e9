package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dp(f float64) *decimal.Decimal {
	v := d(f)
	return &v
}

var day0 = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func obs(underlying string, offset int, vix *decimal.Decimal) *model.Observation {
	return &model.Observation{
		ID:              underlying + day0.AddDate(0, 0, offset).Format("20060102"),
		Underlying:      underlying,
		Date:            day0.AddDate(0, 0, offset),
		UnderlyingPrice: d(5000),
		VIX:             vix,
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.SaveObservation(ctx, obs("SPX", 0, dp(18.5))); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetObservation(ctx, "SPX", day0.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.VIX == nil || !got.VIX.Equal(d(18.5)) {
		t.Errorf("expected vix 18.5, got %v", got.VIX)
	}

	_, err = s.GetObservation(ctx, "SPX", day0.AddDate(0, 0, 1))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.SaveObservation(ctx, obs("SPX", 0, nil))
	replacement := obs("SPX", 0, dp(21))
	replacement.Date = day0.Add(9 * time.Hour)
	s.SaveObservation(ctx, replacement)

	list, _ := s.ListObservations(ctx, "SPX", day0, day0.AddDate(0, 0, 1))
	if len(list) != 1 {
		t.Fatalf("expected one observation per day, got %d", len(list))
	}
	if list[0].VIX == nil || !list[0].VIX.Equal(d(21)) {
		t.Errorf("expected replacement value, got %v", list[0].VIX)
	}
	if !list[0].Date.Equal(day0) {
		t.Errorf("expected date normalized to the day, got %s", list[0].Date)
	}
}

func TestMemoryStore_ListRangeAscending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, off := range []int{4, 0, 2, 1, 3} {
		s.SaveObservation(ctx, obs("SPX", off, dp(float64(10+off))))
	}
	s.SaveObservation(ctx, obs("NDX", 1, nil))

	list, err := s.ListObservations(ctx, "SPX", day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected [from, to) to hold 3 days, got %d", len(list))
	}
	for i, o := range list {
		if !o.Date.Equal(day0.AddDate(0, 0, i+1)) {
			t.Errorf("position %d: expected day %d, got %s", i, i+1, o.Date)
		}
	}
}

func TestMemoryStore_LatestAndUnderlyings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.LatestObservation(ctx, "SPX"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	s.SaveObservation(ctx, obs("SPX", 2, dp(17)))
	s.SaveObservation(ctx, obs("SPX", 5, dp(19)))
	s.SaveObservation(ctx, obs("SPX", 3, dp(16)))
	s.SaveObservation(ctx, obs("NDX", 1, dp(22)))

	latest, err := s.LatestObservation(ctx, "SPX")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Date.Equal(day0.AddDate(0, 0, 5)) {
		t.Errorf("expected latest day 5, got %s", latest.Date)
	}

	us, _ := s.ListUnderlyings(ctx)
	if len(us) != 2 || us[0] != "NDX" || us[1] != "SPX" {
		t.Errorf("expected [NDX SPX], got %v", us)
	}
}

func TestMemoryStore_RejectsEmptyUnderlying(t *testing.T) {
	if err := NewMemoryStore().SaveObservation(context.Background(), obs("", 0, nil)); err == nil {
		t.Error("expected error for empty underlying")
	}
}

func TestNumericRoundTrip(t *testing.T) {
	if numeric(nil) != nil {
		t.Error("nil decimal must map to NULL")
	}
	v := decimal.RequireFromString("18.12345678")
	s := numeric(&v)
	back := fromNumeric(s)
	if back == nil || !back.Equal(v) {
		t.Errorf("expected %s, got %v", v, back)
	}
	if fromNumeric(nil) != nil {
		t.Error("NULL must map to nil")
	}
}

func TestOpen_DefaultsToMemory(t *testing.T) {
	st, cleanup, err := Open(context.Background(), "", "", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()
	if _, ok := st.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", st)
	}
}
