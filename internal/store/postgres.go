package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/vix-engine/internal/model"
)

// Schema creates the observations table. Numeric values are NUMERIC for
// exact decimal round-trips; NULL marks a value that was not computed.
const Schema = `
CREATE TABLE IF NOT EXISTS observations (
	id               UUID PRIMARY KEY,
	underlying       TEXT NOT NULL,
	date             DATE NOT NULL,
	underlying_price NUMERIC NOT NULL,
	atm_iv           NUMERIC,
	vix              NUMERIC,
	near_expiry      DATE,
	far_expiry       DATE,
	iv_rank          NUMERIC,
	iv_percentile    NUMERIC,
	vix_rank         NUMERIC,
	vix_percentile   NUMERIC,
	reason           TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (underlying, date)
)`

const selectColumns = `id, underlying, date, underlying_price::TEXT,
	atm_iv::TEXT, vix::TEXT, near_expiry, far_expiry,
	iv_rank::TEXT, iv_percentile::TEXT, vix_rank::TEXT, vix_percentile::TEXT,
	reason, created_at`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) SaveObservation(ctx context.Context, o *model.Observation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO observations (id, underlying, date, underlying_price, atm_iv, vix,
		                           near_expiry, far_expiry, iv_rank, iv_percentile,
		                           vix_rank, vix_percentile, reason, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8,
		         $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13, $14)
		 ON CONFLICT (underlying, date) DO UPDATE SET
		     underlying_price = EXCLUDED.underlying_price,
		     atm_iv = EXCLUDED.atm_iv,
		     vix = EXCLUDED.vix,
		     near_expiry = EXCLUDED.near_expiry,
		     far_expiry = EXCLUDED.far_expiry,
		     iv_rank = EXCLUDED.iv_rank,
		     iv_percentile = EXCLUDED.iv_percentile,
		     vix_rank = EXCLUDED.vix_rank,
		     vix_percentile = EXCLUDED.vix_percentile,
		     reason = EXCLUDED.reason`,
		o.ID, o.Underlying, model.Day(o.Date), o.UnderlyingPrice.String(),
		numeric(o.ATMIV), numeric(o.VIX), o.NearExpiry, o.FarExpiry,
		numeric(o.IVRank), numeric(o.IVPercentile),
		numeric(o.VIXRank), numeric(o.VIXPercentile),
		o.Reason, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save observation %s %s: %w", o.Underlying, model.DayKey(o.Date), err)
	}
	return nil
}

func (s *PostgresStore) GetObservation(ctx context.Context, underlying string, date time.Time) (*model.Observation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM observations WHERE underlying = $1 AND date = $2`,
		underlying, model.Day(date))
	o, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s on %s: %w", underlying, model.DayKey(date), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get observation %s: %w", underlying, err)
	}
	return o, nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, underlying string, from, to time.Time) ([]model.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+`
		 FROM observations
		 WHERE underlying = $1 AND date >= $2 AND date < $3
		 ORDER BY date`,
		underlying, model.Day(from), model.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

func (s *PostgresStore) LatestObservation(ctx context.Context, underlying string) (*model.Observation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+`
		 FROM observations WHERE underlying = $1
		 ORDER BY date DESC LIMIT 1`, underlying)
	o, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("latest %s: %w", underlying, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation %s: %w", underlying, err)
	}
	return o, nil
}

func (s *PostgresStore) ListUnderlyings(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT underlying FROM observations ORDER BY underlying`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*model.Observation, error) {
	var o model.Observation
	var price string
	var atmIV, vix, ivRank, ivPct, vixRank, vixPct *string

	if err := row.Scan(&o.ID, &o.Underlying, &o.Date, &price,
		&atmIV, &vix, &o.NearExpiry, &o.FarExpiry,
		&ivRank, &ivPct, &vixRank, &vixPct,
		&o.Reason, &o.CreatedAt); err != nil {
		return nil, err
	}

	o.UnderlyingPrice, _ = decimal.NewFromString(price)
	o.ATMIV = fromNumeric(atmIV)
	o.VIX = fromNumeric(vix)
	o.IVRank = fromNumeric(ivRank)
	o.IVPercentile = fromNumeric(ivPct)
	o.VIXRank = fromNumeric(vixRank)
	o.VIXPercentile = fromNumeric(vixPct)
	return &o, nil
}

// numeric renders an optional decimal as a NUMERIC parameter; nil is NULL.
func numeric(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func fromNumeric(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &v
}
