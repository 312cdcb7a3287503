package repo

import (
	"context"
	"database/sql"
	"errors"

	"certline/internal/domain"
	"certline/internal/standards"
)

func (r Repo) UpsertStandardTx(ctx context.Context, tx *sql.Tx, s domain.MeasurementStandard) error {
	k := standards.KeyOf(s)
	_, err := tx.ExecContext(ctx, `INSERT INTO measurement_standards(measurement_type,circuit_type,circuit_rating,min_acceptable,max_acceptable,standard_reference)
VALUES (?,?,?,?,?,?)
ON CONFLICT(measurement_type,circuit_type,circuit_rating) DO UPDATE SET min_acceptable=excluded.min_acceptable,
  max_acceptable=excluded.max_acceptable, standard_reference=excluded.standard_reference`,
		k.MeasurementType, k.CircuitType, k.CircuitRating, nullableFloatPtr(s.MinAcceptable), nullableFloatPtr(s.MaxAcceptable), s.StandardReference)
	return err
}

// ReplaceStandardsTx swaps the stored table for items.
func (r Repo) ReplaceStandardsTx(ctx context.Context, tx *sql.Tx, items []domain.MeasurementStandard) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM measurement_standards`); err != nil {
		return err
	}
	for _, s := range items {
		if err := r.UpsertStandardTx(ctx, tx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) CountStandards(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurement_standards`).Scan(&n)
	return n, err
}

func scanStandard(row rowScanner) (domain.MeasurementStandard, error) {
	var s domain.MeasurementStandard
	var lo, hi sql.NullFloat64
	if err := row.Scan(&s.MeasurementType, &s.CircuitType, &s.CircuitRating, &lo, &hi, &s.StandardReference); err != nil {
		return s, err
	}
	if lo.Valid {
		s.MinAcceptable = &lo.Float64
	}
	if hi.Valid {
		s.MaxAcceptable = &hi.Float64
	}
	return s, nil
}

const standardColumns = `measurement_type,circuit_type,circuit_rating,min_acceptable,max_acceptable,standard_reference`

// ListStandards returns the stored table, optionally for one measurement type.
func (r Repo) ListStandards(ctx context.Context, mt domain.MeasurementType) ([]domain.MeasurementStandard, error) {
	query := `SELECT ` + standardColumns + ` FROM measurement_standards`
	var args []any
	if mt != "" {
		query += ` WHERE measurement_type=?`
		args = append(args, mt)
	}
	query += ` ORDER BY measurement_type, circuit_type, circuit_rating`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MeasurementStandard
	for rows.Next() {
		s, err := scanStandard(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// FindStandard walks the lookup candidates from most to least specific and
// returns the first stored row, or nil when nothing matches.
func (r Repo) FindStandard(ctx context.Context, mt domain.MeasurementType, circuitType, circuitRating string) (*domain.MeasurementStandard, error) {
	for _, k := range standards.Candidates(mt, circuitType, circuitRating) {
		s, err := scanStandard(r.DB.QueryRowContext(ctx, `SELECT `+standardColumns+` FROM measurement_standards
WHERE measurement_type=? AND circuit_type=? AND circuit_rating=?`, k.MeasurementType, k.CircuitType, k.CircuitRating))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &s, nil
	}
	return nil, nil
}

var _ standards.Finder = Repo{}
