package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

// UpsertMeasurementTx keeps one row per circuit and measurement type; a new
// reading replaces the previous one.
func (r Repo) UpsertMeasurementTx(ctx context.Context, tx *sql.Tx, m domain.Measurement) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO measurements(id,test_id,circuit_id,measurement_type,value,status,pass,message,standard_reference,recorded_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(circuit_id, measurement_type) DO UPDATE SET value=excluded.value, status=excluded.status, pass=excluded.pass,
  message=excluded.message, standard_reference=excluded.standard_reference, recorded_at=excluded.recorded_at`,
		m.ID, m.TestID, m.CircuitID, m.Type, m.Value, m.Result.Status, boolToInt(m.Result.Pass), m.Result.Message,
		nullable(m.Result.StandardReference), m.RecordedAt)
	return err
}

type MeasurementFilters struct {
	TestID    string
	CircuitID string
	Status    domain.ValidationStatus
}

func (r Repo) ListMeasurements(ctx context.Context, f MeasurementFilters) ([]domain.Measurement, error) {
	query := `SELECT m.id,m.test_id,m.circuit_id,m.measurement_type,m.value,m.status,m.pass,m.message,COALESCE(m.standard_reference,''),m.recorded_at
FROM measurements m JOIN circuits c ON c.id = m.circuit_id WHERE m.test_id=?`
	args := []any{f.TestID}
	if f.CircuitID != "" {
		query += ` AND m.circuit_id=?`
		args = append(args, f.CircuitID)
	}
	if f.Status != "" {
		query += ` AND m.status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY c.created_at, c.ref, m.measurement_type`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Measurement
	for rows.Next() {
		var m domain.Measurement
		var pass int
		if err := rows.Scan(&m.ID, &m.TestID, &m.CircuitID, &m.Type, &m.Value, &m.Result.Status, &pass, &m.Result.Message,
			&m.Result.StandardReference, &m.RecordedAt); err != nil {
			return nil, err
		}
		m.Result.Pass = pass != 0
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountMeasurementsByStatus powers the certificate summary.
func (r Repo) CountMeasurementsByStatus(ctx context.Context, testID string) (map[domain.ValidationStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM measurements WHERE test_id=? GROUP BY status`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.ValidationStatus]int{}
	for rows.Next() {
		var status domain.ValidationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
