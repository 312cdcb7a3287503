package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

const circuitColumns = `id,test_id,ref,COALESCE(description,''),COALESCE(circuit_type,''),COALESCE(ocpd_type,''),COALESCE(ocpd_rating,''),created_at`

func scanCircuit(row rowScanner) (domain.Circuit, error) {
	var c domain.Circuit
	err := row.Scan(&c.ID, &c.TestID, &c.Ref, &c.Description, &c.CircuitType, &c.OvercurrentDeviceType, &c.OvercurrentDeviceRating, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertCircuitTx(ctx context.Context, tx *sql.Tx, c domain.Circuit) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO circuits(id,test_id,ref,description,circuit_type,ocpd_type,ocpd_rating,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.TestID, c.Ref, nullable(c.Description), nullable(c.CircuitType), nullable(c.OvercurrentDeviceType), nullable(c.OvercurrentDeviceRating), c.CreatedAt)
	return err
}

// GetCircuit returns the circuit only when it belongs to testID.
func (r Repo) GetCircuit(ctx context.Context, testID, id string) (domain.Circuit, error) {
	return getCircuit(ctx, r.DB, testID, id)
}

func (r Repo) GetCircuitTx(ctx context.Context, tx *sql.Tx, testID, id string) (domain.Circuit, error) {
	return getCircuit(ctx, tx, testID, id)
}

func getCircuit(ctx context.Context, q queryer, testID, id string) (domain.Circuit, error) {
	return scanCircuit(q.QueryRowContext(ctx, `SELECT `+circuitColumns+` FROM circuits WHERE test_id=? AND (id=? OR ref=?)`, testID, id, id))
}

func (r Repo) ListCircuits(ctx context.Context, testID string) ([]domain.Circuit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+circuitColumns+` FROM circuits WHERE test_id=? ORDER BY created_at, ref`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Circuit
	for rows.Next() {
		c, err := scanCircuit(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
