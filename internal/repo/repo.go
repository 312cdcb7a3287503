package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"certline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const testColumns = `id,certificate_type,COALESCE(site,''),status,created_at,updated_at,completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (domain.ElectricalTest, error) {
	var t domain.ElectricalTest
	var completed sql.NullString
	err := row.Scan(&t.ID, &t.CertificateType, &t.Site, &t.Status, &t.CreatedAt, &t.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	return t, err
}

func (r Repo) InsertTestTx(ctx context.Context, tx *sql.Tx, t domain.ElectricalTest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO electrical_tests(id,certificate_type,site,status,created_at,updated_at,completed_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.CertificateType, nullable(t.Site), t.Status, t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) GetTest(ctx context.Context, id string) (domain.ElectricalTest, error) {
	return getTest(ctx, r.DB, id)
}

func (r Repo) GetTestTx(ctx context.Context, tx *sql.Tx, id string) (domain.ElectricalTest, error) {
	return getTest(ctx, tx, id)
}

func getTest(ctx context.Context, q queryer, id string) (domain.ElectricalTest, error) {
	return scanTest(q.QueryRowContext(ctx, `SELECT `+testColumns+` FROM electrical_tests WHERE id=?`, id))
}

type TestFilters struct {
	Status          string
	CertificateType domain.CertificateType
	Limit           int
}

func (r Repo) ListTests(ctx context.Context, f TestFilters) ([]domain.ElectricalTest, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CertificateType != "" {
		clauses = append(clauses, "certificate_type=?")
		args = append(args, f.CertificateType)
	}
	query := fmt.Sprintf(`SELECT %s FROM electrical_tests WHERE %s ORDER BY created_at DESC, id DESC`, testColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ElectricalTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTestStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string, completedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE electrical_tests SET status=?, updated_at=?, completed_at=? WHERE id=?`,
		status, updatedAt, nullableStringPtr(completedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchTestTx bumps updated_at after a child row changes.
func (r Repo) TouchTestTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE electrical_tests SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
