package repo

import (
	"context"
	"database/sql"

	"certline/internal/domain"
)

func (r Repo) ListInspectionItems(ctx context.Context, testID string) ([]domain.InspectionItem, error) {
	return listInspectionItems(ctx, r.DB, testID)
}

func (r Repo) ListInspectionItemsTx(ctx context.Context, tx *sql.Tx, testID string) ([]domain.InspectionItem, error) {
	return listInspectionItems(ctx, tx, testID)
}

func listInspectionItems(ctx context.Context, q queryer, testID string) ([]domain.InspectionItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT item_code,category,item,COALESCE(result,''),COALESCE(notes,'') FROM inspection_items WHERE test_id=? ORDER BY position`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InspectionItem
	for rows.Next() {
		var it domain.InspectionItem
		if err := rows.Scan(&it.ItemCode, &it.Category, &it.Item, &it.Result, &it.Notes); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// UpsertInspectionItemTx stores item at position within the test schedule.
func (r Repo) UpsertInspectionItemTx(ctx context.Context, tx *sql.Tx, testID string, position int, it domain.InspectionItem, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO inspection_items(test_id,item_code,position,category,item,result,notes,updated_at) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(test_id, item_code) DO UPDATE SET position=excluded.position, category=excluded.category, item=excluded.item,
  result=excluded.result, notes=excluded.notes, updated_at=excluded.updated_at`,
		testID, it.ItemCode, position, it.Category, it.Item, nullable(string(it.Result)), nullable(it.Notes), updatedAt)
	return err
}
