package engine

import (
	"context"
	"database/sql"

	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/schedule"
)

// ChecklistView is a checklist with its derived progress and grouping.
type ChecklistView struct {
	TestID          string                   `json:"test_id"`
	CertificateType domain.CertificateType   `json:"certificate_type"`
	Items           []domain.InspectionItem  `json:"items"`
	Progress        schedule.Progress        `json:"progress"`
	Categories      []schedule.CategoryGroup `json:"categories"`
}

func viewOf(testID string, c *schedule.Checklist) ChecklistView {
	return ChecklistView{
		TestID:          testID,
		CertificateType: c.CertificateType,
		Items:           c.Items,
		Progress:        c.Progress(),
		Categories:      c.GroupByCategory(),
	}
}

func (e Engine) checklistTx(ctx context.Context, tx *sql.Tx, t domain.ElectricalTest) (*schedule.Checklist, error) {
	stored, err := e.Repo.ListInspectionItemsTx(ctx, tx, t.ID)
	if err != nil {
		return nil, err
	}
	return schedule.Initialize(t.CertificateType, stored)
}

// StartInspection persists the full schedule for a test, keeping any
// results already recorded. Calling it again changes nothing.
func (e Engine) StartInspection(ctx context.Context, testID, actorID string) (ChecklistView, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ChecklistView{}, err
	}
	defer tx.Rollback()
	t, err := e.openTestTx(ctx, tx, testID)
	if err != nil {
		return ChecklistView{}, err
	}
	stored, err := e.Repo.ListInspectionItemsTx(ctx, tx, t.ID)
	if err != nil {
		return ChecklistView{}, err
	}
	c, err := schedule.Initialize(t.CertificateType, stored)
	if err != nil {
		return ChecklistView{}, err
	}
	if hasAllCodes(stored, c.Items) {
		return viewOf(t.ID, c), nil
	}
	now := e.timestamp()
	for i, it := range c.Items {
		if err := e.Repo.UpsertInspectionItemTx(ctx, tx, t.ID, i, it, now); err != nil {
			return ChecklistView{}, err
		}
	}
	if err := e.Repo.TouchTestTx(ctx, tx, t.ID, now); err != nil {
		return ChecklistView{}, err
	}
	if err := e.emit(ctx, tx, events.InspectionStarted, t.ID, "test", t.ID, actorID, events.EventPayload{
		"certificate_type": t.CertificateType,
		"items":            len(c.Items),
	}); err != nil {
		return ChecklistView{}, err
	}
	if err := tx.Commit(); err != nil {
		return ChecklistView{}, err
	}
	return viewOf(t.ID, c), nil
}

// hasAllCodes reports whether every template item already has a stored row.
func hasAllCodes(stored, items []domain.InspectionItem) bool {
	codes := make(map[string]bool, len(stored))
	for _, it := range stored {
		codes[it.ItemCode] = true
	}
	for _, it := range items {
		if !codes[it.ItemCode] {
			return false
		}
	}
	return true
}

func (e Engine) GetChecklist(ctx context.Context, testID string) (ChecklistView, error) {
	t, err := e.Repo.GetTest(ctx, testID)
	if err != nil {
		return ChecklistView{}, err
	}
	stored, err := e.Repo.ListInspectionItems(ctx, testID)
	if err != nil {
		return ChecklistView{}, err
	}
	c, err := schedule.Initialize(t.CertificateType, stored)
	if err != nil {
		return ChecklistView{}, err
	}
	return viewOf(t.ID, c), nil
}

// SetItem applies an update to one item and stores it if it passes the
// save gate. Rejected updates leave the stored item unchanged.
func (e Engine) SetItem(ctx context.Context, testID string, u schedule.ItemUpdate, actorID string) (domain.InspectionItem, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InspectionItem{}, err
	}
	defer tx.Rollback()
	t, err := e.openTestTx(ctx, tx, testID)
	if err != nil {
		return domain.InspectionItem{}, err
	}
	c, err := e.checklistTx(ctx, tx, t)
	if err != nil {
		return domain.InspectionItem{}, err
	}
	report := c.ApplyBatch([]schedule.ItemUpdate{u})
	if !report.OK() {
		return domain.InspectionItem{}, report.Failures[0].Err
	}
	if err := e.persistItems(ctx, tx, t.ID, c, report.Saved, actorID); err != nil {
		return domain.InspectionItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InspectionItem{}, err
	}
	return report.Saved[0], nil
}

// SaveItems applies a batch of updates and stores every item that passes
// the gate in one transaction. Failures are reported, not returned.
func (e Engine) SaveItems(ctx context.Context, testID string, updates []schedule.ItemUpdate, actorID string) (schedule.BatchReport, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return schedule.BatchReport{}, err
	}
	defer tx.Rollback()
	t, err := e.openTestTx(ctx, tx, testID)
	if err != nil {
		return schedule.BatchReport{}, err
	}
	c, err := e.checklistTx(ctx, tx, t)
	if err != nil {
		return schedule.BatchReport{}, err
	}
	var report schedule.BatchReport
	if len(updates) == 0 {
		report = c.SaveAll()
	} else {
		report = c.ApplyBatch(updates)
	}
	if err := e.persistItems(ctx, tx, t.ID, c, report.Saved, actorID); err != nil {
		return schedule.BatchReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return schedule.BatchReport{}, err
	}
	return report, nil
}

func (e Engine) persistItems(ctx context.Context, tx *sql.Tx, testID string, c *schedule.Checklist, items []domain.InspectionItem, actorID string) error {
	if len(items) == 0 {
		return nil
	}
	position := make(map[string]int, len(c.Items))
	for i, it := range c.Items {
		position[it.ItemCode] = i
	}
	now := e.timestamp()
	for _, it := range items {
		if err := e.Repo.UpsertInspectionItemTx(ctx, tx, testID, position[it.ItemCode], it, now); err != nil {
			return err
		}
		if err := e.emit(ctx, tx, events.InspectionItemSaved, testID, "inspection_item", it.ItemCode, actorID, events.EventPayload{
			"result": it.Result,
			"notes":  it.Notes != "",
		}); err != nil {
			return err
		}
	}
	return e.Repo.TouchTestTx(ctx, tx, testID, now)
}
