package engine

import (
	"context"
	"fmt"

	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/standards"
)

// ImportStandards replaces the stored standards table with cat.
func (e Engine) ImportStandards(ctx context.Context, cat *standards.Catalog, source, actorID string) (int, error) {
	if cat == nil || cat.Len() == 0 {
		return 0, fmt.Errorf("%w: catalog is empty", ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceStandardsTx(ctx, tx, cat.List()); err != nil {
		return 0, fmt.Errorf("replace standards: %w", err)
	}
	if err := e.emit(ctx, tx, events.StandardsImported, "", "standards", "", actorID, events.EventPayload{
		"count":  cat.Len(),
		"source": source,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return cat.Len(), nil
}

func (e Engine) ListStandards(ctx context.Context, mt domain.MeasurementType) ([]domain.MeasurementStandard, error) {
	if mt != "" && !mt.Valid() {
		return nil, fmt.Errorf("%w: unknown measurement type %q", ErrInvalidInput, mt)
	}
	return e.Repo.ListStandards(ctx, mt)
}

// LookupStandard returns the standard that would apply, or nil.
func (e Engine) LookupStandard(ctx context.Context, mt domain.MeasurementType, circuitType, circuitRating string) (*domain.MeasurementStandard, error) {
	if !mt.Valid() {
		return nil, fmt.Errorf("%w: unknown measurement type %q", ErrInvalidInput, mt)
	}
	return e.finder().FindStandard(ctx, mt, circuitType, circuitRating)
}
