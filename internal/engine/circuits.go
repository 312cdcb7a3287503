package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/standards"
)

type CircuitCreateOptions struct {
	TestID                  string
	Ref                     string
	Description             string
	CircuitType             string
	OvercurrentDeviceType   string
	OvercurrentDeviceRating string
	ActorID                 string
}

// AddCircuit records a circuit; circuit type and device rating are stored
// normalised so they match the standards table.
func (e Engine) AddCircuit(ctx context.Context, opts CircuitCreateOptions) (domain.Circuit, error) {
	ref := strings.TrimSpace(opts.Ref)
	if ref == "" {
		return domain.Circuit{}, fmt.Errorf("%w: circuit ref is required", ErrInvalidInput)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Circuit{}, err
	}
	defer tx.Rollback()
	t, err := e.openTestTx(ctx, tx, opts.TestID)
	if err != nil {
		return domain.Circuit{}, err
	}
	now := e.timestamp()
	c := domain.Circuit{
		ID:                      uuid.NewString(),
		TestID:                  t.ID,
		Ref:                     ref,
		Description:             strings.TrimSpace(opts.Description),
		CircuitType:             standards.NormalizeCircuitType(opts.CircuitType),
		OvercurrentDeviceType:   strings.ToUpper(strings.TrimSpace(opts.OvercurrentDeviceType)),
		OvercurrentDeviceRating: standards.NormalizeRating(opts.OvercurrentDeviceRating),
		CreatedAt:               now,
	}
	if err := e.Repo.InsertCircuitTx(ctx, tx, c); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return domain.Circuit{}, fmt.Errorf("%w: circuit %s already exists on test %s", ErrInvalidInput, ref, t.ID)
		}
		return domain.Circuit{}, fmt.Errorf("insert circuit: %w", err)
	}
	if err := e.Repo.TouchTestTx(ctx, tx, t.ID, now); err != nil {
		return domain.Circuit{}, err
	}
	if err := e.emit(ctx, tx, events.CircuitAdded, t.ID, "circuit", c.ID, opts.ActorID, events.EventPayload{
		"ref":          c.Ref,
		"circuit_type": c.CircuitType,
		"rating":       c.OvercurrentDeviceRating,
	}); err != nil {
		return domain.Circuit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Circuit{}, err
	}
	return c, nil
}

func (e Engine) ListCircuits(ctx context.Context, testID string) ([]domain.Circuit, error) {
	if _, err := e.Repo.GetTest(ctx, testID); err != nil {
		return nil, err
	}
	return e.Repo.ListCircuits(ctx, testID)
}
