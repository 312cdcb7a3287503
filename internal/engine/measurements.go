package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"certline/internal/domain"
	"certline/internal/events"
	"certline/internal/repo"
	"certline/internal/validator"
)

// SkippedReading is a raw entry that was not a usable numeric reading.
type SkippedReading struct {
	Type   domain.MeasurementType `json:"measurement_type"`
	Raw    string                 `json:"raw"`
	Reason string                 `json:"reason"`
}

type RecordResult struct {
	Measurements []domain.Measurement `json:"measurements"`
	Skipped      []SkippedReading     `json:"skipped"`
}

// RecordReadings validates raw readings for one circuit and stores one
// measurement per type, replacing any earlier reading of that type. Blank
// or unusable entries are reported as skipped; polarity and functional
// checks are rejected with ErrNotNumeric.
func (e Engine) RecordReadings(ctx context.Context, testID, circuitID string, raw map[domain.MeasurementType]string, actorID string) (RecordResult, error) {
	res := RecordResult{Measurements: []domain.Measurement{}, Skipped: []SkippedReading{}}
	for mt := range raw {
		if !mt.Valid() {
			return res, fmt.Errorf("%w: unknown measurement type %q", ErrInvalidInput, mt)
		}
		if !mt.Numeric() {
			return res, fmt.Errorf("%w: %s", ErrNotNumeric, mt)
		}
	}

	t, err := e.Repo.GetTest(ctx, testID)
	if err != nil {
		return res, err
	}
	if t.Status == domain.TestStatusComplete {
		return res, fmt.Errorf("%w: %s", ErrTestComplete, testID)
	}
	circuit, err := e.Repo.GetCircuit(ctx, testID, circuitID)
	if err != nil {
		return res, err
	}

	var readings []validator.Reading
	for _, mt := range domain.MeasurementTypes {
		v, ok := raw[mt]
		if !ok {
			continue
		}
		value, ok := validator.ParseReading(v)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedReading{Type: mt, Raw: v, Reason: skipReason(v)})
			continue
		}
		readings = append(readings, validator.Reading{Type: mt, Value: value})
	}
	if len(readings) == 0 {
		return res, nil
	}

	outcomes, err := validator.ValidateCircuit(ctx, e.finder(), circuit, readings)
	if err != nil {
		return res, err
	}
	for _, o := range outcomes {
		slog.Debug("validated reading", "test", testID, "circuit", circuit.Ref, "type", o.Reading.Type,
			"value", o.Reading.Value, "status", o.Result.Status, "standard", o.Result.StandardReference)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	if _, err := e.openTestTx(ctx, tx, testID); err != nil {
		return res, err
	}
	now := e.timestamp()
	for _, o := range outcomes {
		m := domain.Measurement{
			ID:         uuid.NewString(),
			TestID:     testID,
			CircuitID:  circuit.ID,
			Type:       o.Reading.Type,
			Value:      o.Reading.Value,
			Result:     o.Result,
			RecordedAt: now,
		}
		if err := e.Repo.UpsertMeasurementTx(ctx, tx, m); err != nil {
			return res, fmt.Errorf("store %s measurement: %w", m.Type, err)
		}
		if err := e.emit(ctx, tx, events.MeasurementRecorded, testID, "circuit", circuit.ID, actorID, events.EventPayload{
			"measurement_type":   m.Type,
			"value":              m.Value,
			"status":             m.Result.Status,
			"standard_reference": m.Result.StandardReference,
		}); err != nil {
			return res, err
		}
	}
	if err := e.Repo.TouchTestTx(ctx, tx, testID, now); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}

	stored, err := e.Repo.ListMeasurements(ctx, repo.MeasurementFilters{TestID: testID, CircuitID: circuit.ID})
	if err != nil {
		return res, err
	}
	recorded := make(map[domain.MeasurementType]bool, len(outcomes))
	for _, o := range outcomes {
		recorded[o.Reading.Type] = true
	}
	for _, m := range stored {
		if recorded[m.Type] {
			res.Measurements = append(res.Measurements, m)
		}
	}
	return res, nil
}

func skipReason(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "blank"
	}
	return "not a positive number"
}

func (e Engine) ListMeasurements(ctx context.Context, f repo.MeasurementFilters) ([]domain.Measurement, error) {
	if _, err := e.Repo.GetTest(ctx, f.TestID); err != nil {
		return nil, err
	}
	if f.CircuitID != "" {
		c, err := e.Repo.GetCircuit(ctx, f.TestID, f.CircuitID)
		if err != nil {
			return nil, err
		}
		f.CircuitID = c.ID
	}
	return e.Repo.ListMeasurements(ctx, f)
}

type ValidateOptions struct {
	Type          domain.MeasurementType
	Value         float64
	CircuitType   string
	CircuitRating string
}

// ValidateReading checks a single value against the stored standards
// without persisting anything.
func (e Engine) ValidateReading(ctx context.Context, opts ValidateOptions) (domain.ValidationResult, error) {
	if !opts.Type.Valid() {
		return domain.ValidationResult{}, fmt.Errorf("%w: unknown measurement type %q", ErrInvalidInput, opts.Type)
	}
	if !opts.Type.Numeric() {
		return domain.ValidationResult{}, fmt.Errorf("%w: %s", ErrNotNumeric, opts.Type)
	}
	if !validator.Usable(opts.Value) {
		return domain.ValidationResult{}, fmt.Errorf("%w: reading %v is not a positive number", ErrInvalidInput, opts.Value)
	}
	std, err := e.finder().FindStandard(ctx, opts.Type, opts.CircuitType, opts.CircuitRating)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return validator.ValidateMeasurement(opts.Type, opts.Value, std), nil
}
