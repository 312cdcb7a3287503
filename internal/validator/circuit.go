package validator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"certline/internal/domain"
	"certline/internal/standards"
)

// Reading is a parsed value for one measurement type.
type Reading struct {
	Type  domain.MeasurementType
	Value float64
}

// Outcome pairs a reading with the standard it was judged against.
type Outcome struct {
	Reading  Reading
	Standard *domain.MeasurementStandard
	Result   domain.ValidationResult
}

// ValidateCircuit looks up the standard for every reading concurrently and
// validates each one. Outcomes are returned in reading order. Only lookup
// errors fail the call; a missing standard is an unknown result.
func ValidateCircuit(ctx context.Context, finder standards.Finder, circuit domain.Circuit, readings []Reading) ([]Outcome, error) {
	out := make([]Outcome, len(readings))
	g, gctx := errgroup.WithContext(ctx)
	for i, rd := range readings {
		g.Go(func() error {
			std, err := finder.FindStandard(gctx, rd.Type, circuit.CircuitType, circuit.OvercurrentDeviceRating)
			if err != nil {
				return fmt.Errorf("find %s standard: %w", rd.Type, err)
			}
			out[i] = Outcome{
				Reading:  rd,
				Standard: std,
				Result:   ValidateMeasurement(rd.Type, rd.Value, std),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
