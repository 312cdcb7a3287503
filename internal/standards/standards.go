// Package standards provides lookup of measurement limits keyed by
// measurement type, circuit type and protective device rating.
//
// A catalog may hold generic standards (no circuit type, no rating) next to
// specific ones. Lookups prefer the most specific match:
//
//  1. measurement type + circuit type + rating
//  2. measurement type + rating
//  3. measurement type + circuit type
//  4. measurement type alone
package standards

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"certline/internal/domain"
)

var (
	ErrInvalidStandard = errors.New("invalid standard")
	ErrDuplicateKey    = errors.New("duplicate standard key")
)

// Finder returns the standard that applies to a reading. A nil standard
// with a nil error means the catalog holds nothing applicable.
type Finder interface {
	FindStandard(ctx context.Context, mt domain.MeasurementType, circuitType, circuitRating string) (*domain.MeasurementStandard, error)
}

// Key identifies a standard within a catalog.
type Key struct {
	MeasurementType domain.MeasurementType
	CircuitType     string
	CircuitRating   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.MeasurementType, valueOr(k.CircuitType, "*"), valueOr(k.CircuitRating, "*"))
}

// KeyOf returns the normalised key of s.
func KeyOf(s domain.MeasurementStandard) Key {
	return NewKey(s.MeasurementType, s.CircuitType, s.CircuitRating)
}

// NewKey normalises circuit type and rating into a lookup key.
func NewKey(mt domain.MeasurementType, circuitType, circuitRating string) Key {
	return Key{
		MeasurementType: mt,
		CircuitType:     NormalizeCircuitType(circuitType),
		CircuitRating:   NormalizeRating(circuitRating),
	}
}

// Candidates lists keys to try for a lookup, most specific first, without
// duplicates.
func Candidates(mt domain.MeasurementType, circuitType, circuitRating string) []Key {
	k := NewKey(mt, circuitType, circuitRating)
	all := []Key{
		k,
		{MeasurementType: mt, CircuitRating: k.CircuitRating},
		{MeasurementType: mt, CircuitType: k.CircuitType},
		{MeasurementType: mt},
	}
	out := make([]Key, 0, len(all))
	seen := make(map[Key]struct{}, len(all))
	for _, c := range all {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// NormalizeCircuitType lowercases and trims a circuit type and maps spaces
// and dashes to underscores, so "Ring Final" matches "ring_final".
func NormalizeCircuitType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// NormalizeRating turns "32", "32 a" and "32A" into "32A". Values that are
// not a plain number of amps are only trimmed and upper-cased.
func NormalizeRating(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" {
		return ""
	}
	digits := strings.TrimSuffix(s, "A")
	if digits == "" {
		return s
	}
	for _, r := range digits {
		if (r < '0' || r > '9') && r != '.' {
			return s
		}
	}
	return digits + "A"
}

// Validate checks a single standard for structural problems.
func Validate(s domain.MeasurementStandard) error {
	if !s.MeasurementType.Valid() {
		return fmt.Errorf("%w: unknown measurement type %q", ErrInvalidStandard, s.MeasurementType)
	}
	if strings.TrimSpace(s.StandardReference) == "" {
		return fmt.Errorf("%w: %s has no standard reference", ErrInvalidStandard, KeyOf(s))
	}
	if s.MinAcceptable == nil && s.MaxAcceptable == nil {
		return fmt.Errorf("%w: %s has neither minimum nor maximum", ErrInvalidStandard, KeyOf(s))
	}
	if s.MinAcceptable != nil && s.MaxAcceptable != nil && *s.MinAcceptable > *s.MaxAcceptable {
		return fmt.Errorf("%w: %s minimum %v above maximum %v", ErrInvalidStandard, KeyOf(s), *s.MinAcceptable, *s.MaxAcceptable)
	}
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
