// Package validator classifies electrical test readings against the
// limits of a measurement standard.
//
// ValidateMeasurement assumes a finite, positive reading. Raw form input
// must go through ParseReading first: blank, non-numeric and non-positive
// entries mean "not entered" and never reach the validator.
package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"certline/internal/domain"
)

// NearLimitMargin is the proportion of a bound inside which an acceptable
// reading is reported as a warning.
const NearLimitMargin = 0.1

const (
	msgNoStandard = "No standard found for this measurement"
	msgInRange    = "Measurement is within acceptable range"
)

// ValidateMeasurement judges value against standard. A nil standard yields
// StatusUnknown, which callers must not read as a failed installation.
//
// Hard bounds are checked before the warning band so a value outside a
// bound is always a fail.
func ValidateMeasurement(mt domain.MeasurementType, value float64, standard *domain.MeasurementStandard) domain.ValidationResult {
	if standard == nil {
		return domain.ValidationResult{
			Pass:    false,
			Status:  domain.StatusUnknown,
			Message: msgNoStandard,
		}
	}
	ref := standard.StandardReference
	lo, hi := standard.MinAcceptable, standard.MaxAcceptable

	if lo != nil && value < *lo {
		return domain.ValidationResult{
			Pass:              false,
			Status:            domain.StatusFail,
			Message:           fmt.Sprintf("%s is below minimum %s (%s)", formatNumber(value), formatNumber(*lo), ref),
			StandardReference: ref,
		}
	}
	if hi != nil && value > *hi {
		return domain.ValidationResult{
			Pass:              false,
			Status:            domain.StatusFail,
			Message:           fmt.Sprintf("%s exceeds maximum %s (%s)", formatNumber(value), formatNumber(*hi), ref),
			StandardReference: ref,
		}
	}
	if lo != nil && value < *lo*(1+NearLimitMargin) {
		return domain.ValidationResult{
			Pass:              true,
			Status:            domain.StatusWarning,
			Message:           fmt.Sprintf("Value is close to minimum limit of %s", formatNumber(*lo)),
			StandardReference: ref,
		}
	}
	if hi != nil && value > *hi*(1-NearLimitMargin) {
		return domain.ValidationResult{
			Pass:              true,
			Status:            domain.StatusWarning,
			Message:           fmt.Sprintf("Value is close to maximum limit of %s", formatNumber(*hi)),
			StandardReference: ref,
		}
	}
	return domain.ValidationResult{
		Pass:              true,
		Status:            domain.StatusPass,
		Message:           msgInRange,
		StandardReference: ref,
	}
}

// ParseReading converts raw form input into a reading. ok is false when
// the input counts as "not entered": blank, not a number, not finite, or
// not positive.
func ParseReading(raw string) (value float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if !Usable(v) {
		return 0, false
	}
	return v, true
}

// Usable reports whether v is a finite, positive reading.
func Usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
