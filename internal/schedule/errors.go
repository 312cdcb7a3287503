package schedule

import (
	"errors"
	"fmt"

	"certline/internal/domain"
)

var (
	ErrInvalidItemCode        = errors.New("invalid item code")
	ErrIneligibleSave         = errors.New("item not eligible for save")
	ErrInvalidResult          = errors.New("invalid inspection result")
	ErrUnknownCertificateType = errors.New("unknown certificate type")
)

// ItemCodeError reports a code that is not part of the checklist's template.
type ItemCodeError struct {
	Code            string
	CertificateType domain.CertificateType
}

func (e *ItemCodeError) Error() string {
	return fmt.Sprintf("item code %q is not in the %s schedule", e.Code, e.CertificateType)
}

func (e *ItemCodeError) Unwrap() error { return ErrInvalidItemCode }

// IneligibleSaveError reports an item the save gate rejected.
type IneligibleSaveError struct {
	Code   string
	Result domain.InspectionResult
}

func (e *IneligibleSaveError) Error() string {
	if e.Result == domain.ResultNone {
		return fmt.Sprintf("item %s has no result", e.Code)
	}
	return fmt.Sprintf("item %s marked %s requires notes", e.Code, e.Result)
}

func (e *IneligibleSaveError) Unwrap() error { return ErrIneligibleSave }
