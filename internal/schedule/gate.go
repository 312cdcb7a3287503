package schedule

import (
	"errors"
	"strings"

	"certline/internal/domain"
)

// IsSaveEligible reports whether an item may be saved: it has a result,
// and a fail or limitation result carries non-blank notes.
func IsSaveEligible(item domain.InspectionItem) bool {
	return CheckSave(item) == nil
}

// CheckSave is IsSaveEligible returning an *IneligibleSaveError.
func CheckSave(item domain.InspectionItem) error {
	if item.Result == domain.ResultNone {
		return &IneligibleSaveError{Code: item.ItemCode}
	}
	if item.Result.RequiresNotes() && strings.TrimSpace(item.Notes) == "" {
		return &IneligibleSaveError{Code: item.ItemCode, Result: item.Result}
	}
	return nil
}

// SaveItem runs the gate for a single item of the checklist.
func (c *Checklist) SaveItem(code string) (domain.InspectionItem, error) {
	it, err := c.Item(code)
	if err != nil {
		return domain.InspectionItem{}, err
	}
	if err := CheckSave(it); err != nil {
		return domain.InspectionItem{}, err
	}
	return it, nil
}

// ItemUpdate is one change in a batch save. Nil fields are left unchanged.
type ItemUpdate struct {
	ItemCode string                   `json:"item_code"`
	Result   *domain.InspectionResult `json:"result,omitempty" enum:"pass,fail,n/a,limitation"`
	Notes    *string                  `json:"notes,omitempty"`
}

const (
	ReasonInvalidItemCode = "invalid_item_code"
	ReasonInvalidResult   = "invalid_result"
	ReasonIneligibleSave  = "ineligible_save"
)

// ItemFailure is a rejected item in a batch.
type ItemFailure struct {
	ItemCode string `json:"item_code"`
	Reason   string `json:"reason" enum:"invalid_item_code,invalid_result,ineligible_save"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

// BatchReport lists what a batch save accepted, rejected and skipped.
type BatchReport struct {
	Saved    []domain.InspectionItem `json:"saved"`
	Failures []ItemFailure           `json:"failures"`
	Skipped  []string                `json:"skipped,omitempty"`
}

// OK reports whether nothing in the batch was rejected.
func (r BatchReport) OK() bool { return len(r.Failures) == 0 }

// ApplyBatch applies each update and runs the gate on the touched item.
// Items are handled independently: a bad code or a rejected item is
// recorded as a failure and the rest of the batch continues. Updates stay
// applied in the checklist even when the gate rejects them.
func (c *Checklist) ApplyBatch(updates []ItemUpdate) BatchReport {
	report := BatchReport{Saved: []domain.InspectionItem{}, Failures: []ItemFailure{}}
	for _, u := range updates {
		it, err := c.applyUpdate(u)
		if err != nil {
			report.Failures = append(report.Failures, newFailure(u.ItemCode, err))
			continue
		}
		report.Saved = append(report.Saved, it)
	}
	return report
}

func (c *Checklist) applyUpdate(u ItemUpdate) (domain.InspectionItem, error) {
	if _, err := c.indexOf(u.ItemCode); err != nil {
		return domain.InspectionItem{}, err
	}
	if u.Result != nil {
		if err := c.SetResult(u.ItemCode, *u.Result); err != nil {
			return domain.InspectionItem{}, err
		}
	}
	if u.Notes != nil {
		if err := c.SetNotes(u.ItemCode, *u.Notes); err != nil {
			return domain.InspectionItem{}, err
		}
	}
	return c.SaveItem(u.ItemCode)
}

// SaveAll runs the gate over every inspected item. Items without a result
// are skipped, not rejected.
func (c *Checklist) SaveAll() BatchReport {
	report := BatchReport{Saved: []domain.InspectionItem{}, Failures: []ItemFailure{}}
	for _, it := range c.Items {
		if it.Result == domain.ResultNone {
			report.Skipped = append(report.Skipped, it.ItemCode)
			continue
		}
		if err := CheckSave(it); err != nil {
			report.Failures = append(report.Failures, newFailure(it.ItemCode, err))
			continue
		}
		report.Saved = append(report.Saved, it)
	}
	return report
}

// CertificateEligible reports whether every item has a result and passes
// the gate. Blocking lists the codes that do not, in template order.
func (c *Checklist) CertificateEligible() (eligible bool, blocking []string) {
	for _, it := range c.Items {
		if !IsSaveEligible(it) {
			blocking = append(blocking, it.ItemCode)
		}
	}
	return len(c.Items) > 0 && len(blocking) == 0, blocking
}

func newFailure(code string, err error) ItemFailure {
	f := ItemFailure{ItemCode: code, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, ErrInvalidItemCode):
		f.Reason = ReasonInvalidItemCode
	case errors.Is(err, ErrInvalidResult):
		f.Reason = ReasonInvalidResult
	default:
		f.Reason = ReasonIneligibleSave
	}
	return f
}
