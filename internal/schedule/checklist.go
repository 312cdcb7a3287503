// Package schedule manages inspection checklists built from the fixed
// schedule of inspection for each certificate type.
//
// Mutations do not validate note requirements; an inspector may pick a
// result before typing notes. The save gate (IsSaveEligible) is the only
// place the "fail and limitation need notes" rule is enforced.
package schedule

import (
	"fmt"
	"math"

	"certline/internal/domain"
)

// Checklist is one inspection in progress. Item order and membership come
// from the template and never change.
type Checklist struct {
	CertificateType domain.CertificateType  `json:"certificate_type"`
	Items           []domain.InspectionItem `json:"items"`
}

// Progress counts inspected items. Percent is rounded to the nearest whole
// number and is 0 for an empty checklist.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// CategoryGroup is a display section of a checklist.
type CategoryGroup struct {
	Category string                  `json:"category"`
	Items    []domain.InspectionItem `json:"items"`
	Progress Progress                `json:"progress"`
}

// Initialize builds a checklist for ct. Existing items, when given, are
// merged by item code: their result and notes replace the template
// defaults. Codes absent from the template are ignored and missing codes
// keep the template defaults. A stored result outside the result set is
// ignored and the template default stands; its notes are kept.
func Initialize(ct domain.CertificateType, existing []domain.InspectionItem) (*Checklist, error) {
	t, err := TemplateFor(ct)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]domain.InspectionItem, len(existing))
	for _, it := range existing {
		byCode[it.ItemCode] = it
	}
	items := t.Items
	for i := range items {
		if prev, ok := byCode[items[i].ItemCode]; ok {
			if prev.Result.Valid() {
				items[i].Result = prev.Result
			}
			items[i].Notes = prev.Notes
		}
	}
	return &Checklist{CertificateType: ct, Items: items}, nil
}

func (c *Checklist) indexOf(code string) (int, error) {
	for i := range c.Items {
		if c.Items[i].ItemCode == code {
			return i, nil
		}
	}
	return -1, &ItemCodeError{Code: code, CertificateType: c.CertificateType}
}

// Item returns the item with the given code.
func (c *Checklist) Item(code string) (domain.InspectionItem, error) {
	i, err := c.indexOf(code)
	if err != nil {
		return domain.InspectionItem{}, err
	}
	return c.Items[i], nil
}

// SetResult records a result, leaving notes untouched. ResultNone clears it.
func (c *Checklist) SetResult(code string, result domain.InspectionResult) error {
	if !result.Valid() {
		return fmt.Errorf("item %s: %w %q", code, ErrInvalidResult, result)
	}
	i, err := c.indexOf(code)
	if err != nil {
		return err
	}
	c.Items[i].Result = result
	return nil
}

// SetNotes replaces the notes of an item, leaving the result untouched.
func (c *Checklist) SetNotes(code, notes string) error {
	i, err := c.indexOf(code)
	if err != nil {
		return err
	}
	c.Items[i].Notes = notes
	return nil
}

// Progress reports completion over the whole checklist.
func (c *Checklist) Progress() Progress {
	return ComputeProgress(c.Items)
}

// ComputeProgress counts items with any result, n/a included.
func ComputeProgress(items []domain.InspectionItem) Progress {
	p := Progress{Total: len(items)}
	for _, it := range items {
		if it.Result != domain.ResultNone {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}

// GroupByCategory splits items into sections in first-seen category order.
func (c *Checklist) GroupByCategory() []CategoryGroup {
	var groups []CategoryGroup
	index := make(map[string]int)
	for _, it := range c.Items {
		i, ok := index[it.Category]
		if !ok {
			i = len(groups)
			index[it.Category] = i
			groups = append(groups, CategoryGroup{Category: it.Category})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	for i := range groups {
		groups[i].Progress = ComputeProgress(groups[i].Items)
	}
	return groups
}
