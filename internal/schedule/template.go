package schedule

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"certline/internal/domain"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is the fixed, ordered schedule of inspection for a certificate type.
type Template struct {
	CertificateType domain.CertificateType `json:"certificate_type"`
	Items           []domain.InspectionItem `json:"items"`
}

var builtin = mustLoadTemplates(templatesYAML)

func mustLoadTemplates(data []byte) map[domain.CertificateType]Template {
	t, err := LoadTemplates(data)
	if err != nil {
		panic(fmt.Sprintf("embedded inspection templates: %v", err))
	}
	return t
}

// LoadTemplates parses a YAML document mapping certificate type to item
// list and validates each template.
func LoadTemplates(data []byte) (map[domain.CertificateType]Template, error) {
	var raw map[domain.CertificateType][]domain.InspectionItem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	out := make(map[domain.CertificateType]Template, len(raw))
	for ct, items := range raw {
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCertificateType, ct)
		}
		t := Template{CertificateType: ct, Items: items}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		out[ct] = t
	}
	return out, nil
}

// Validate checks codes are unique and every item is complete.
func (t Template) Validate() error {
	seen := make(map[string]struct{}, len(t.Items))
	for i, it := range t.Items {
		switch {
		case strings.TrimSpace(it.ItemCode) == "":
			return fmt.Errorf("%s template item %d: missing code", t.CertificateType, i)
		case strings.TrimSpace(it.Category) == "":
			return fmt.Errorf("%s template item %s: missing category", t.CertificateType, it.ItemCode)
		case strings.TrimSpace(it.Item) == "":
			return fmt.Errorf("%s template item %s: missing description", t.CertificateType, it.ItemCode)
		case !it.Result.Valid():
			return fmt.Errorf("%s template item %s: %w %q", t.CertificateType, it.ItemCode, ErrInvalidResult, it.Result)
		}
		if _, dup := seen[it.ItemCode]; dup {
			return fmt.Errorf("%s template: duplicate item code %s", t.CertificateType, it.ItemCode)
		}
		seen[it.ItemCode] = struct{}{}
	}
	return nil
}

// TemplateFor returns a copy of the built-in template for ct.
func TemplateFor(ct domain.CertificateType) (Template, error) {
	t, ok := builtin[ct]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownCertificateType, ct)
	}
	items := make([]domain.InspectionItem, len(t.Items))
	copy(items, t.Items)
	return Template{CertificateType: ct, Items: items}, nil
}

// Codes returns the item codes in template order.
func (t Template) Codes() []string {
	codes := make([]string, len(t.Items))
	for i, it := range t.Items {
		codes[i] = it.ItemCode
	}
	return codes
}
