package standards

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tidwall/jsonc"

	"certline/internal/domain"
)

//go:embed standards.jsonc
var seedJSONC []byte

// Catalog is an immutable in-memory set of standards.
type Catalog struct {
	byKey map[Key]domain.MeasurementStandard
	order []Key
}

type catalogFile struct {
	Standards []domain.MeasurementStandard `json:"standards"`
}

// NewCatalog builds a catalog, rejecting invalid standards and duplicate
// keys. Circuit type and rating are stored normalised.
func NewCatalog(items []domain.MeasurementStandard) (*Catalog, error) {
	c := &Catalog{byKey: make(map[Key]domain.MeasurementStandard, len(items))}
	for i, s := range items {
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("standard %d: %w", i, err)
		}
		k := KeyOf(s)
		if _, ok := c.byKey[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
		s.CircuitType = k.CircuitType
		s.CircuitRating = k.CircuitRating
		c.byKey[k] = s
		c.order = append(c.order, k)
	}
	return c, nil
}

// Parse reads a JSONC catalog document: {"standards": [...]}, with
// comments and trailing commas allowed.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, fmt.Errorf("parsing standards catalog: %w", err)
	}
	return NewCatalog(f.Standards)
}

// ReadFile parses the JSONC catalog at path.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the built-in BS 7671 catalog.
func Default() *Catalog {
	c, err := Parse(seedJSONC)
	if err != nil {
		panic(fmt.Sprintf("embedded standards catalog: %v", err))
	}
	return c
}

// FindStandard implements Finder.
func (c *Catalog) FindStandard(_ context.Context, mt domain.MeasurementType, circuitType, circuitRating string) (*domain.MeasurementStandard, error) {
	for _, k := range Candidates(mt, circuitType, circuitRating) {
		if s, ok := c.byKey[k]; ok {
			return &s, nil
		}
	}
	return nil, nil
}

// List returns the standards in insertion order.
func (c *Catalog) List() []domain.MeasurementStandard {
	out := make([]domain.MeasurementStandard, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

// Sorted returns the standards ordered by measurement type, circuit type
// and rating.
func (c *Catalog) Sorted() []domain.MeasurementStandard {
	out := c.List()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MeasurementType != b.MeasurementType {
			return a.MeasurementType < b.MeasurementType
		}
		if a.CircuitType != b.CircuitType {
			return a.CircuitType < b.CircuitType
		}
		return a.CircuitRating < b.CircuitRating
	})
	return out
}

func (c *Catalog) Len() int { return len(c.order) }
