/*
Package catalog provides JSON to Go course catalog conversion.

PURPOSE:
  Converts a JSON catalog definition into an enrollment.Catalog. The front
  desk edits the JSON file; no code change is needed to open a new group,
  change a capacity or adjust the discount table.

JSON SCHEMA:
  {
    "price_per_subject": "100",
    "discount_table": {"1": 0, "2": 5, "3": 10, "4": 15, "5": 20},
    "discount_ceiling": 25,
    "subjects": [
      {
        "id": "1",
        "name": "Mathematics (Group 1)",
        "time_keys": ["mon_15", "thu_15"],
        "capacity": 12,
        "time_display": "Mon/Thu 15:00-16:30"
      }
    ]
  }

VALIDATION:
  - every subject has a non-empty, unique id and a name
  - capacity > 0
  - at least one time key, none containing ';'
  - price and discounts are non-negative, discounts at most 100

DEFAULTS:
  - discount_table missing: the standard tiers
  - discount_ceiling missing: 25

USAGE:
  f := catalog.NewFactory()
  cat, err := f.Load("catalog.json")   // or f.Default()
  reg := enrollment.NewRegistration(ledger, cat)
*/
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/enrollment-engine/enrollment"
)

//go:embed default.json
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a catalog.
type CatalogJSON struct {
	PricePerSubject decimal.Decimal `json:"price_per_subject"`
	DiscountTable   map[int]int     `json:"discount_table,omitempty"`
	DiscountCeiling *int            `json:"discount_ceiling,omitempty"`
	Subjects        []OfferingJSON  `json:"subjects"`
}

// OfferingJSON represents one course group.
type OfferingJSON struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TimeKeys    []string `json:"time_keys"`
	Capacity    int      `json:"capacity"`
	TimeDisplay string   `json:"time_display,omitempty"`
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// Factory converts JSON catalogs to enrollment catalogs.
type Factory struct{}

// NewFactory creates a new catalog factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Default returns the built-in catalog.
func (f *Factory) Default() (*enrollment.StaticCatalog, error) {
	return f.Parse(defaultCatalog)
}

// Load reads and parses a catalog file.
func (f *Factory) Load(path string) (*enrollment.StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return f.Parse(data)
}

// Parse parses JSON into a catalog.
func (f *Factory) Parse(data []byte) (*enrollment.StaticCatalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and builds a catalog.
func (f *Factory) FromJSON(cj CatalogJSON) (*enrollment.StaticCatalog, error) {
	prices, err := parsePrices(cj)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(cj.Subjects))
	offerings := make([]enrollment.Offering, 0, len(cj.Subjects))
	for i, oj := range cj.Subjects {
		off, err := parseOffering(oj)
		if err != nil {
			return nil, fmt.Errorf("%w: subject %d: %v", ErrInvalidCatalog, i+1, err)
		}
		if seen[off.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, off.ID)
		}
		seen[off.ID] = true
		offerings = append(offerings, off)
	}
	if len(offerings) == 0 {
		return nil, fmt.Errorf("%w: no subjects", ErrInvalidCatalog)
	}
	return enrollment.NewStaticCatalog(prices, offerings...), nil
}

// ToJSON converts a catalog back to its JSON form.
func (f *Factory) ToJSON(c enrollment.Catalog) CatalogJSON {
	prices := c.Prices()
	ceiling := prices.Ceiling
	cj := CatalogJSON{
		PricePerSubject: prices.Base,
		DiscountTable:   prices.Tiers,
		DiscountCeiling: &ceiling,
	}
	for _, off := range c.Offerings() {
		cj.Subjects = append(cj.Subjects, OfferingJSON{
			ID:          off.ID,
			Name:        off.Name,
			TimeKeys:    off.TimeKeys,
			Capacity:    off.Capacity,
			TimeDisplay: off.TimeDisplay,
		})
	}
	return cj
}

func parsePrices(cj CatalogJSON) (enrollment.PriceTable, error) {
	if cj.PricePerSubject.IsNegative() {
		return enrollment.PriceTable{}, fmt.Errorf("%w: negative price_per_subject", ErrInvalidCatalog)
	}
	prices := enrollment.NewPriceTable(cj.PricePerSubject)
	if len(cj.DiscountTable) > 0 {
		prices.Tiers = make(map[int]int, len(cj.DiscountTable))
		for count, pct := range cj.DiscountTable {
			if count < 1 || !validPercent(pct) {
				return enrollment.PriceTable{}, fmt.Errorf("%w: discount %d%% for %d subjects", ErrInvalidCatalog, pct, count)
			}
			prices.Tiers[count] = pct
		}
	}
	if cj.DiscountCeiling != nil {
		if !validPercent(*cj.DiscountCeiling) {
			return enrollment.PriceTable{}, fmt.Errorf("%w: discount_ceiling %d%%", ErrInvalidCatalog, *cj.DiscountCeiling)
		}
		prices.Ceiling = *cj.DiscountCeiling
	}
	return prices, nil
}

func parseOffering(oj OfferingJSON) (enrollment.Offering, error) {
	id := strings.TrimSpace(oj.ID)
	name := strings.TrimSpace(oj.Name)
	switch {
	case id == "":
		return enrollment.Offering{}, errors.New("missing id")
	case name == "":
		return enrollment.Offering{}, fmt.Errorf("id %q: missing name", id)
	case oj.Capacity <= 0:
		return enrollment.Offering{}, fmt.Errorf("id %q: capacity must be positive", id)
	}

	var keys enrollment.TimeKeys
	for _, k := range oj.TimeKeys {
		k = strings.TrimSpace(k)
		if strings.Contains(k, ";") {
			return enrollment.Offering{}, fmt.Errorf("id %q: time key %q contains ';'", id, k)
		}
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return enrollment.Offering{}, fmt.Errorf("id %q: no time keys", id)
	}

	return enrollment.Offering{
		ID:          id,
		Name:        name,
		TimeKeys:    keys,
		Capacity:    oj.Capacity,
		TimeDisplay: oj.TimeDisplay,
	}, nil
}

func validPercent(p int) bool { return p >= 0 && p <= 100 }
