/*
pricing.go - Volume discount pricing

PURPOSE:
  Maps the number of subjects a student holds to a discount percentage and
  prices the subjects being added.

TIER LOOKUP:
  - exact count present in the table: that percent
  - count above the largest key: the flat ceiling (never extrapolated)
  - any other count: 0%

VOLUME RULE:
  The tier is chosen by the student's whole portfolio (already active +
  newly added) but only the new subjects are charged:

    quote := table.QuoteFor(prior, added)
    total  = quote.PerSubject × added

EXAMPLE (base 100, tiers {1:0, 2:5, 3:10, 4:15, 5:20}, ceiling 25):
  Price(3) => base 100, 10%, 90.00 per subject
  Price(7) => 25%
*/
package enrollment

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceTable holds the base price per subject and the discount tiers.
type PriceTable struct {
	Base    decimal.Decimal
	Tiers   map[int]int // subject count -> discount percent
	Ceiling int         // percent for counts above the largest tier key
}

// DefaultTiers is the tutoring center's standard discount table.
func DefaultTiers() map[int]int {
	return map[int]int{1: 0, 2: 5, 3: 10, 4: 15, 5: 20}
}

// DefaultCeiling applies to counts above the largest tier.
const DefaultCeiling = 25

// NewPriceTable builds a table with the standard tiers.
func NewPriceTable(base decimal.Decimal) PriceTable {
	return PriceTable{Base: base, Tiers: DefaultTiers(), Ceiling: DefaultCeiling}
}

// Quote is the price of one subject at a given portfolio size.
type Quote struct {
	SubjectCount    int
	Base            decimal.Decimal
	DiscountPercent int
	PerSubject      decimal.Decimal
}

// Invoice is the amount charged for newly added subjects.
type Invoice struct {
	Quote
	Prior int
	Added int
	Total decimal.Decimal
}

// DiscountPercent returns the discount for a subject count.
func (t PriceTable) DiscountPercent(count int) int {
	if pct, ok := t.Tiers[count]; ok {
		return pct
	}
	if count > t.maxTier() {
		return t.Ceiling
	}
	return 0
}

func (t PriceTable) maxTier() int {
	max := 0
	for k := range t.Tiers {
		if k > max {
			max = k
		}
	}
	return max
}

// Price returns the per-subject price at the given subject count.
func (t PriceTable) Price(count int) Quote {
	pct := t.DiscountPercent(count)
	factor := hundred.Sub(decimal.NewFromInt(int64(pct))).Div(hundred)
	return Quote{
		SubjectCount:    count,
		Base:            t.Base,
		DiscountPercent: pct,
		PerSubject:      t.Base.Mul(factor),
	}
}

// QuoteFor prices added subjects using the tier of prior+added subjects.
func (t PriceTable) QuoteFor(prior, added int) Invoice {
	q := t.Price(prior + added)
	return Invoice{
		Quote: q,
		Prior: prior,
		Added: added,
		Total: q.PerSubject.Mul(decimal.NewFromInt(int64(added))),
	}
}
