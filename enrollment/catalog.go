package enrollment

// Catalog supplies the course offerings and prices. It is read-only and
// loaded once per process.
type Catalog interface {
	Offering(id string) (Offering, bool)
	Offerings() []Offering
	Prices() PriceTable
}

// StaticCatalog is an in-memory Catalog preserving offering order.
type StaticCatalog struct {
	offerings []Offering
	byID      map[string]int
	prices    PriceTable
}

// NewStaticCatalog builds a catalog. Later offerings with a duplicate id are ignored.
func NewStaticCatalog(prices PriceTable, offerings ...Offering) *StaticCatalog {
	c := &StaticCatalog{byID: make(map[string]int, len(offerings)), prices: prices}
	for _, o := range offerings {
		if _, dup := c.byID[o.ID]; dup {
			continue
		}
		c.byID[o.ID] = len(c.offerings)
		c.offerings = append(c.offerings, o)
	}
	return c
}

func (c *StaticCatalog) Offering(id string) (Offering, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Offering{}, false
	}
	return c.offerings[i], true
}

func (c *StaticCatalog) Offerings() []Offering {
	out := make([]Offering, len(c.offerings))
	copy(out, c.offerings)
	return out
}

func (c *StaticCatalog) Prices() PriceTable { return c.prices }
