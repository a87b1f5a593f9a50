package domain

import "time"

// EnrichedPosition is one held position with everything planning needs
// joined in up front: the position's own accounting, its security's trade
// rules, and the current price. Calculators iterate these instead of
// chasing map lookups per field.
type EnrichedPosition struct {
	// Position accounting (all EUR)
	ISIN             string
	Symbol           string
	Quantity         float64
	AverageCost      float64
	Currency         string
	CurrencyRate     float64 // 1 EUR = CurrencyRate units
	MarketValueEUR   float64
	CostBasisEUR     float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	LastUpdated      *time.Time
	FirstBoughtAt    *time.Time
	LastSoldAt       *time.Time

	// Security metadata
	SecurityName string
	Geography    string // Comma-separated for multiple
	Industry     string // Comma-separated for multiple
	Exchange     string
	Active       bool
	AllowBuy     bool
	AllowSell    bool
	MinLot       int

	// Market data
	CurrentPrice float64

	// Derived
	DaysHeld          *int
	WeightInPortfolio float64
}

// CanBuy reports whether buying more of this security is allowed.
func (e *EnrichedPosition) CanBuy() bool { return e.AllowBuy }

// CanSell reports whether selling this security is allowed.
func (e *EnrichedPosition) CanSell() bool { return e.AllowSell }

// GainPercent is the unrealized return against cost basis, 0 when the cost
// basis is unusable.
func (e *EnrichedPosition) GainPercent() float64 {
	if e.AverageCost <= 0 {
		return 0
	}
	return (e.CurrentPrice - e.AverageCost) / e.AverageCost
}
