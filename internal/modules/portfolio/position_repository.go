package portfolio

import (
	"strings"
	"sync"
	"time"
)

// SecurityInfoProvider supplies the security metadata positions are joined
// with. Defined here to avoid an import cycle with the universe package.
type SecurityInfoProvider interface {
	GetAllActive() ([]SecurityInfo, error)
}

// PositionRepository is a concurrency-safe in-memory store of positions,
// keyed by ISIN.
type PositionRepository struct {
	mu        sync.RWMutex
	byISIN    map[string]Position
	order     []string
	securities SecurityInfoProvider
}

// NewPositionRepository creates an empty repository. securities may be nil;
// GetWithSecurityInfo then returns positions with empty metadata.
func NewPositionRepository(securities SecurityInfoProvider) *PositionRepository {
	return &PositionRepository{
		byISIN:     make(map[string]Position),
		securities: securities,
	}
}

// Seed replaces all positions, e.g. from a planning request's payload.
func (r *PositionRepository) Seed(positions []Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byISIN = make(map[string]Position, len(positions))
	r.order = r.order[:0]
	for _, pos := range positions {
		if pos.ISIN == "" {
			continue
		}
		if _, exists := r.byISIN[pos.ISIN]; !exists {
			r.order = append(r.order, pos.ISIN)
		}
		r.byISIN[pos.ISIN] = pos
	}
}

// GetAll returns every position in insertion order.
func (r *PositionRepository) GetAll() ([]Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Position, 0, len(r.order))
	for _, isin := range r.order {
		out = append(out, r.byISIN[isin])
	}
	return out, nil
}

// GetWithSecurityInfo returns positions joined with security metadata.
func (r *PositionRepository) GetWithSecurityInfo() ([]PositionWithSecurity, error) {
	positions, _ := r.GetAll()

	infoByISIN := make(map[string]SecurityInfo)
	if r.securities != nil {
		if infos, err := r.securities.GetAllActive(); err == nil {
			for _, info := range infos {
				infoByISIN[info.ISIN] = info
			}
		}
	}

	out := make([]PositionWithSecurity, 0, len(positions))
	for _, pos := range positions {
		joined := PositionWithSecurity{Position: pos}
		if info, ok := infoByISIN[pos.ISIN]; ok {
			joined.SecurityName = info.Name
			joined.Geography = info.Geography
			joined.Industry = info.Industry
			joined.FullExchangeName = info.FullExchangeName
			joined.AllowSell = info.AllowSell
		}
		out = append(out, joined)
	}
	return out, nil
}

// GetBySymbol returns the position with the given symbol, or nil.
func (r *PositionRepository) GetBySymbol(symbol string) (*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	upper := strings.ToUpper(symbol)
	for _, pos := range r.byISIN {
		if strings.ToUpper(pos.Symbol) == upper {
			out := pos
			return &out, nil
		}
	}
	return nil, nil
}

// GetByISIN returns the position with the given ISIN, or nil.
func (r *PositionRepository) GetByISIN(isin string) (*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pos, ok := r.byISIN[isin]; ok {
		out := pos
		return &out, nil
	}
	return nil, nil
}

// GetCount returns the number of positions held.
func (r *PositionRepository) GetCount() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byISIN), nil
}

// GetTotalValue sums the market value of every position.
func (r *PositionRepository) GetTotalValue() (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0.0
	for _, pos := range r.byISIN {
		total += pos.MarketValueEUR
	}
	return total, nil
}

// Upsert inserts or replaces a position by ISIN, stamping LastUpdated.
func (r *PositionRepository) Upsert(position Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	position.LastUpdated = &now

	if _, exists := r.byISIN[position.ISIN]; !exists {
		r.order = append(r.order, position.ISIN)
	}
	r.byISIN[position.ISIN] = position
	return nil
}

// Delete removes the position with the given ISIN.
func (r *PositionRepository) Delete(isin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byISIN, isin)
	for i, id := range r.order {
		if id == isin {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteAll removes every position.
func (r *PositionRepository) DeleteAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byISIN = make(map[string]Position)
	r.order = r.order[:0]
	return nil
}

// UpdatePrice refreshes a position's current price and derived values.
func (r *PositionRepository) UpdatePrice(isin string, price float64, currencyRate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.byISIN[isin]
	if !ok {
		return nil
	}

	pos.CurrentPrice = price
	pos.CurrencyRate = currencyRate
	pos.MarketValueEUR = price * pos.Quantity
	if pos.CostBasisEUR > 0 {
		pos.UnrealizedPnL = pos.MarketValueEUR - pos.CostBasisEUR
		pos.UnrealizedPnLPct = pos.UnrealizedPnL / pos.CostBasisEUR
	}
	now := time.Now().Unix()
	pos.LastUpdated = &now

	r.byISIN[isin] = pos
	return nil
}

// UpdateLastSoldAt stamps the position's last-sale time with now.
func (r *PositionRepository) UpdateLastSoldAt(isin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.byISIN[isin]
	if !ok {
		return nil
	}
	now := time.Now().Unix()
	pos.LastSoldAt = &now
	r.byISIN[isin] = pos
	return nil
}
