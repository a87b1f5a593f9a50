// Package services provides core business services shared across multiple
// modules: currency conversion, price conversion, and the opportunity
// context builder.
package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// CurrencyExchangeService converts between currencies using an in-memory
// rate table keyed against EUR. Rates are seeded at startup or from the
// planning request; unknown pairs are crossed through EUR.
type CurrencyExchangeService struct {
	mu       sync.RWMutex
	eurRates map[string]float64 // currency -> units per 1 EUR
	log      zerolog.Logger
}

// NewCurrencyExchangeService creates the service with an optional initial
// rate table (currency -> units per EUR). EUR itself is always 1.
func NewCurrencyExchangeService(eurRates map[string]float64, log zerolog.Logger) *CurrencyExchangeService {
	rates := map[string]float64{"EUR": 1.0}
	for currency, rate := range eurRates {
		if rate > 0 {
			rates[strings.ToUpper(currency)] = rate
		}
	}
	return &CurrencyExchangeService{
		eurRates: rates,
		log:      log.With().Str("service", "currency_exchange").Logger(),
	}
}

// SetRate sets the units-per-EUR rate for a currency.
func (s *CurrencyExchangeService) SetRate(currency string, unitsPerEUR float64) {
	if unitsPerEUR <= 0 {
		return
	}
	s.mu.Lock()
	s.eurRates[strings.ToUpper(currency)] = unitsPerEUR
	s.mu.Unlock()
}

// GetRate returns the exchange rate from one currency to another: an amount
// in fromCurrency multiplied by the rate yields toCurrency.
func (s *CurrencyExchangeService) GetRate(fromCurrency, toCurrency string) (float64, error) {
	from := strings.ToUpper(fromCurrency)
	to := strings.ToUpper(toCurrency)
	if from == to {
		return 1.0, nil
	}

	s.mu.RLock()
	fromPerEUR, fromOK := s.eurRates[from]
	toPerEUR, toOK := s.eurRates[to]
	s.mu.RUnlock()

	if !fromOK || !toOK {
		return 0, fmt.Errorf("no exchange rate for %s/%s", fromCurrency, toCurrency)
	}

	// Cross through EUR: X from -> X/fromPerEUR EUR -> * toPerEUR to.
	return toPerEUR / fromPerEUR, nil
}

// EnsureBalance reports whether minAmount of currency is available,
// nominally converting from sourceCurrency. With no broker attached there
// is nothing to move, so this only validates that a conversion rate exists.
func (s *CurrencyExchangeService) EnsureBalance(currency string, minAmount float64, sourceCurrency string) (bool, error) {
	if _, err := s.GetRate(sourceCurrency, currency); err != nil {
		return false, err
	}
	return true, nil
}
