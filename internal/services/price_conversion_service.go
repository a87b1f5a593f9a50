package services

import (
	"github.com/aristath/trading-planner/internal/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
)

// PriceConversionService converts symbol-keyed price quotes into EUR using
// each security's trading currency. A price whose rate can't be resolved
// is passed through unchanged rather than dropped; a stale-but-present
// price beats a missing one for planning purposes.
type PriceConversionService struct {
	exchangeService domain.CurrencyExchangeServiceInterface
	log             zerolog.Logger
}

// NewPriceConversionService creates a new price conversion service.
func NewPriceConversionService(exchangeService domain.CurrencyExchangeServiceInterface, log zerolog.Logger) *PriceConversionService {
	return &PriceConversionService{
		exchangeService: exchangeService,
		log:             log.With().Str("service", "price_conversion").Logger(),
	}
}

// ConvertPricesToEUR converts every quoted price into EUR. EUR-denominated
// securities and symbols without a known currency pass through.
func (s *PriceConversionService) ConvertPricesToEUR(prices map[string]float64, securities []universe.Security) map[string]float64 {
	currencyBySymbol := make(map[string]string, len(securities))
	for _, sec := range securities {
		if sec.Symbol != "" && sec.Currency != "" {
			currencyBySymbol[sec.Symbol] = sec.Currency
		}
	}

	converted := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		currency, ok := currencyBySymbol[symbol]
		if !ok || currency == "EUR" || s.exchangeService == nil {
			converted[symbol] = price
			continue
		}

		rate, err := s.exchangeService.GetRate(currency, "EUR")
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("currency", currency).
				Msg("No exchange rate, keeping original price")
			converted[symbol] = price
			continue
		}
		converted[symbol] = price * rate
	}

	return converted
}
