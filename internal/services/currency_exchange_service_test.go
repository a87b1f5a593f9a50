package services

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrencyExchangeService_GetRate_SameCurrency(t *testing.T) {
	service := NewCurrencyExchangeService(nil, zerolog.Nop())

	rate, err := service.GetRate("EUR", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestCurrencyExchangeService_GetRate_DirectPair(t *testing.T) {
	service := NewCurrencyExchangeService(map[string]float64{
		"USD": 1.10,
		"GBP": 0.85,
	}, zerolog.Nop())

	tests := []struct {
		name     string
		from     string
		to       string
		expected float64
	}{
		{"EUR to USD", "EUR", "USD", 1.10},
		{"USD to EUR", "USD", "EUR", 1.0 / 1.10},
		{"EUR to GBP", "EUR", "GBP", 0.85},
		{"GBP to EUR", "GBP", "EUR", 1.0 / 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rate, err := service.GetRate(tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, rate, 1e-9)
		})
	}
}

func TestCurrencyExchangeService_GetRate_CrossViaEUR(t *testing.T) {
	service := NewCurrencyExchangeService(map[string]float64{
		"USD": 1.10,
		"GBP": 0.85,
	}, zerolog.Nop())

	// 1 GBP -> 1/0.85 EUR -> 1.10/0.85 USD.
	rate, err := service.GetRate("GBP", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1.10/0.85, rate, 1e-9)

	// The round trip multiplies back to 1.
	back, err := service.GetRate("USD", "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rate*back, 1e-9)
}

func TestCurrencyExchangeService_GetRate_UnknownCurrency(t *testing.T) {
	service := NewCurrencyExchangeService(map[string]float64{"USD": 1.10}, zerolog.Nop())

	_, err := service.GetRate("EUR", "JPY")
	assert.Error(t, err)

	_, err = service.GetRate("JPY", "EUR")
	assert.Error(t, err)
}

func TestCurrencyExchangeService_SetRate(t *testing.T) {
	service := NewCurrencyExchangeService(nil, zerolog.Nop())

	_, err := service.GetRate("EUR", "CHF")
	require.Error(t, err)

	service.SetRate("CHF", 0.95)
	rate, err := service.GetRate("EUR", "CHF")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, rate, 1e-9)

	// Non-positive rates are ignored.
	service.SetRate("CHF", -1)
	rate, err = service.GetRate("EUR", "CHF")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, rate, 1e-9)
}

func TestCurrencyExchangeService_EnsureBalance(t *testing.T) {
	service := NewCurrencyExchangeService(map[string]float64{"USD": 1.10}, zerolog.Nop())

	ok, err := service.EnsureBalance("USD", 500, "EUR")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = service.EnsureBalance("JPY", 500, "EUR")
	assert.Error(t, err)
	assert.False(t, ok)
}
