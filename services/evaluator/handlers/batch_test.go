package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/trading-planner/internal/evaluation/models"
)

func evaluatorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	batch := NewBatchEvaluator(2, zerolog.Nop())
	advanced := NewAdvancedEvaluator(zerolog.Nop())

	router.GET("/health", HealthCheck)
	router.POST("/evaluate/batch", batch.EvaluateBatch)
	router.POST("/evaluate/monte-carlo", advanced.EvaluateMonteCarlo)
	router.POST("/evaluate/stochastic", advanced.EvaluateStochastic)
	router.POST("/simulate/batch", batch.SimulateBatch)
	return router
}

func evalContext(cash float64) models.EvaluationContext {
	return models.EvaluationContext{
		PortfolioContext: models.PortfolioContext{
			Positions:  map[string]float64{"AAPL": 5000},
			TotalValue: 10000,
			GeographyWeights: map[string]float64{
				"US": 1.0,
			},
			SecurityGeographies: map[string]string{"AAPL": "US"},
		},
		AvailableCashEUR:       cash,
		TotalPortfolioValueEUR: 10000,
		TransactionCostFixed:   2.0,
		TransactionCostPercent: 0.002,
	}
}

func sellSequence(symbol string, value float64) []models.ActionCandidate {
	return []models.ActionCandidate{
		{Side: models.TradeSideSell, Symbol: symbol, Quantity: 1, ValueEUR: value},
	}
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestEvaluateBatch_ReturnsSortedLocalBeam(t *testing.T) {
	router := evaluatorRouter()

	request := models.BatchEvaluationRequest{
		Sequences: [][]models.ActionCandidate{
			sellSequence("A", 100),
			sellSequence("B", 500),
			sellSequence("C", 300),
		},
		EvaluationContext: evalContext(1000),
		BeamWidth:         2,
	}

	recorder := postJSON(t, router, "/evaluate/batch", request)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response models.BatchEvaluationResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))

	assert.Len(t, response.Results, 3, "one result per input sequence")
	assert.Equal(t, 3, response.TotalEvaluated)
	assert.Equal(t, 2, response.BeamWidth)
	require.LessOrEqual(t, len(response.TopSequences), 2)

	for i := 1; i < len(response.TopSequences); i++ {
		assert.GreaterOrEqual(t, response.TopSequences[i-1].Score, response.TopSequences[i].Score,
			"top_sequences must be sorted by score descending")
	}
	for _, top := range response.TopSequences {
		assert.True(t, top.Feasible)
	}
}

func TestEvaluateBatch_RejectsBadRequests(t *testing.T) {
	router := evaluatorRouter()

	empty := models.BatchEvaluationRequest{EvaluationContext: evalContext(100)}
	assert.Equal(t, http.StatusBadRequest, postJSON(t, router, "/evaluate/batch", empty).Code)

	negative := models.BatchEvaluationRequest{
		Sequences:         [][]models.ActionCandidate{sellSequence("A", 100)},
		EvaluationContext: evalContext(100),
	}
	negative.EvaluationContext.TransactionCostFixed = -1
	assert.Equal(t, http.StatusBadRequest, postJSON(t, router, "/evaluate/batch", negative).Code)
}

func TestEvaluateMonteCarlo_Endpoint(t *testing.T) {
	router := evaluatorRouter()

	request := models.MonteCarloRequest{
		Sequence:          sellSequence("A", 100),
		EvaluationContext: evalContext(1000),
		Paths:             50,
		Seed:              7,
		SymbolVolatilities: map[string]float64{
			"A": 0.3,
		},
	}

	recorder := postJSON(t, router, "/evaluate/monte-carlo", request)
	require.Equal(t, http.StatusOK, recorder.Code)

	var result models.MonteCarloResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))

	assert.Equal(t, 50, result.PathsEvaluated)
	assert.LessOrEqual(t, result.WorstScore, result.AvgScore)
	assert.LessOrEqual(t, result.AvgScore, result.BestScore)
	// Final score blends 0.4*worst + 0.3*p10 + 0.3*mean.
	expected := 0.4*result.WorstScore + 0.3*result.P10Score + 0.3*result.AvgScore
	assert.InDelta(t, expected, result.FinalScore, 1e-9)
}

func TestEvaluateStochastic_Endpoint(t *testing.T) {
	router := evaluatorRouter()

	request := models.StochasticRequest{
		Sequence:          sellSequence("A", 100),
		EvaluationContext: evalContext(1000),
	}

	recorder := postJSON(t, router, "/evaluate/stochastic", request)
	require.Equal(t, http.StatusOK, recorder.Code)

	var result models.StochasticResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))

	assert.Equal(t, 5, result.ScenariosEvaluated, "default shift set has five scenarios")
	assert.Len(t, result.ScenarioScores, 5)
}

func TestHealthEndpoint(t *testing.T) {
	router := evaluatorRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &health))
	assert.True(t, health.Healthy)
	assert.Equal(t, Version, health.Version)
	assert.NotEmpty(t, health.Checks)
}
