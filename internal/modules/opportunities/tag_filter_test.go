package opportunities

import (
	"testing"

	maindomain "github.com/aristath/trading-planner/internal/domain"
	planningdomain "github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededRepo(t *testing.T, securities []universe.Security) SecurityRepository {
	t.Helper()
	repo := universe.NewSecurityRepository()
	require.NoError(t, repo.Seed(securities))
	return repo
}

func TestGetOpportunityCandidates_TagFilteringDisabled(t *testing.T) {
	repo := seededRepo(t, []universe.Security{
		{ISIN: "US0000000001", Symbol: "AAA", AllowBuy: true},
		{ISIN: "US0000000002", Symbol: "BBB", AllowBuy: true},
	})
	filter := NewTagBasedFilter(repo, zerolog.Nop())

	ctx := &planningdomain.OpportunityContext{AvailableCashEUR: 5000}
	config := planningdomain.NewDefaultConfiguration()
	config.EnableTagFiltering = false

	symbols, err := filter.GetOpportunityCandidates(ctx, config)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, symbols)
}

func TestGetOpportunityCandidates_TagFilteringEnabled(t *testing.T) {
	repo := seededRepo(t, []universe.Security{
		{ISIN: "US0000000001", Symbol: "QUAL", AllowBuy: true, Tags: []string{"high-quality"}},
		{ISIN: "US0000000002", Symbol: "VAL", AllowBuy: true, Tags: []string{"value-opportunity"}},
		{ISIN: "US0000000003", Symbol: "NONE", AllowBuy: true},
	})
	filter := NewTagBasedFilter(repo, zerolog.Nop())

	// Cash-rich neutral regime selects quality, value, and dividend tags.
	ctx := &planningdomain.OpportunityContext{AvailableCashEUR: 5000}
	config := planningdomain.NewDefaultConfiguration()

	symbols, err := filter.GetOpportunityCandidates(ctx, config)
	require.NoError(t, err)
	assert.Contains(t, symbols, "QUAL")
	assert.Contains(t, symbols, "VAL")
	assert.NotContains(t, symbols, "NONE")
}

func TestGetOpportunityCandidates_NilContext(t *testing.T) {
	filter := NewTagBasedFilter(seededRepo(t, nil), zerolog.Nop())

	symbols, err := filter.GetOpportunityCandidates(nil, planningdomain.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestGetSellCandidates_MatchesSellTagsOnPositions(t *testing.T) {
	repo := seededRepo(t, []universe.Security{
		{ISIN: "US0000000001", Symbol: "HOT", AllowSell: true, Tags: []string{"overvalued"}},
		{ISIN: "US0000000002", Symbol: "HELD", AllowSell: true, Tags: []string{"stable"}},
		{ISIN: "US0000000003", Symbol: "NOTHELD", AllowSell: true, Tags: []string{"overvalued"}},
	})
	filter := NewTagBasedFilter(repo, zerolog.Nop())

	ctx := &planningdomain.OpportunityContext{
		Positions: []maindomain.Position{
			{Symbol: "HOT", Quantity: 10},
			{Symbol: "HELD", Quantity: 5},
		},
	}

	symbols, err := filter.GetSellCandidates(ctx, planningdomain.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Contains(t, symbols, "HOT")
	assert.NotContains(t, symbols, "HELD", "position without sell tags should not be a candidate")
	assert.NotContains(t, symbols, "NOTHELD", "unheld security must never be a sell candidate")
}

func TestGetSellCandidates_NoPositions(t *testing.T) {
	filter := NewTagBasedFilter(seededRepo(t, nil), zerolog.Nop())

	symbols, err := filter.GetSellCandidates(&planningdomain.OpportunityContext{}, planningdomain.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestGetSellCandidates_TagFilteringDisabledReturnsAllPositions(t *testing.T) {
	filter := NewTagBasedFilter(seededRepo(t, nil), zerolog.Nop())

	ctx := &planningdomain.OpportunityContext{
		Positions: []maindomain.Position{
			{Symbol: "AAA", Quantity: 1},
			{Symbol: "BBB", Quantity: 2},
		},
	}
	config := planningdomain.NewDefaultConfiguration()
	config.EnableTagFiltering = false

	symbols, err := filter.GetSellCandidates(ctx, config)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, symbols)
}
