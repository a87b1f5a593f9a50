package opportunities

import (
	"github.com/aristath/trading-planner/internal/modules/planning/domain"
	"github.com/aristath/trading-planner/internal/modules/universe"
	"github.com/rs/zerolog"
)

// Tag sets the filter selects from. Which buy-side sets apply depends on
// the detected market regime; the sell-side set is static.
var (
	regimeBuyTags = map[string][]string{
		"bear":     {"regime-bear-safe", "value-opportunity", "deep-value", "quality-value", "dividend-opportunity", "high-dividend", "dividend-grower"},
		"bull":     {"regime-bull-growth", "recovery-candidate", "oversold", "high-total-return", "excellent-total-return"},
		"sideways": {"regime-sideways-value", "dividend-opportunity", "high-dividend", "value-opportunity", "deep-value"},
		"volatile": {"regime-bear-safe", "low-risk", "stable", "oversold", "recovery-candidate"},
	}

	neutralValueTags    = []string{"value-opportunity", "deep-value", "quality-value"}
	neutralVolatileTags = []string{"oversold", "recovery-candidate"}
	neutralIncomeTags   = []string{"dividend-opportunity", "high-dividend", "dividend-grower", "high-total-return", "excellent-total-return"}

	sellTags = []string{
		"overvalued", "near-52w-high", "overbought",
		"overweight", "concentration-risk",
		"needs-rebalance", "slightly-overweight",
		"bubble-risk",
	}
)

// TagBasedFilter narrows the candidate universe by tags before the
// calculators run, cutting a hundred-security scan to the dozen that
// plausibly match an opportunity. With tag filtering disabled it passes
// everything through.
type TagBasedFilter struct {
	securityRepo SecurityRepository
	log          zerolog.Logger
}

// NewTagBasedFilter creates a new tag-based filter.
func NewTagBasedFilter(securityRepo SecurityRepository, log zerolog.Logger) *TagBasedFilter {
	return &TagBasedFilter{
		securityRepo: securityRepo,
		log:          log.With().Str("component", "tag_filter").Logger(),
	}
}

// GetOpportunityCandidates returns the symbols matching the regime's buy
// tags, or every active symbol when tag filtering is disabled.
func (f *TagBasedFilter) GetOpportunityCandidates(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) ([]string, error) {
	if ctx == nil || f.securityRepo == nil {
		return nil, nil
	}

	if config != nil && !config.EnableTagFiltering {
		all, err := f.securityRepo.GetAllActive()
		if err != nil {
			return nil, err
		}
		return symbolsOf(all), nil
	}

	tags := f.buyTags(ctx, config)
	if len(tags) == 0 {
		return []string{}, nil
	}

	matched, err := f.securityRepo.GetByTags(tags)
	if err != nil {
		return nil, err
	}

	symbols := symbolsOf(matched)
	f.log.Debug().Strs("tags", tags).Int("candidates", len(symbols)).Msg("Tag-based buy pre-filtering complete")
	return symbols, nil
}

// GetSellCandidates returns held symbols matching the sell tags, or every
// held symbol when tag filtering is disabled.
func (f *TagBasedFilter) GetSellCandidates(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) ([]string, error) {
	if ctx == nil || f.securityRepo == nil || len(ctx.Positions) == 0 {
		return []string{}, nil
	}

	held := make([]string, 0, len(ctx.Positions))
	for _, pos := range ctx.Positions {
		if pos.Symbol != "" {
			held = append(held, pos.Symbol)
		}
	}
	if len(held) == 0 {
		return []string{}, nil
	}

	if config != nil && !config.EnableTagFiltering {
		return held, nil
	}

	matched, err := f.securityRepo.GetPositionsByTags(held, sellTags)
	if err != nil {
		return nil, err
	}

	symbols := symbolsOf(matched)
	f.log.Debug().Int("positions", len(held)).Int("candidates", len(symbols)).Msg("Tag-based sell pre-filtering complete")
	return symbols, nil
}

// IsMarketVolatile reports whether enough securities carry the
// volatility-spike tag to treat the whole market as volatile.
func (f *TagBasedFilter) IsMarketVolatile(_ *domain.OpportunityContext, _ *domain.PlannerConfiguration) bool {
	if f.securityRepo == nil {
		return false
	}
	spiking, err := f.securityRepo.GetByTags([]string{"volatility-spike"})
	return err == nil && len(spiking) > 5
}

// buyTags assembles the buy-side tag set: high quality always, then either
// the detected regime's set or the balanced neutral mix.
func (f *TagBasedFilter) buyTags(ctx *domain.OpportunityContext, config *domain.PlannerConfiguration) []string {
	tags := []string{"high-quality"}

	if regimeSet, ok := regimeBuyTags[f.detectRegime()]; ok {
		return append(tags, regimeSet...)
	}

	// Neutral regime: value plays when there is cash to deploy, technical
	// plays when the market is choppy, income plays always.
	if ctx.AvailableCashEUR > 1000 {
		tags = append(tags, neutralValueTags...)
	}
	if f.IsMarketVolatile(ctx, config) {
		tags = append(tags, neutralVolatileTags...)
	}
	return append(tags, neutralIncomeTags...)
}

// detectRegime infers the market regime from how many securities carry each
// regime tag. More than ten volatile-tagged securities dominate; otherwise
// the largest bucket wins, and a tie is neutral.
func (f *TagBasedFilter) detectRegime() string {
	if f.securityRepo == nil {
		return "neutral"
	}

	count := func(tag string) int {
		matched, err := f.securityRepo.GetByTags([]string{tag})
		if err != nil {
			return 0
		}
		return len(matched)
	}

	bear := count("regime-bear-safe")
	bull := count("regime-bull-growth")
	sideways := count("regime-sideways-value")

	switch {
	case count("regime-volatile") > 10:
		return "volatile"
	case bull > bear && bull > sideways:
		return "bull"
	case bear > bull && bear > sideways:
		return "bear"
	case sideways > bull && sideways > bear:
		return "sideways"
	default:
		return "neutral"
	}
}

// symbolsOf extracts the non-empty symbols from a security list.
func symbolsOf(securities []universe.Security) []string {
	symbols := make([]string, 0, len(securities))
	for _, sec := range securities {
		if sec.Symbol != "" {
			symbols = append(symbols, sec.Symbol)
		}
	}
	return symbols
}
