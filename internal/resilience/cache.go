package resilience

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TTL constants for the two cache namespaces, mirroring
// internal/clientdata's per-data-type TTL table.
const (
	TTLRecommendation = 48 * time.Hour // scenario scores and plan recommendations
	TTLAnalytics      = 4 * time.Hour  // per-symbol analytics
)

// CacheCategory tags an entry in the recommendation_cache namespace.
type CacheCategory string

const (
	CategoryBuy       CacheCategory = "buy"
	CategorySell      CacheCategory = "sell"
	CategoryMultiStep CacheCategory = "multi_step"
	CategoryStrategic CacheCategory = "strategic"
)

// CacheEntry is a single stored value: the JSON payload, its absolute expiry,
// and the fingerprint it was written under (empty for analytics_cache
// entries, which are keyed by an arbitrary string instead).
type CacheEntry struct {
	Payload     json.RawMessage
	ExpiresAt   time.Time
	Fingerprint string
}

// recKey identifies an entry in the recommendation_cache namespace.
type recKey struct {
	fingerprint string
	category    CacheCategory
}

// RecommendationCache is an in-memory, TTL-bounded store for expensive
// recommendation and analytics results, keyed by PortfolioFingerprint. It
// never imports the scoring or planning packages whose output it caches —
// callers recompute a miss themselves and call Put, which keeps this
// package free of a cyclic dependency back into scoring.
type RecommendationCache struct {
	mu         sync.RWMutex
	recs       map[recKey]CacheEntry
	analytics  map[string]CacheEntry
	log        zerolog.Logger
	cron       *cron.Cron
	cronEntry  cron.EntryID
}

// NewRecommendationCache creates an empty cache. Call StartSweep to begin
// the periodic expired-entry cleanup.
func NewRecommendationCache(log zerolog.Logger) *RecommendationCache {
	return &RecommendationCache{
		recs:      make(map[recKey]CacheEntry),
		analytics: make(map[string]CacheEntry),
		log:       log.With().Str("component", "recommendation_cache").Logger(),
	}
}

// GetRecommendations returns the cached payload for (fingerprint, category)
// if present and unexpired. A CacheCorrupt payload (one that fails to
// unmarshal into dest) is treated as a miss, matching spec's "never fail a
// request on a cache error" policy.
func (c *RecommendationCache) GetRecommendations(fingerprint string, category CacheCategory, dest any) (hit bool) {
	c.mu.RLock()
	entry, ok := c.recs[recKey{fingerprint: fingerprint, category: category}]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.ExpiresAt) {
		return false
	}

	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		c.log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cached recommendation payload is corrupt, treating as miss")
		return false
	}

	return true
}

// PutRecommendations stores data under (fingerprint, category) with
// TTLRecommendation (unless ttl is explicitly overridden via PutRecommendationsTTL).
func (c *RecommendationCache) PutRecommendations(fingerprint string, category CacheCategory, data any) error {
	return c.PutRecommendationsTTL(fingerprint, category, data, TTLRecommendation)
}

// PutRecommendationsTTL is PutRecommendations with an explicit TTL.
func (c *RecommendationCache) PutRecommendationsTTL(fingerprint string, category CacheCategory, data any, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal recommendation cache entry: %w", err)
	}

	c.mu.Lock()
	c.recs[recKey{fingerprint: fingerprint, category: category}] = CacheEntry{
		Payload:     payload,
		ExpiresAt:   time.Now().Add(ttl),
		Fingerprint: fingerprint,
	}
	c.mu.Unlock()

	return nil
}

// GetAnalytics returns the cached payload for an arbitrary analytics key
// (e.g. "risk:AAPL" or "perf:weights:<fingerprint>") if present and unexpired.
func (c *RecommendationCache) GetAnalytics(key string, dest any) (hit bool) {
	c.mu.RLock()
	entry, ok := c.analytics[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.ExpiresAt) {
		return false
	}

	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cached analytics payload is corrupt, treating as miss")
		return false
	}

	return true
}

// PutAnalytics stores data under key with TTLAnalytics.
func (c *RecommendationCache) PutAnalytics(key string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal analytics cache entry: %w", err)
	}

	c.mu.Lock()
	c.analytics[key] = CacheEntry{Payload: payload, ExpiresAt: time.Now().Add(TTLAnalytics)}
	c.mu.Unlock()

	return nil
}

// Invalidate removes every entry mentioning fingerprint: all
// recommendation_cache entries keyed by it, and any analytics_cache entry
// whose key contains it (analytics keys embed the fingerprint as a
// substring, e.g. "perf:weights:<fingerprint>"). Called after a trade
// changes portfolio composition, since the fingerprint it was cached under
// is now stale.
func (c *RecommendationCache) Invalidate(fingerprint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.recs {
		if k.fingerprint == fingerprint {
			delete(c.recs, k)
			removed++
		}
	}
	for k := range c.analytics {
		if strings.Contains(k, fingerprint) {
			delete(c.analytics, k)
			removed++
		}
	}

	if removed > 0 {
		c.log.Info().Int("removed", removed).Str("fingerprint", fingerprint).Msg("invalidated cache entries")
	}
	return removed
}

// InvalidateAll removes every recommendation_cache entry (but leaves
// analytics_cache untouched), used when market conditions change enough
// that every outstanding recommendation should be recomputed.
func (c *RecommendationCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.recs)
	c.recs = make(map[recKey]CacheEntry)

	if removed > 0 {
		c.log.Info().Int("removed", removed).Msg("invalidated all recommendation cache entries")
	}
	return removed
}

// SweepExpired removes every entry (in both namespaces) whose expiry has
// passed. Returns the number removed.
func (c *RecommendationCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for k, entry := range c.recs {
		if now.After(entry.ExpiresAt) {
			delete(c.recs, k)
			removed++
		}
	}
	for k, entry := range c.analytics {
		if now.After(entry.ExpiresAt) {
			delete(c.analytics, k)
			removed++
		}
	}

	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed
}

// Stats reports entry counts for health/metrics reporting.
type CacheStats struct {
	RecommendationTotal int
	AnalyticsTotal      int
}

// Stats returns a snapshot of both namespaces' entry counts.
func (c *RecommendationCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{RecommendationTotal: len(c.recs), AnalyticsTotal: len(c.analytics)}
}

// StartSweep schedules SweepExpired on the given cron expression (e.g.
// "@every 10m") using a dedicated cron.Cron instance, so the cache owns its
// own maintenance loop rather than depending on an external scheduler.
func (c *RecommendationCache) StartSweep(schedule string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return fmt.Errorf("sweep already started")
	}

	c.cron = cron.New()
	id, err := c.cron.AddFunc(schedule, func() {
		c.SweepExpired()
	})
	if err != nil {
		c.cron = nil
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	c.cronEntry = id
	c.cron.Start()

	c.log.Info().Str("schedule", schedule).Msg("cache sweep started")
	return nil
}

// StopSweep stops the sweep cron if running.
func (c *RecommendationCache) StopSweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron == nil {
		return
	}
	ctx := c.cron.Stop()
	<-ctx.Done()
	c.cron = nil
	c.log.Info().Msg("cache sweep stopped")
}
