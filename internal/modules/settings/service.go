// Package settings holds runtime-tunable configuration: plain key-value
// settings plus the temperament layer that derives trading parameters from
// the user's three temperament sliders. Values live in memory, seeded from
// the environment configuration at startup.
package settings

import (
	"sync"

	"github.com/rs/zerolog"
)

// Service is a concurrency-safe in-memory settings store.
type Service struct {
	mu     sync.RWMutex
	values map[string]interface{}
	log    zerolog.Logger
}

// NewService creates a settings service seeded with SettingDefaults,
// overlaid with the given initial values.
func NewService(initial map[string]interface{}, log zerolog.Logger) *Service {
	values := make(map[string]interface{}, len(SettingDefaults)+len(initial))
	for k, v := range SettingDefaults {
		values[k] = v
	}
	for k, v := range initial {
		values[k] = v
	}
	return &Service{
		values: values,
		log:    log.With().Str("service", "settings").Logger(),
	}
}

// Get returns the value for key, or nil when unset. The error return exists
// for interface compatibility with storage-backed implementations.
func (s *Service) Get(key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// GetFloat returns the float value for key, or defaultValue when unset or
// not a number.
func (s *Service) GetFloat(key string, defaultValue float64) float64 {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return defaultValue
}

// GetBool returns the bool value for key, or defaultValue when unset.
func (s *Service) GetBool(key string, defaultValue bool) bool {
	v, _ := s.Get(key)
	if b, ok := v.(bool); ok {
		return b
	}
	return defaultValue
}

// Set stores a value. Returns true when the value changed.
func (s *Service) Set(key string, value interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.values[key]; ok && existing == value {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

// GetAll returns a snapshot of every setting.
func (s *Service) GetAll() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}
