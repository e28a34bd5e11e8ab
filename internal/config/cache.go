package config

import (
	"os"
	"time"
)

// SeatMapCacheConfig controls the Redis cache in front of the seat map.
// Entries are keyed by route and query and invalidated by generation; TTL
// only bounds how long a lapsed hold can still be shown as held.
type SeatMapCacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

const (
	minSeatMapTTL = 100 * time.Millisecond
	maxBodyCap    = 4 << 20
)

// LoadSeatMapCacheConfig reads SEATMAP_CACHE_* variables.  The TTL is kept
// to at most a tenth of holdTTL so an expired hold shows up as free within a
// small fraction of its lifetime.
func LoadSeatMapCacheConfig(holdTTL time.Duration) SeatMapCacheConfig {
	cfg := SeatMapCacheConfig{
		Enabled:      envBool("SEATMAP_CACHE_ENABLED", true),
		TTL:          envDur("SEATMAP_CACHE_TTL", 2*time.Second),
		Prefix:       envStr("SEATMAP_CACHE_PREFIX", "seatcache"),
		MaxBodyBytes: envInt("SEATMAP_CACHE_MAX_BODY_BYTES", 256<<10),
	}
	if ceiling := holdTTL / 10; ceiling > 0 && cfg.TTL > ceiling {
		cfg.TTL = ceiling
	}
	if cfg.TTL < minSeatMapTTL {
		cfg.TTL = minSeatMapTTL
	}
	if cfg.MaxBodyBytes <= 0 || cfg.MaxBodyBytes > maxBodyCap {
		cfg.MaxBodyBytes = maxBodyCap
	}
	return cfg
}

// GenerationKey is the counter bumped on every seat mutation.
func (c SeatMapCacheConfig) GenerationKey() string { return c.Prefix + ":gen" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
