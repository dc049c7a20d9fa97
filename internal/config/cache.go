package config

import "time"

// CacheConfig controls the short-lived Redis cache in front of the public
// inventory summary.  The summary is advisory; reservations always re-check
// capacity under a row lock, so a TTL of a few seconds is safe.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	cc := CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		TTL:          envDur("CACHE_TTL", 2*time.Second),
		Prefix:       envStr("CACHE_PREFIX", "inv"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
	if cc.TTL <= 0 {
		cc.Enabled = false
	}
	return cc
}
