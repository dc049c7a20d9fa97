package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy bounds what callers may ask of the reservation engine and how
// aggressively the sweeper reclaims inventory.
//
// A policy file looks like:
//
//	max_quantity: 10
//	default_ttl: 10m
//	max_ttl: 30m
//	max_extension: 10m
//	max_hold_lifetime: 45m
//	order_expiry_age: 24h
//	sweep_batch_size: 200
type Policy struct {
	MaxQuantity     int           `yaml:"max_quantity"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	MaxTTL          time.Duration `yaml:"max_ttl"`
	MaxExtension    time.Duration `yaml:"max_extension"`
	MaxHoldLifetime time.Duration `yaml:"max_hold_lifetime"`
	OrderExpiryAge  time.Duration `yaml:"order_expiry_age"`
	SweepBatchSize  int           `yaml:"sweep_batch_size"`
}

// DefaultPolicy returns the built-in limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxQuantity:     10,
		DefaultTTL:      10 * time.Minute,
		MaxTTL:          30 * time.Minute,
		MaxExtension:    10 * time.Minute,
		MaxHoldLifetime: 45 * time.Minute,
		OrderExpiryAge:  24 * time.Hour,
		SweepBatchSize:  200,
	}
}

// LoadPolicy starts from DefaultPolicy, overlays the YAML file at path
// (when path is non-empty) and finally the POLICY_* environment
// variables.  The result is validated before it is returned.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Policy{}, fmt.Errorf("parse policy file: %w", err)
		}
	}
	p.MaxQuantity = envInt("POLICY_MAX_QUANTITY", p.MaxQuantity)
	p.DefaultTTL = envDur("POLICY_DEFAULT_TTL", p.DefaultTTL)
	p.MaxTTL = envDur("POLICY_MAX_TTL", p.MaxTTL)
	p.MaxExtension = envDur("POLICY_MAX_EXTENSION", p.MaxExtension)
	p.MaxHoldLifetime = envDur("POLICY_MAX_HOLD_LIFETIME", p.MaxHoldLifetime)
	p.OrderExpiryAge = envDur("POLICY_ORDER_EXPIRY_AGE", p.OrderExpiryAge)
	p.SweepBatchSize = envInt("POLICY_SWEEP_BATCH_SIZE", p.SweepBatchSize)
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate rejects limits the engine cannot honour.
func (p Policy) Validate() error {
	switch {
	case p.MaxQuantity < 1:
		return fmt.Errorf("policy: max_quantity must be positive, got %d", p.MaxQuantity)
	case p.MaxTTL < time.Minute:
		return fmt.Errorf("policy: max_ttl must be at least 1m, got %s", p.MaxTTL)
	case p.DefaultTTL < time.Minute || p.DefaultTTL > p.MaxTTL:
		return fmt.Errorf("policy: default_ttl %s must be within [1m, %s]", p.DefaultTTL, p.MaxTTL)
	case p.MaxExtension < 0:
		return fmt.Errorf("policy: max_extension must not be negative")
	case p.MaxHoldLifetime < p.MaxTTL:
		return fmt.Errorf("policy: max_hold_lifetime %s is shorter than max_ttl %s", p.MaxHoldLifetime, p.MaxTTL)
	case p.OrderExpiryAge <= 0:
		return fmt.Errorf("policy: order_expiry_age must be positive")
	case p.SweepBatchSize < 1:
		return fmt.Errorf("policy: sweep_batch_size must be positive")
	}
	return nil
}
