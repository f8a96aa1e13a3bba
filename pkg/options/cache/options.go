// Package cache provides answer cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/docuchat/docuchat/pkg/options"
	redisopts "github.com/docuchat/docuchat/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options configures the Redis-backed answer cache.
type Options struct {
	// Enabled toggles the cache.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL is the cache entry lifetime.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis is the cache backend connection.
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions creates cache options with defaults. The cache is off
// unless explicitly enabled.
func NewOptions() *Options {
	return &Options{
		Enabled:   false,
		TTL:       time.Hour,
		KeyPrefix: "chat:answer:",
		Redis:     redisopts.NewOptions(),
	}
}

// AddFlags adds cache flags to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	prefix := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, prefix+"enabled", o.Enabled, "Enable the answer cache")
	fs.DurationVar(&o.TTL, prefix+"ttl", o.TTL, "Answer cache TTL")
	fs.StringVar(&o.KeyPrefix, prefix+"key-prefix", o.KeyPrefix, "Answer cache key prefix")
	o.Redis.AddFlags(fs)
}

// Validate checks the cache options.
func (o *Options) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error
	if o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	if o.KeyPrefix == "" {
		errs = append(errs, fmt.Errorf("cache.key-prefix must not be empty"))
	}
	if err := o.Redis.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errs
}
