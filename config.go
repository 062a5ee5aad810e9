package dynbvh

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config holds the construction parameters of a BVH. They are fixed for the lifetime of the tree.
type Config struct {
	// MaxNodes bounds the total number of nodes (branches and leaves).
	MaxNodes int `mapstructure:"max_nodes"`
	// MaxBuckets bounds the number of leaves, since every leaf owns one bucket.
	MaxBuckets int `mapstructure:"max_buckets"`
	// MaxItemsPerBucket is the storage reserved per bucket. Must be at least MaxItemsPerLeaf.
	MaxItemsPerBucket int `mapstructure:"max_items_per_bucket"`
	// MaxItemsPerLeaf is the split threshold. Optimize requires 1.
	MaxItemsPerLeaf int `mapstructure:"max_items_per_leaf"`

	// Logger receives debug output about structural changes. Nil means no logging.
	Logger *zap.Logger `mapstructure:"-"`
}

// DefaultConfig is sized for 1024 items, one item per leaf.
func DefaultConfig() Config {
	return ConfigForItems(1024, 1)
}

// ConfigForItems returns a config with enough nodes and buckets to hold numItems items.
// Every leaf holds at least one item, so a tree of n items has at most n leaves and n-1 branches.
func ConfigForItems(numItems, maxItemsPerLeaf int) Config {
	if numItems < 1 {
		numItems = 1
	}
	if maxItemsPerLeaf < 1 {
		maxItemsPerLeaf = 1
	}
	return Config{
		MaxNodes:          2*numItems - 1,
		MaxBuckets:        numItems,
		MaxItemsPerBucket: maxItemsPerLeaf,
		MaxItemsPerLeaf:   maxItemsPerLeaf,
	}
}

// Validate reports every problem with the config. Each one wraps ErrInvalidConfiguration.
func (c Config) Validate() error {
	var err error
	if c.MaxNodes < 1 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "max_nodes must be at least 1, got %d", c.MaxNodes))
	}
	if c.MaxBuckets < 1 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "max_buckets must be at least 1, got %d", c.MaxBuckets))
	}
	if c.MaxItemsPerLeaf < 1 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration, "max_items_per_leaf must be at least 1, got %d", c.MaxItemsPerLeaf))
	}
	if c.MaxItemsPerBucket < c.MaxItemsPerLeaf {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidConfiguration,
			"max_items_per_bucket (%d) must be at least max_items_per_leaf (%d)", c.MaxItemsPerBucket, c.MaxItemsPerLeaf))
	}
	return err
}

// DecodeConfig builds a Config from a loosely typed attribute map, such as one parsed from JSON or YAML.
// Fields that are not present keep their DefaultConfig values. Unknown keys are an error.
func DecodeConfig(attrs map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return Config{}, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return cfg, cfg.Validate()
}
