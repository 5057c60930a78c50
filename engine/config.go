package engine

import (
	"os"

	"go.dedis.ch/custody/contracts/auction"
	"go.dedis.ch/custody/contracts/market"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/ledger"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Config is the construction configuration of the engine.
type Config struct {
	// Owner is the principal owning the ledger when the store is new. An
	// existing policy keeps its owner.
	Owner string `yaml:"owner"`

	// DepositCap is the maximum amount of a single deposit, zero for none.
	DepositCap uint64 `yaml:"depositCap"`

	// DailyWithdrawalLimit is the maximum amount an account withdraws per day
	// bucket, zero for none.
	DailyWithdrawalLimit uint64 `yaml:"dailyWithdrawalLimit"`

	// SecondsPerDay is the length of a day bucket in logical seconds.
	SecondsPerDay uint64 `yaml:"secondsPerDay"`

	// FeeRate is the initial fee of the marketplace in basis points.
	FeeRate uint64 `yaml:"feeRate"`

	// MinBidIncrement is the increment of the auctions created without one.
	MinBidIncrement uint64 `yaml:"minBidIncrement"`

	// MaxOffersPerListing is the maximum number of active offers per listing.
	MaxOffersPerListing int `yaml:"maxOffersPerListing"`

	// MaxBatch is the maximum number of listings cancelled in one batch.
	MaxBatch int `yaml:"maxBatch"`

	// Assets are the owners of the assets known to the registry, indexed by
	// asset reference.
	Assets map[string]string `yaml:"assets"`
}

// DefaultConfig returns the configuration used for the fields a file does not
// set.
func DefaultConfig() Config {
	return Config{
		SecondsPerDay:       ledger.DefaultSecondsPerDay,
		MinBidIncrement:     auction.DefaultMinIncrement,
		MaxOffersPerListing: market.DefaultMaxOffers,
		MaxBatch:            market.DefaultMaxBatch,
		Assets:              map[string]string{},
	}
}

// LoadConfig reads the YAML file at the path on top of the default
// configuration, and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to read config file: %v", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses the YAML document on top of the default configuration,
// and validates the result.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	err := yaml.UnmarshalStrict(data, &config)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to unmarshal config: %v", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate returns an error if a field of the configuration is out of its
// bounds.
func (c Config) Validate() error {
	if !access.Principal(c.Owner).Valid() {
		return xerrors.Errorf("invalid owner '%s': %w", c.Owner, core.ErrInvalidInput)
	}

	if c.SecondsPerDay == 0 {
		return xerrors.Errorf("seconds per day is zero: %w", core.ErrInvalidInput)
	}

	if c.FeeRate > market.MaxFee {
		return xerrors.Errorf("fee rate %d above %d: %w", c.FeeRate, market.MaxFee,
			core.ErrInvalidInput)
	}

	if c.MaxOffersPerListing <= 0 {
		return xerrors.Errorf("max offers per listing %d not positive: %w",
			c.MaxOffersPerListing, core.ErrInvalidInput)
	}

	if c.MaxBatch <= 0 {
		return xerrors.Errorf("max batch %d not positive: %w", c.MaxBatch, core.ErrInvalidInput)
	}

	for asset, owner := range c.Assets {
		if asset == "" || !access.Principal(owner).Valid() {
			return xerrors.Errorf("invalid asset '%s' of '%s': %w", asset, owner,
				core.ErrInvalidInput)
		}
	}

	return nil
}
