// Package market implements the native contract of the listing marketplace.
//
// A seller lists an asset it owns at a price until an expiry height. Buyers
// either pay the exact price, or make offers whose amount is held in escrow
// until the seller accepts one or the offeror withdraws it. A cancelled or
// expired listing refunds its active offers independently: a refund that fails
// is recorded on the offer and retried later with RETRY_REFUNDS.
//
// The number of active offers per listing is capped, batches are capped and
// every enumeration is paginated, so that no call iterates over a collection
// that a caller can grow without limit.
package market

import (
	"context"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/custody.Market"

	// Prefix is the namespace of the contract in the store.
	Prefix = "market"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "market:command"

	// ListingArg is the argument's name for a listing identifier.
	ListingArg = "market:listing"

	// ListingsArg is the argument's name for a comma-separated list of listing
	// identifiers.
	ListingsArg = "market:listings"

	// OfferArg is the argument's name for an offer identifier.
	OfferArg = "market:offer"

	// AssetArg is the argument's name for the reference of an asset.
	AssetArg = "market:asset"

	// PriceArg is the argument's name for the price of a listing.
	PriceArg = "market:price"

	// AmountArg is the argument's name for the amount of an offer.
	AmountArg = "market:amount"

	// ExpiryArg is the argument's name for an expiry height.
	ExpiryArg = "market:expiry"

	// FeeArg is the argument's name for the fee rate in basis points.
	FeeArg = "market:fee"

	// OffsetArg and LimitArg are the arguments' names of a page.
	OffsetArg = "market:offset"
	LimitArg  = "market:limit"
)

// Command defines a type of command for the market contract.
type Command string

const (
	// CmdCreateListing lists an asset owned by the caller.
	CmdCreateListing Command = "CREATE_LISTING"

	// CmdMakeOffer makes an offer on a listing, the amount must be attached.
	CmdMakeOffer Command = "MAKE_OFFER"

	// CmdWithdrawOffer withdraws an active offer and refunds it.
	CmdWithdrawOffer Command = "WITHDRAW_OFFER"

	// CmdAcceptOffer sells the listing to an offer.
	CmdAcceptOffer Command = "ACCEPT_OFFER"

	// CmdCancelListing cancels a listing and refunds its active offers.
	CmdCancelListing Command = "CANCEL_LISTING"

	// CmdBuyNow buys the listing at its price, which must be attached.
	CmdBuyNow Command = "BUY_NOW"

	// CmdExpireListing closes a listing past its expiry and refunds its
	// active offers.
	CmdExpireListing Command = "EXPIRE_LISTING"

	// CmdRetryRefunds refunds a page of the pending offers of a closed
	// listing.
	CmdRetryRefunds Command = "RETRY_REFUNDS"

	// CmdBatchCancel cancels several listings.
	CmdBatchCancel Command = "BATCH_CANCEL"

	// CmdUpdateFee updates the fee rate of the marketplace.
	CmdUpdateFee Command = "UPDATE_FEE"
)

// MaxFee is the maximum fee rate in basis points.
const MaxFee = 1000

const (
	// DefaultMaxOffers is the default maximum number of active offers per
	// listing.
	DefaultMaxOffers = 16

	// DefaultMaxBatch is the default maximum number of listings in a batch.
	DefaultMaxBatch = 10
)

// ListingState is the state of a listing.
type ListingState string

const (
	// Active is the state of a listing open to offers.
	Active ListingState = "active"
	// Sold is the terminal state of a listing sold to a buyer.
	Sold ListingState = "sold"
	// Cancelled is the terminal state of a listing cancelled by its seller or
	// an admin.
	Cancelled ListingState = "cancelled"
	// Expired is the terminal state of a listing closed after its expiry.
	Expired ListingState = "expired"
)

// Listing is the record of a listing.
type Listing struct {
	ID     uint64           `json:"id"`
	Seller access.Principal `json:"seller"`
	Asset  string           `json:"asset"`
	Price  uint64           `json:"price"`
	Expiry uint64           `json:"expiry"`
	State  ListingState     `json:"state"`
	Buyer  access.Principal `json:"buyer,omitempty"`

	// Active are the identifiers of the active offers, at most the configured
	// maximum.
	Active []uint64 `json:"active"`

	// Offers is the number of offers ever made on the listing.
	Offers uint64 `json:"offers"`
}

// Closed returns true if the listing is in a terminal state.
func (l Listing) Closed() bool {
	return l.State != Active
}

// OfferState is the state of an offer.
type OfferState string

const (
	// OfferActive is the state of an offer holding its amount in escrow.
	OfferActive OfferState = "active"
	// Accepted is the terminal state of the offer the listing was sold to.
	Accepted OfferState = "accepted"
	// Withdrawn is the terminal state of a refunded offer.
	Withdrawn OfferState = "withdrawn"
)

// Offer is the record of an offer.
type Offer struct {
	ID      uint64           `json:"id"`
	Listing uint64           `json:"listing"`
	Offeror access.Principal `json:"offeror"`
	Amount  uint64           `json:"amount"`
	Expiry  uint64           `json:"expiry"`
	State   OfferState       `json:"state"`

	// RefundPending is set on a withdrawn offer until its refund is
	// transferred.
	RefundPending bool `json:"refundPending"`
}

// AssetRegistry is the external registry of the assets that can be listed.
type AssetRegistry interface {
	// OwnerOf returns the owner of the asset.
	OwnerOf(ctx context.Context, asset string) (access.Principal, error)

	// Transfer transfers the asset from its owner to the buyer.
	Transfer(ctx context.Context, asset string, from, to access.Principal) error
}

// Config is the configuration of the contract.
type Config struct {
	// FeeRate is the fee rate in basis points until the owner updates it.
	FeeRate uint64

	// MaxOffers is the maximum number of active offers per listing.
	MaxOffers int

	// MaxBatch is the maximum number of listings in a batch.
	MaxBatch int
}

// Contract is the native contract of the marketplace.
//
// - implements native.Contract
type Contract struct {
	gateway  *gateway.Gateway
	ledger   ledger.Ledger
	policy   access.Service
	registry AssetRegistry
	config   Config
}

// NewContract returns a new market contract. It returns an error if the fee
// rate of the configuration is above the maximum.
func NewContract(gw *gateway.Gateway, l ledger.Ledger, policy access.Service,
	registry AssetRegistry, config Config) (Contract, error) {

	if config.FeeRate > MaxFee {
		return Contract{}, xerrors.Errorf("fee rate %d above %d: %w", config.FeeRate,
			MaxFee, core.ErrInvalidInput)
	}

	if config.MaxOffers <= 0 {
		config.MaxOffers = DefaultMaxOffers
	}

	if config.MaxBatch <= 0 {
		config.MaxBatch = DefaultMaxBatch
	}

	c := Contract{
		gateway:  gw,
		ledger:   l,
		policy:   policy,
		registry: registry,
		config:   config,
	}

	return c, nil
}

// RegisterContract registers the market contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(ctx context.Context, t txn.Transaction) (execution.Result, error) {
	cmd := Command(t.GetArg(CmdArg))

	if cmd != CmdMakeOffer && cmd != CmdBuyNow && t.GetValue() > 0 {
		return execution.Result{}, xerrors.Errorf("command '%s' does not accept value: %w",
			cmd, core.ErrInvalidInput)
	}

	var receipt gateway.Receipt
	var err error

	switch cmd {
	case CmdCreateListing:
		receipt, err = c.createListing(ctx, t)
	case CmdMakeOffer:
		receipt, err = c.makeOffer(ctx, t)
	case CmdWithdrawOffer:
		receipt, err = c.withdrawOffer(ctx, t)
	case CmdAcceptOffer:
		receipt, err = c.acceptOffer(ctx, t)
	case CmdCancelListing:
		receipt, err = c.cancelListing(ctx, t)
	case CmdBuyNow:
		receipt, err = c.buyNow(ctx, t)
	case CmdExpireListing:
		receipt, err = c.expireListing(ctx, t)
	case CmdRetryRefunds:
		receipt, err = c.retryRefunds(ctx, t)
	case CmdBatchCancel:
		receipt, err = c.batchCancel(ctx, t)
	case CmdUpdateFee:
		receipt, err = c.updateFee(ctx, t)
	default:
		return execution.Result{}, xerrors.Errorf("unknown command '%s': %w", cmd,
			core.ErrInvalidInput)
	}

	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	return execution.Result(receipt), nil
}
