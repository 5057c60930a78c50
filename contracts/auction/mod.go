// Package auction implements the native contract of the ascending auctions.
//
// An auction is open until its deadline height. A bid must be attached the
// value it offers and must raise the highest bid by at least the minimum
// increment. The value of the highest bid is held in the escrow of the bidder:
// when it is outbid, the state is updated first and the previous bidder is
// refunded afterwards through the gateway. A refund that cannot be transferred
// is credited to the balance of the previous bidder, who withdraws it later
// from the vault.
package auction

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
	ContractName = "go.dedis.ch/custody.Auction"

	// Prefix is the namespace of the contract in the store.
	Prefix = "auction"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "auction:command"

	// AuctionArg is the argument's name for the auction identifier.
	AuctionArg = "auction:id"

	// AmountArg is the argument's name for the amount of a bid.
	AmountArg = "auction:amount"

	// DeadlineArg is the argument's name for the deadline height of a new
	// auction.
	DeadlineArg = "auction:deadline"

	// IncrementArg is the argument's name for the minimum increment of a new
	// auction.
	IncrementArg = "auction:increment"
)

// Command defines a type of command for the auction contract.
type Command string

const (
	// CmdCreate opens a new auction.
	CmdCreate Command = "CREATE"

	// CmdBid places a bid, the value of the bid must be attached.
	CmdBid Command = "BID"

	// CmdEnd ends an auction and pays the seller.
	CmdEnd Command = "END"
)

// State is the state of an auction.
type State string

const (
	// Open is the state of an auction accepting bids.
	Open State = "open"

	// Ended is the terminal state of an auction.
	Ended State = "ended"
)

// Auction is the record of an auction.
type Auction struct {
	ID            uint64           `json:"id"`
	Seller        access.Principal `json:"seller"`
	Deadline      uint64           `json:"deadline"`
	MinIncrement  uint64           `json:"minIncrement"`
	HighestBid    uint64           `json:"highestBid"`
	HighestBidder access.Principal `json:"highestBidder,omitempty"`
	State         State            `json:"state"`
	Bids          uint64           `json:"bids"`
	Participants  uint64           `json:"participants"`
}

// Bid is an accepted bid of an auction.
type Bid struct {
	Bidder access.Principal `json:"bidder"`
	Amount uint64           `json:"amount"`
	Height uint64           `json:"height"`
}

// DefaultMinIncrement is the minimum increment of an auction when neither the
// call nor the configuration sets it.
const DefaultMinIncrement = 1

// Config is the configuration of the contract.
type Config struct {
	// MinIncrement is the minimum increment of the auctions created without
	// one.
	MinIncrement uint64
}

// Contract is the native contract of the auctions.
//
// - implements native.Contract
type Contract struct {
	gateway *gateway.Gateway
	ledger  ledger.Ledger
	policy  access.Service
	config  Config
}

// NewContract returns a new auction contract.
func NewContract(gw *gateway.Gateway, l ledger.Ledger, policy access.Service, config Config) Contract {
	if config.MinIncrement == 0 {
		config.MinIncrement = DefaultMinIncrement
	}

	return Contract{
		gateway: gw,
		ledger:  l,
		policy:  policy,
		config:  config,
	}
}

// RegisterContract registers the auction contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(ctx context.Context, t txn.Transaction) (execution.Result, error) {
	cmd := Command(t.GetArg(CmdArg))

	if cmd != CmdBid && t.GetValue() > 0 {
		return execution.Result{}, xerrors.Errorf("command '%s' does not accept value: %w",
			cmd, core.ErrInvalidInput)
	}

	var receipt gateway.Receipt
	var err error

	switch cmd {
	case CmdCreate:
		receipt, err = c.create(ctx, t)
	case CmdBid:
		receipt, err = c.bid(ctx, t)
	case CmdEnd:
		receipt, err = c.end(ctx, t)
	default:
		return execution.Result{}, xerrors.Errorf("unknown command '%s': %w", cmd,
			core.ErrInvalidInput)
	}

	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	return execution.Result(receipt), nil
}
