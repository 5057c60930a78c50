// Package sale implements the native contract of the token sale.
//
// The owner creates the tiers of the sale, each with its own rate of tokens
// per unit of value, purchase bounds and hard cap, then schedules the sale
// between a start and an end time. A purchase must be attached the value it
// pays, which is held in the escrow of the buyer until the sale ends. Once it
// has ended, the tokens of a buyer are released either by the buyer or by a
// paginated distribution, and the escrowed value is paid to the wallet of the
// sale. When the sale is cancelled instead, the same release pays the buyers
// back.
package sale

import (
	"context"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/arith"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/custody.Sale"

	// Prefix is the namespace of the contract in the store.
	Prefix = "sale"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "sale:command"

	// TierArg is the argument's name for the tier identifier.
	TierArg = "sale:tier"

	// RateArg is the argument's name for the number of tokens per unit of
	// value of a new tier.
	RateArg = "sale:rate"

	// MinArg is the argument's name for the minimum purchase of a new tier.
	MinArg = "sale:min"

	// MaxArg is the argument's name for the maximum a buyer spends in a new
	// tier.
	MaxArg = "sale:max"

	// CapArg is the argument's name for the hard cap of a new tier.
	CapArg = "sale:cap"

	// StartArg is the argument's name for the opening time of the sale.
	StartArg = "sale:start"

	// EndArg is the argument's name for the closing time of the sale.
	EndArg = "sale:end"

	// WalletArg is the argument's name for the principal receiving the
	// proceeds.
	WalletArg = "sale:wallet"

	// AmountArg is the argument's name for the value of a purchase.
	AmountArg = "sale:amount"

	// OffsetArg is the argument's name for the first buyer of a distribution.
	OffsetArg = "sale:offset"

	// LimitArg is the argument's name for the number of buyers of a
	// distribution.
	LimitArg = "sale:limit"
)

// Command defines a type of command for the sale contract.
type Command string

const (
	// CmdCreateTier adds a tier to a sale that is not started.
	CmdCreateTier Command = "CREATE_TIER"

	// CmdStart schedules the sale.
	CmdStart Command = "START"

	// CmdUpdateTimes moves the times of a scheduled sale.
	CmdUpdateTimes Command = "UPDATE_TIMES"

	// CmdUpdateWallet changes the principal receiving the proceeds.
	CmdUpdateWallet Command = "UPDATE_WALLET"

	// CmdCancel cancels the sale, the buyers are paid back.
	CmdCancel Command = "CANCEL"

	// CmdBuy buys tokens of a tier, the value of the purchase must be
	// attached.
	CmdBuy Command = "BUY"

	// CmdClaim releases the purchases of the caller.
	CmdClaim Command = "CLAIM"

	// CmdDistribute releases the purchases of a page of buyers.
	CmdDistribute Command = "DISTRIBUTE"
)

// State is the state of the sale.
type State string

const (
	// Pending is the state of a sale whose tiers are being created.
	Pending State = "pending"

	// Started is the state of a scheduled sale. It accepts purchases between
	// its start and end times.
	Started State = "started"

	// Cancelled is the terminal state of a cancelled sale.
	Cancelled State = "cancelled"
)

// Sale is the record of the token sale.
type Sale struct {
	State  State            `json:"state"`
	Wallet access.Principal `json:"wallet,omitempty"`
	Start  uint64           `json:"start"`
	End    uint64           `json:"end"`

	// Raised is the value of the purchases and Released the part of it that
	// left the escrow.
	Raised   uint64 `json:"raised"`
	Released uint64 `json:"released"`

	Tokens    uint64 `json:"tokens"`
	Tiers     uint64 `json:"tiers"`
	Purchases uint64 `json:"purchases"`
	Buyers    uint64 `json:"buyers"`
}

// Tier is a price level of the sale.
type Tier struct {
	ID uint64 `json:"id"`

	// Rate is the number of tokens per unit of value.
	Rate uint64 `json:"rate"`

	// MinPurchase is the minimum value of a single purchase and MaxPurchase
	// the maximum value a buyer spends in the tier.
	MinPurchase uint64 `json:"minPurchase"`
	MaxPurchase uint64 `json:"maxPurchase"`

	// Cap is the maximum value sold by the tier.
	Cap uint64 `json:"cap"`

	Sold   uint64 `json:"sold"`
	Tokens uint64 `json:"tokens"`
}

// Purchase is an accepted purchase of the sale.
type Purchase struct {
	ID     uint64           `json:"id"`
	Buyer  access.Principal `json:"buyer"`
	Tier   uint64           `json:"tier"`
	Amount uint64           `json:"amount"`
	Tokens uint64           `json:"tokens"`
	Time   uint64           `json:"time"`
}

// Holding is the sum of the purchases of a buyer.
type Holding struct {
	Buyer   access.Principal `json:"buyer"`
	Paid    uint64           `json:"paid"`
	Tokens  uint64           `json:"tokens"`
	Claimed bool             `json:"claimed"`
}

// TokenAmount returns the number of tokens bought with the amount at the
// rate.
func TokenAmount(amount, rate uint64) (uint64, error) {
	tokens, err := arith.Mul(amount, rate)
	if err != nil {
		return 0, xerrors.Errorf("token amount: %w", err)
	}

	return tokens, nil
}

// Contract is the native contract of the token sale.
//
// - implements native.Contract
type Contract struct {
	gateway *gateway.Gateway
	ledger  ledger.Ledger
	policy  access.Service
}

// NewContract returns a new sale contract.
func NewContract(gw *gateway.Gateway, l ledger.Ledger, policy access.Service) Contract {
	return Contract{
		gateway: gw,
		ledger:  l,
		policy:  policy,
	}
}

// RegisterContract registers the sale contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(ctx context.Context, t txn.Transaction) (execution.Result, error) {
	cmd := Command(t.GetArg(CmdArg))

	if cmd != CmdBuy && t.GetValue() > 0 {
		return execution.Result{}, xerrors.Errorf("command '%s' does not accept value: %w",
			cmd, core.ErrInvalidInput)
	}

	var receipt gateway.Receipt
	var err error

	switch cmd {
	case CmdCreateTier:
		receipt, err = c.createTier(ctx, t)
	case CmdStart:
		receipt, err = c.start(ctx, t)
	case CmdUpdateTimes:
		receipt, err = c.updateTimes(ctx, t)
	case CmdUpdateWallet:
		receipt, err = c.updateWallet(ctx, t)
	case CmdCancel:
		receipt, err = c.cancel(ctx, t)
	case CmdBuy:
		receipt, err = c.buy(ctx, t)
	case CmdClaim:
		receipt, err = c.claim(ctx, t)
	case CmdDistribute:
		receipt, err = c.distribute(ctx, t)
	default:
		return execution.Result{}, xerrors.Errorf("unknown command '%s': %w", cmd,
			core.ErrInvalidInput)
	}

	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	return execution.Result(receipt), nil
}
