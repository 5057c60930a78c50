// Package vault implements the native contract of the accounts: deposits,
// withdrawals and the freeze of an account.
//
// A transaction without a command, or with a command the contract does not
// know, is a deposit of its attached value. This way value sent to the vault
// without any instruction is always credited to the sender.
package vault

import (
	"context"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

// commands defines the commands of the vault contract. This interface helps in
// testing the contract.
type commands interface {
	deposit(ctx context.Context, t txn.Transaction) (gateway.Receipt, error)
	withdraw(ctx context.Context, t txn.Transaction) (gateway.Receipt, error)
	freeze(ctx context.Context, t txn.Transaction, frozen bool) (gateway.Receipt, error)
}

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/custody.Vault"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "vault:command"

	// AmountArg is the argument's name for the amount of a withdrawal.
	AmountArg = "vault:amount"

	// AccountArg is the argument's name for the account targeted by a freeze.
	AccountArg = "vault:account"
)

// Command defines a type of command for the vault contract.
type Command string

const (
	// CmdDeposit credits the attached value to the account of the caller.
	CmdDeposit Command = "DEPOSIT"

	// CmdWithdraw debits the account of the caller and transfers the amount.
	CmdWithdraw Command = "WITHDRAW"

	// CmdFreeze freezes an account.
	CmdFreeze Command = "FREEZE"

	// CmdUnfreeze unfreezes an account.
	CmdUnfreeze Command = "UNFREEZE"
)

// RegisterContract registers the vault contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is the native contract of the accounts.
//
// - implements native.Contract
type Contract struct {
	gateway *gateway.Gateway
	ledger  ledger.Ledger

	// cmd provides the commands executions
	cmd commands
}

// NewContract creates a new vault contract.
func NewContract(gw *gateway.Gateway, l ledger.Ledger) Contract {
	contract := Contract{
		gateway: gw,
		ledger:  l,
	}

	contract.cmd = vaultCommand{Contract: &contract}

	return contract
}

// GetAccount returns the account of the principal. It does not take the lock.
func (c Contract) GetAccount(id access.Principal) (ledger.Account, error) {
	return c.ledger.GetAccount(c.reader(), id)
}

// Custody returns the total value held by the ledger.
func (c Contract) Custody() (uint64, error) {
	return c.ledger.Custody(c.reader())
}

func (c Contract) reader() store.Readable {
	return c.gateway.Store()
}

// Execute implements native.Contract. It runs the appropriate command, or a
// deposit when the command is missing or unknown.
func (c Contract) Execute(ctx context.Context, t txn.Transaction) (execution.Result, error) {
	cmd := Command(t.GetArg(CmdArg))

	var receipt gateway.Receipt
	var err error

	switch cmd {
	case CmdWithdraw, CmdFreeze, CmdUnfreeze:
		if t.GetValue() > 0 {
			return execution.Result{}, xerrors.Errorf("command '%s' does not accept value: %w",
				cmd, core.ErrInvalidInput)
		}
	case CmdDeposit:
	default:
		custody.Logger.Debug().Str("command", string(cmd)).Msg("fallback to deposit")

		cmd = CmdDeposit
	}

	switch cmd {
	case CmdWithdraw:
		receipt, err = c.cmd.withdraw(ctx, t)
	case CmdFreeze:
		receipt, err = c.cmd.freeze(ctx, t, true)
	case CmdUnfreeze:
		receipt, err = c.cmd.freeze(ctx, t, false)
	default:
		receipt, err = c.cmd.deposit(ctx, t)
	}

	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	return execution.Result(receipt), nil
}
