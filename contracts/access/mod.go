// Package access implements the native contract administrating the access
// control policy: the transfer of the ownership, the delegation to admins and
// the pause of the ledger.
package access

import (
	"context"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the access contract.
	ContractName = "go.dedis.ch/custody.Access"

	// PrincipalArg is the argument's name in the transaction that contains the
	// principal targeted by the command.
	PrincipalArg = "access:principal"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "access:command"
)

// Command defines a command for the access contract.
type Command string

const (
	// CmdTransferOwnership replaces the owner by the principal.
	CmdTransferOwnership Command = "TRANSFER_OWNERSHIP"

	// CmdGrantAdmin delegates the administration to the principal.
	CmdGrantAdmin Command = "GRANT_ADMIN"

	// CmdRevokeAdmin revokes the delegation of the principal.
	CmdRevokeAdmin Command = "REVOKE_ADMIN"

	// CmdPause pauses the ledger.
	CmdPause Command = "PAUSE"

	// CmdUnpause unpauses the ledger.
	CmdUnpause Command = "UNPAUSE"
)

// Manager is the policy with the setters of its record.
type Manager interface {
	access.Service

	TransferOwnership(snap store.Snapshot, caller, owner access.Principal) error

	GrantAdmin(snap store.Snapshot, caller, admin access.Principal) error

	RevokeAdmin(snap store.Snapshot, caller, admin access.Principal) error

	SetPaused(snap store.Snapshot, caller access.Principal, paused bool) (bool, error)
}

// RegisterContract registers the access contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is the access contract that allows one to administrate the policy.
//
// - implements native.Contract
type Contract struct {
	gateway *gateway.Gateway
	policy  Manager
}

// NewContract creates a new access contract.
func NewContract(gw *gateway.Gateway, policy Manager) Contract {
	return Contract{
		gateway: gw,
		policy:  policy,
	}
}

// GetState returns the policy record.
func (c Contract) GetState() (access.State, error) {
	return c.policy.State(c.gateway.Store())
}

// Execute implements native.Contract
func (c Contract) Execute(ctx context.Context, t txn.Transaction) (execution.Result, error) {
	cmd := Command(t.GetArg(CmdArg))
	if len(cmd) == 0 {
		return execution.Result{}, xerrors.Errorf("'%s' not found in tx arg: %w", CmdArg,
			core.ErrInvalidInput)
	}

	if t.GetValue() > 0 {
		return execution.Result{}, xerrors.Errorf("command '%s' does not accept value: %w",
			cmd, core.ErrInvalidInput)
	}

	var receipt gateway.Receipt
	var err error

	switch cmd {
	case CmdTransferOwnership:
		receipt, err = c.withPrincipal(ctx, t, "transfer-ownership", c.policy.TransferOwnership)
	case CmdGrantAdmin:
		receipt, err = c.withPrincipal(ctx, t, "grant-admin", c.policy.GrantAdmin)
	case CmdRevokeAdmin:
		receipt, err = c.withPrincipal(ctx, t, "revoke-admin", c.policy.RevokeAdmin)
	case CmdPause:
		receipt, err = c.pause(ctx, t, true)
	case CmdUnpause:
		receipt, err = c.pause(ctx, t, false)
	default:
		return execution.Result{}, xerrors.Errorf("access, unknown command '%s': %w", cmd,
			core.ErrInvalidInput)
	}

	if err != nil {
		return execution.Result{}, xerrors.Errorf("failed to %s: %w", cmd, err)
	}

	return execution.Result(receipt), nil
}

type setter func(snap store.Snapshot, caller, target access.Principal) error

// withPrincipal runs a role change on the principal of the arguments. The event
// has the operation as its subject and the new role holder as principal.
func (c Contract) withPrincipal(ctx context.Context, t txn.Transaction, op string,
	fn setter) (gateway.Receipt, error) {

	// The owner is validated by the policy so that an empty principal is
	// reported the same way from every caller.
	target := access.Principal(t.GetArg(PrincipalArg))

	return c.gateway.Protect(ctx, op, t, func(tx *gateway.Tx) error {
		err := fn(tx, tx.Caller(), target)
		if err != nil {
			return err
		}

		tx.Emit(core.EventRoleChanged, op, target, 0)

		custody.Logger.Info().Str("operation", op).Str("caller", tx.Caller().String()).
			Str("principal", target.String()).Msg("role changed")

		return nil
	})
}

func (c Contract) pause(ctx context.Context, t txn.Transaction, paused bool) (gateway.Receipt, error) {
	op := "unpause"
	if paused {
		op = "pause"
	}

	return c.gateway.Protect(ctx, op, t, func(tx *gateway.Tx) error {
		changed, err := c.policy.SetPaused(tx, tx.Caller(), paused)
		if err != nil {
			return err
		}

		if !changed {
			return nil
		}

		var amount uint64
		if paused {
			amount = 1
		}

		tx.Emit(core.EventPaused, op, tx.Caller(), amount)

		custody.Logger.Warn().Bool("paused", paused).Str("by", tx.Caller().String()).
			Msg("ledger pause updated")

		return nil
	})
}
