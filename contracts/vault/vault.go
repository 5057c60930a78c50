package vault

import (
	"context"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/txn"
)

// vaultCommand implements the commands of the vault contract
//
// - implements commands
type vaultCommand struct {
	*Contract
}

// deposit implements commands. It credits the attached value to the caller.
func (c vaultCommand) deposit(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	return c.gateway.Protect(ctx, "deposit", t, func(tx *gateway.Tx) error {
		amount := t.GetValue()

		acc, err := c.ledger.Deposit(tx, tx.Caller(), amount)
		if err != nil {
			return err
		}

		tx.Emit(core.EventDeposit, acc.ID.String(), tx.Caller(), amount)

		return nil
	})
}

// withdraw implements commands. It debits the account of the caller and queues
// the transfer of the amount, which is undone if the transfer fails.
func (c vaultCommand) withdraw(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	amount, err := txn.GetUint(t, AmountArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "withdraw", t, func(tx *gateway.Tx) error {
		acc, err := c.ledger.Withdraw(tx, tx.Caller(), amount, tx.Time())
		if err != nil {
			return err
		}

		tx.Emit(core.EventWithdrawal, acc.ID.String(), tx.Caller(), amount)
		tx.Pay(tx.Caller(), amount)

		custody.Logger.Info().Str("account", acc.ID.String()).Uint64("amount", amount).
			Uint64("balance", acc.Balance).Msg("withdrawal")

		return nil
	})
}

// freeze implements commands. It sets the frozen flag of the account given in
// argument, and emits an event only if the flag changed.
func (c vaultCommand) freeze(ctx context.Context, t txn.Transaction, frozen bool) (gateway.Receipt, error) {
	id, err := txn.GetPrincipal(t, AccountArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	op := "unfreeze"
	if frozen {
		op = "freeze"
	}

	return c.gateway.Protect(ctx, op, t, func(tx *gateway.Tx) error {
		changed, err := c.ledger.Freeze(tx, tx.Caller(), id, frozen)
		if err != nil {
			return err
		}

		if changed {
			tx.Emit(core.EventFrozen, id.String(), tx.Caller(), flag(frozen))
		}

		return nil
	})
}

// flag is the amount of the events of a boolean change.
func flag(value bool) uint64 {
	if value {
		return 1
	}

	return 0
}
