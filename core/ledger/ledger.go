package ledger

import (
	"encoding/json"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/arith"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"golang.org/x/xerrors"
)

var custodyKey = []byte("custody")

const accountKeyPrefix = "account/"

// Ledger is the account ledger. Every mutating function works on the staged
// snapshot of a protected operation, so an error leaves the store untouched.
type Ledger struct {
	config Config
	policy access.Service
}

// NewLedger returns a ledger enforcing the limits of the configuration.
func NewLedger(config Config, policy access.Service) Ledger {
	if config.SecondsPerDay == 0 {
		config.SecondsPerDay = DefaultSecondsPerDay
	}

	return Ledger{
		config: config,
		policy: policy,
	}
}

// GetAccount returns the account of the principal, or a not found error if it
// never received any value.
func (l Ledger) GetAccount(snap store.Readable, id access.Principal) (Account, error) {
	acc, found, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	if !found {
		return acc, xerrors.Errorf("account '%s': %w", id, core.ErrNotFound)
	}

	return acc, nil
}

// Custody returns the total value held by the ledger.
func (l Ledger) Custody(snap store.Readable) (uint64, error) {
	data, err := prefixed.NewReadable(Prefix, snap).Get(custodyKey)
	if err != nil {
		return 0, xerrors.Errorf("failed to read custody: %v", err)
	}

	if data == nil {
		return 0, nil
	}

	var total uint64

	err = json.Unmarshal(data, &total)
	if err != nil {
		return 0, xerrors.Errorf("failed to decode custody: %v", err)
	}

	return total, nil
}

// Deposit credits the account with value entering the custody. The account is
// created if necessary.
func (l Ledger) Deposit(snap store.Snapshot, id access.Principal, amount uint64) (Account, error) {
	if amount == 0 {
		return Account{}, xerrors.Errorf("deposit of zero: %w", core.ErrInvalidInput)
	}

	if l.config.DepositCap > 0 && amount > l.config.DepositCap {
		return Account{}, xerrors.Errorf("deposit of %d above cap %d: %w",
			amount, l.config.DepositCap, core.ErrInvalidInput)
	}

	err := l.policy.RequireActive(snap)
	if err != nil {
		return Account{}, err
	}

	acc, err := l.loadActive(snap, id)
	if err != nil {
		return acc, err
	}

	acc.Balance, err = arith.Add(acc.Balance, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to credit balance: %w", err)
	}

	err = l.updateCustody(snap, amount, true)
	if err != nil {
		return acc, err
	}

	return acc, l.save(snap, acc)
}

// Withdraw debits the account of the value about to leave the custody. It
// applies every guard of the withdrawals: the ledger must not be paused, the
// account must not be frozen, the balance must cover the amount and the sum of
// the withdrawals of the current day bucket must stay within the limit. The
// time is the logical time of the call.
func (l Ledger) Withdraw(snap store.Snapshot, id access.Principal, amount, time uint64) (Account, error) {
	if amount == 0 {
		return Account{}, xerrors.Errorf("withdrawal of zero: %w", core.ErrInvalidInput)
	}

	err := l.policy.RequireActive(snap)
	if err != nil {
		return Account{}, err
	}

	acc, found, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	if !found {
		return acc, xerrors.Errorf("account '%s' has no balance: %w", id, core.ErrInsufficientFunds)
	}

	if acc.Frozen {
		return acc, xerrors.Errorf("account '%s': %w", id, core.ErrAccountFrozen)
	}

	if acc.Balance < amount {
		return acc, xerrors.Errorf("balance %d below %d: %w", acc.Balance, amount,
			core.ErrInsufficientFunds)
	}

	bucket, err := arith.Div(time, l.config.SecondsPerDay)
	if err != nil {
		return acc, xerrors.Errorf("failed to compute day bucket: %w", err)
	}

	if bucket != acc.LastDayBucket {
		acc.DailyWithdrawn = 0
		acc.LastDayBucket = bucket
	}

	withdrawn, err := arith.Add(acc.DailyWithdrawn, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to update daily withdrawals: %w", err)
	}

	if l.config.DailyWithdrawalLimit > 0 && withdrawn > l.config.DailyWithdrawalLimit {
		return acc, xerrors.Errorf("daily withdrawals %d above limit %d: %w",
			withdrawn, l.config.DailyWithdrawalLimit, core.ErrLimitExceeded)
	}

	acc.DailyWithdrawn = withdrawn

	acc.Balance, err = arith.Sub(acc.Balance, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to debit balance: %w", err)
	}

	err = l.updateCustody(snap, amount, false)
	if err != nil {
		return acc, err
	}

	return acc, l.save(snap, acc)
}

// Freeze sets the frozen flag of an existing account. Only the owner and the
// admins can do it and it is idempotent. It returns true if the flag changed.
func (l Ledger) Freeze(snap store.Snapshot, caller, id access.Principal, frozen bool) (bool, error) {
	err := l.policy.RequireRole(snap, access.OpFreeze, caller)
	if err != nil {
		return false, err
	}

	acc, err := l.GetAccount(snap, id)
	if err != nil {
		return false, err
	}

	if acc.Frozen == frozen {
		return false, nil
	}

	acc.Frozen = frozen

	custody.Logger.Info().Str("account", id.String()).Bool("frozen", frozen).
		Str("by", caller.String()).Msg("account freeze updated")

	return true, l.save(snap, acc)
}

// Escrow holds value attached to a call on behalf of the principal, for
// instance the amount of a bid. A frozen account cannot escrow.
func (l Ledger) Escrow(snap store.Snapshot, id access.Principal, amount uint64) (Account, error) {
	acc, err := l.loadActive(snap, id)
	if err != nil {
		return acc, err
	}

	return l.addEscrow(snap, acc, amount)
}

// Payout takes value out of the escrow of the principal, the value is about to
// leave the custody.
func (l Ledger) Payout(snap store.Snapshot, id access.Principal, amount uint64) (Account, error) {
	acc, found, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	if !found || acc.Escrowed < amount {
		return acc, xerrors.Errorf("escrow %d of '%s' below %d: %w", acc.Escrowed, id,
			amount, core.ErrInsufficientFunds)
	}

	acc.Escrowed, err = arith.Sub(acc.Escrowed, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to debit escrow: %w", err)
	}

	err = l.updateCustody(snap, amount, false)
	if err != nil {
		return acc, err
	}

	return acc, l.save(snap, acc)
}

// Restore puts back into escrow a payout whose transfer failed.
func (l Ledger) Restore(snap store.Snapshot, id access.Principal, amount uint64) (Account, error) {
	acc, _, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	return l.addEscrow(snap, acc, amount)
}

// Credit adds value that stays in the custody to the balance of the principal,
// like a collected fee or a refund that could not be transferred. A frozen
// account can be credited but cannot withdraw.
func (l Ledger) Credit(snap store.Snapshot, id access.Principal, amount uint64) (Account, error) {
	acc, _, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	acc.Balance, err = arith.Add(acc.Balance, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to credit balance: %w", err)
	}

	err = l.updateCustody(snap, amount, true)
	if err != nil {
		return acc, err
	}

	return acc, l.save(snap, acc)
}

func (l Ledger) addEscrow(snap store.Snapshot, acc Account, amount uint64) (Account, error) {
	var err error

	acc.Escrowed, err = arith.Add(acc.Escrowed, amount)
	if err != nil {
		return acc, xerrors.Errorf("failed to credit escrow: %w", err)
	}

	err = l.updateCustody(snap, amount, true)
	if err != nil {
		return acc, err
	}

	return acc, l.save(snap, acc)
}

func (l Ledger) loadActive(snap store.Readable, id access.Principal) (Account, error) {
	acc, _, err := l.load(snap, id)
	if err != nil {
		return acc, err
	}

	if acc.Frozen {
		return acc, xerrors.Errorf("account '%s': %w", id, core.ErrAccountFrozen)
	}

	return acc, nil
}

// load reads the account of the principal. A missing account is returned
// empty, ready to be created.
func (l Ledger) load(snap store.Readable, id access.Principal) (Account, bool, error) {
	if !id.Valid() {
		return Account{}, false, xerrors.Errorf("invalid account '%s': %w", id, core.ErrInvalidInput)
	}

	acc := Account{ID: id}

	data, err := prefixed.NewReadable(Prefix, snap).Get(accountKey(id))
	if err != nil {
		return acc, false, xerrors.Errorf("failed to read account: %v", err)
	}

	if data == nil {
		return acc, false, nil
	}

	err = json.Unmarshal(data, &acc)
	if err != nil {
		return acc, false, xerrors.Errorf("failed to decode account: %v", err)
	}

	return acc, true, nil
}

func (l Ledger) save(snap store.Snapshot, acc Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return xerrors.Errorf("failed to encode account: %v", err)
	}

	err = prefixed.NewSnapshot(Prefix, snap).Set(accountKey(acc.ID), data)
	if err != nil {
		return xerrors.Errorf("failed to write account: %v", err)
	}

	return nil
}

func (l Ledger) updateCustody(snap store.Snapshot, amount uint64, credit bool) error {
	total, err := l.Custody(snap)
	if err != nil {
		return err
	}

	if credit {
		total, err = arith.Add(total, amount)
	} else {
		total, err = arith.Sub(total, amount)
	}

	if err != nil {
		return xerrors.Errorf("failed to update custody: %w", err)
	}

	data, err := json.Marshal(total)
	if err != nil {
		return xerrors.Errorf("failed to encode custody: %v", err)
	}

	err = prefixed.NewSnapshot(Prefix, snap).Set(custodyKey, data)
	if err != nil {
		return xerrors.Errorf("failed to write custody: %v", err)
	}

	return nil
}

func accountKey(id access.Principal) []byte {
	return []byte(accountKeyPrefix + id.String())
}
