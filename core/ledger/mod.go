// Package ledger implements the account bookkeeping of the custody.
//
// The ledger tracks for every principal the balance it can withdraw and the
// value held in escrow on its behalf, and the total value in custody. The
// ledger never moves value out by itself: the operations update the accounts
// and the caller queues the outbound transfer on the gateway afterwards.
//
// The following relation holds after every operation:
//
//	Σ balance + Σ escrowed == custody
package ledger

import "go.dedis.ch/custody/core/access"

// Prefix is the namespace of the ledger in the store.
const Prefix = "ledger"

// Account is the record of a principal in the ledger. It is created on the
// first credit and never deleted.
type Account struct {
	ID access.Principal `json:"id"`

	// Balance is the value the principal can withdraw.
	Balance uint64 `json:"balance"`

	// Escrowed is the value held for the principal by open bids and offers.
	Escrowed uint64 `json:"escrowed"`

	Frozen bool `json:"frozen"`

	// DailyWithdrawn is the sum of the withdrawals of the day bucket
	// LastDayBucket.
	DailyWithdrawn uint64 `json:"dailyWithdrawn"`
	LastDayBucket  uint64 `json:"lastDayBucket"`
}

// Config is the configuration of the limits of the ledger. A zero limit
// disables the corresponding check.
type Config struct {
	// DepositCap is the maximum amount of a single deposit.
	DepositCap uint64

	// DailyWithdrawalLimit is the maximum sum of the withdrawals of an account
	// within one day bucket.
	DailyWithdrawalLimit uint64

	// SecondsPerDay is the length of a day bucket in units of the logical
	// time.
	SecondsPerDay uint64
}

// DefaultSecondsPerDay is the length of a day bucket when the configuration
// does not set it.
const DefaultSecondsPerDay = 86400
