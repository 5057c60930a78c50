// Package engine assembles the ledger: the store, the gateway, the policy, the
// account ledger and the native contracts, dispatched by a single execution
// service.
//
// The queries read the store without taking the lock of the gateway, while
// every transaction goes through Execute.
package engine

import (
	"context"

	"github.com/rs/xid"
	"go.dedis.ch/custody"
	contract "go.dedis.ch/custody/contracts/access"
	"go.dedis.ch/custody/contracts/auction"
	"go.dedis.ch/custody/contracts/market"
	"go.dedis.ch/custody/contracts/sale"
	"go.dedis.ch/custody/contracts/vault"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/access/roles"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

// Aliases maps the short names of the contracts to their full names.
var Aliases = map[string]string{
	"vault":   vault.ContractName,
	"auction": auction.ContractName,
	"market":  market.ContractName,
	"sale":    sale.ContractName,
	"access":  contract.ContractName,
}

// Receipt is the outcome of a transaction.
type Receipt struct {
	// ID is the identifier of the transaction.
	ID string `json:"id"`

	Events []core.Event `json:"events"`

	// Failures are the messages of the independent interactions that failed.
	// Their effects are recorded for a retry.
	Failures []string `json:"failures,omitempty"`
}

// Engine is the assembled ledger.
type Engine struct {
	gateway  *gateway.Gateway
	exec     *native.Service
	registry *market.Registry
	policy   roles.Policy

	vault   vault.Contract
	auction auction.Contract
	market  market.Contract
	sale    sale.Contract
	access  contract.Contract
}

// New creates the engine on top of the store. The policy is initialized with
// the owner of the configuration if the store does not have one yet.
func New(s store.Store, sender gateway.Sender, config Config) (*Engine, error) {
	err := config.Validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid config: %w", err)
	}

	policy := roles.NewPolicy()

	err = initPolicy(s, policy, access.Principal(config.Owner))
	if err != nil {
		return nil, xerrors.Errorf("failed to init policy: %w", err)
	}

	owners := make(map[string]access.Principal, len(config.Assets))
	for asset, owner := range config.Assets {
		owners[asset] = access.Principal(owner)
	}

	gw := gateway.NewGateway(s, sender)

	l := ledger.NewLedger(ledger.Config{
		DepositCap:           config.DepositCap,
		DailyWithdrawalLimit: config.DailyWithdrawalLimit,
		SecondsPerDay:        config.SecondsPerDay,
	}, policy)

	e := &Engine{
		gateway:  gw,
		exec:     native.NewExecution(),
		registry: market.NewRegistry(owners),
		policy:   policy,
	}

	e.market, err = market.NewContract(gw, l, policy, e.registry, market.Config{
		FeeRate:   config.FeeRate,
		MaxOffers: config.MaxOffersPerListing,
		MaxBatch:  config.MaxBatch,
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to create market: %w", err)
	}

	e.vault = vault.NewContract(gw, l)
	e.auction = auction.NewContract(gw, l, policy, auction.Config{
		MinIncrement: config.MinBidIncrement,
	})
	e.sale = sale.NewContract(gw, l, policy)
	e.access = contract.NewContract(gw, policy)

	vault.RegisterContract(e.exec, e.vault)
	auction.RegisterContract(e.exec, e.auction)
	market.RegisterContract(e.exec, e.market)
	sale.RegisterContract(e.exec, e.sale)
	contract.RegisterContract(e.exec, e.access)

	return e, nil
}

func initPolicy(s store.Store, policy roles.Policy, owner access.Principal) error {
	_, err := s.Stage(func(snap store.Snapshot) error {
		state, err := policy.State(snap)
		if err == nil {
			if state.Owner != owner {
				custody.Logger.Warn().Str("owner", state.Owner.String()).
					Str("configured", owner.String()).
					Msg("store already owned, configured owner ignored")
			}

			return nil
		}

		if !xerrors.Is(err, core.ErrNotFound) {
			return err
		}

		custody.Logger.Info().Str("owner", owner.String()).Msg("policy initialized")

		return policy.Init(snap, owner)
	})

	return err
}

// Watch returns the observable of the events of the successful transactions.
func (e *Engine) Watch() core.Observable {
	return e.gateway.Watch()
}

// Registry returns the asset registry of the marketplace.
func (e *Engine) Registry() *market.Registry {
	return e.registry
}

// Execute runs the transaction on the contract named by its contract
// argument.
func (e *Engine) Execute(ctx context.Context, tx txn.Transaction) (Receipt, error) {
	receipt := Receipt{ID: transactionID(tx)}

	res, err := e.exec.Execute(ctx, tx)
	if err != nil {
		custody.Logger.Debug().Err(err).Str("tx", receipt.ID).
			Str("caller", tx.GetIdentity().String()).Msg("transaction rejected")

		return receipt, err
	}

	receipt.Events = res.Events

	for _, failure := range res.Failures {
		receipt.Failures = append(receipt.Failures, failure.Error())
	}

	custody.Logger.Debug().Str("tx", receipt.ID).Int("events", len(receipt.Events)).
		Int("failures", len(receipt.Failures)).Msg("transaction executed")

	return receipt, nil
}

// ContractName returns the full name of the contract, which can be given by
// its short name.
func ContractName(name string) string {
	full, found := Aliases[name]
	if found {
		return full
	}

	return name
}

// transactionID returns the identifier of the transaction in its string form,
// or a new identifier if it is not one.
func transactionID(tx txn.Transaction) string {
	id, err := xid.FromBytes(tx.GetID())
	if err != nil {
		return xid.New().String()
	}

	return id.String()
}
