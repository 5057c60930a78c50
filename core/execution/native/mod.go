// Package native implements an execution service to run native contracts.
//
// A native contract is written in Go and packaged with the application. The
// service looks up the contract with the contract argument of the transaction.
package native

import (
	"context"
	"fmt"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

const (
	// ContractArg is the argument key in the transaction to look up a contract.
	ContractArg = "go.dedis.ch/custody.ContractArg"
)

// Contract is the interface to implement to register a contract that will be
// executed natively.
type Contract interface {
	Execute(ctx context.Context, tx txn.Transaction) (execution.Result, error)
}

// Service is an execution service for packaged applications.
//
// - implements execution.Service
type Service struct {
	contracts map[string]Contract
}

// NewExecution returns a new native execution.
func NewExecution() *Service {
	return &Service{
		contracts: map[string]Contract{},
	}
}

// Set stores the contract using the name as the key. A transaction can trigger
// this contract by using the same name as the contract argument. It panics if
// the name is already used.
func (ns *Service) Set(name string, contract Contract) {
	_, found := ns.contracts[name]
	if found {
		panic(fmt.Sprintf("contract '%s' already registered", name))
	}

	ns.contracts[name] = contract
}

// Execute implements execution.Service. It runs the contract of the
// transaction.
func (ns *Service) Execute(ctx context.Context, tx txn.Transaction) (execution.Result, error) {
	name := string(tx.GetArg(ContractArg))

	contract := ns.contracts[name]
	if contract == nil {
		return execution.Result{}, xerrors.Errorf("unknown contract '%s': %w", name,
			core.ErrInvalidInput)
	}

	res, err := contract.Execute(ctx, tx)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("%s: %w", name, err)
	}

	return res, nil
}
