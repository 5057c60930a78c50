package controller

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"go.dedis.ch/custody/cli"
	"go.dedis.ch/custody/cli/node"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/txn"
	"go.dedis.ch/custody/core/txn/call"
	"go.dedis.ch/custody/engine"
	"golang.org/x/xerrors"
)

// callTimeout bounds a transaction, including the wait for the lock.
var callTimeout = 30 * time.Second

// callAction executes a transaction and prints its receipt.
//
// - implements node.ActionTemplate
type callAction struct{}

// Execute implements node.ActionTemplate.
func (callAction) Execute(ctx node.Context) error {
	e, err := resolveEngine(ctx.Injector)
	if err != nil {
		return err
	}

	tx, err := makeTransaction(ctx.Flags)
	if err != nil {
		return xerrors.Errorf("failed to create transaction: %v", err)
	}

	execCtx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	receipt, err := e.Execute(execCtx, tx)
	if err != nil {
		return xerrors.Errorf("transaction %s rejected: %v", receipt.ID, err)
	}

	return writeJSON(ctx.Out, receipt)
}

// makeTransaction creates the transaction from the flags of the call. An
// argument key without a namespace is qualified with the short name of the
// contract.
func makeTransaction(flags cli.Flags) (txn.Transaction, error) {
	alias := flags.String("contract")
	contract := engine.ContractName(alias)

	numbers := make(map[string]uint64)

	for _, name := range []string{"value", "height", "time"} {
		n := flags.Int(name)
		if n < 0 {
			return nil, xerrors.Errorf("negative %s %d: %w", name, n, core.ErrInvalidInput)
		}

		numbers[name] = uint64(n)
	}

	opts := []call.TransactionOption{
		call.WithArg(native.ContractArg, []byte(contract)),
		call.WithValue(numbers["value"]),
		call.WithClock(numbers["height"], numbers["time"]),
	}

	_, isAlias := engine.Aliases[alias]

	for _, arg := range flags.StringSlice("args") {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" {
			return nil, xerrors.Errorf("malformed argument '%s': %w", arg, core.ErrInvalidInput)
		}

		if isAlias && !strings.Contains(key, ":") {
			key = alias + ":" + key
		}

		opts = append(opts, call.WithArg(key, []byte(value)))
	}

	return call.NewTransaction(access.Principal(flags.String("caller")), opts...), nil
}

type queryFn func(e *engine.Engine, flags cli.Flags) (interface{}, error)

// queryAction prints the result of a read-only query.
//
// - implements node.ActionTemplate
type queryAction struct {
	query queryFn
}

// Execute implements node.ActionTemplate.
func (a queryAction) Execute(ctx node.Context) error {
	e, err := resolveEngine(ctx.Injector)
	if err != nil {
		return err
	}

	res, err := a.query(e, ctx.Flags)
	if err != nil {
		return xerrors.Errorf("query failed: %v", err)
	}

	return writeJSON(ctx.Out, res)
}

var (
	idFlag = cli.IntFlag{Name: "id", Usage: "identifier", Required: true}

	pageFlags = []cli.Flag{
		cli.IntFlag{Name: "offset", Usage: "index of the first item"},
		cli.IntFlag{Name: "limit", Usage: "number of items", Value: index.MaxPageSize},
	}
)

var queries = []struct {
	name        string
	description string
	flags       []cli.Flag
	fn          queryFn
}{
	{
		name:        "account",
		description: "print an account",
		flags:       []cli.Flag{cli.StringFlag{Name: "id", Usage: "principal", Required: true}},
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Account(access.Principal(flags.String("id")))
		},
	},
	{
		name:        "custody",
		description: "print the total value held by the ledger",
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Custody()
		},
	},
	{
		name:        "policy",
		description: "print the owner, the admins and the pause flag",
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Policy()
		},
	},
	{
		name:        "auction",
		description: "print an auction",
		flags:       []cli.Flag{idFlag},
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Auction(uint64(flags.Int("id")))
		},
	},
	{
		name:        "auctions",
		description: "print a page of the auctions",
		flags:       pageFlags,
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Auctions(page(flags))
		},
	},
	{
		name:        "bids",
		description: "print a page of the bids of an auction",
		flags:       append([]cli.Flag{idFlag}, pageFlags...),
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Bids(uint64(flags.Int("id")), page(flags))
		},
	},
	{
		name:        "participants",
		description: "print a page of the bidders of an auction",
		flags:       append([]cli.Flag{idFlag}, pageFlags...),
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Participants(uint64(flags.Int("id")), page(flags))
		},
	},
	{
		name:        "listing",
		description: "print a listing",
		flags:       []cli.Flag{idFlag},
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Listing(uint64(flags.Int("id")))
		},
	},
	{
		name:        "listings",
		description: "print a page of the listings",
		flags:       pageFlags,
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Listings(page(flags))
		},
	},
	{
		name:        "offer",
		description: "print an offer",
		flags:       []cli.Flag{idFlag},
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Offer(uint64(flags.Int("id")))
		},
	},
	{
		name:        "offers",
		description: "print a page of the offers of a listing",
		flags:       append([]cli.Flag{idFlag}, pageFlags...),
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Offers(uint64(flags.Int("id")), page(flags))
		},
	},
	{
		name:        "fee",
		description: "print the fee rate of the marketplace in basis points",
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Fee()
		},
	},
	{
		name:        "sale",
		description: "print the token sale",
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Sale()
		},
	},
	{
		name:        "tiers",
		description: "print a page of the tiers of the token sale",
		flags:       pageFlags,
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Tiers(page(flags))
		},
	},
	{
		name:        "purchases",
		description: "print a page of the purchases of the token sale",
		flags:       pageFlags,
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Purchases(page(flags))
		},
	},
	{
		name:        "holding",
		description: "print the purchases of a buyer of the token sale",
		flags:       []cli.Flag{cli.StringFlag{Name: "id", Usage: "principal", Required: true}},
		fn: func(e *engine.Engine, flags cli.Flags) (interface{}, error) {
			return e.Holding(access.Principal(flags.String("id")))
		},
	},
}

// registerAction registers the owner of an asset.
//
// - implements node.ActionTemplate
type registerAction struct{}

// Execute implements node.ActionTemplate.
func (registerAction) Execute(ctx node.Context) error {
	e, err := resolveEngine(ctx.Injector)
	if err != nil {
		return err
	}

	asset := ctx.Flags.String("asset")
	owner := access.Principal(ctx.Flags.String("owner"))

	if asset == "" || !owner.Valid() {
		return xerrors.Errorf("invalid asset '%s' of '%s'", asset, owner)
	}

	e.Registry().Register(asset, owner)

	_, err = io.WriteString(ctx.Out, "asset "+asset+" registered")

	return err
}

func resolveEngine(inj node.Injector) (*engine.Engine, error) {
	var e *engine.Engine

	err := inj.Resolve(&e)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve engine: %v", err)
	}

	return e, nil
}

// page returns the page of the flags. A negative number is out of any page.
func page(flags cli.Flags) index.Page {
	offset, limit := flags.Int("offset"), flags.Int("limit")
	if offset < 0 || limit < 0 {
		return index.NewPage(0, 0)
	}

	return index.NewPage(uint64(offset), uint64(limit))
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	_, err = out.Write(data)
	if err != nil {
		return xerrors.Errorf("failed to write: %v", err)
	}

	return nil
}
