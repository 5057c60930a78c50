package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	contract "go.dedis.ch/custody/contracts/access"
	"go.dedis.ch/custody/contracts/auction"
	"go.dedis.ch/custody/contracts/market"
	"go.dedis.ch/custody/contracts/sale"
	"go.dedis.ch/custody/contracts/vault"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/store/mem"
	"go.dedis.ch/custody/core/txn"
	"go.dedis.ch/custody/core/txn/call"
	"go.dedis.ch/custody/internal/testing/fake"
)

func TestNew(t *testing.T) {
	s := mem.NewStore()

	e, err := New(s, fake.NewSender(), makeConfig())
	require.NoError(t, err)

	state, err := e.Policy()
	require.NoError(t, err)
	require.Equal(t, access.Principal("owner"), state.Owner)

	// A restart with another owner keeps the owner of the store.
	config := makeConfig()
	config.Owner = "alice"

	e, err = New(s, fake.NewSender(), config)
	require.NoError(t, err)

	state, err = e.Policy()
	require.NoError(t, err)
	require.Equal(t, access.Principal("owner"), state.Owner)

	config.FeeRate = 2000
	_, err = New(s, fake.NewSender(), config)
	require.EqualError(t, err, "invalid config: fee rate 2000 above 1000: invalid input")

	_, err = New(fake.NewBadStore(), fake.NewSender(), makeConfig())
	require.EqualError(t, err, fake.Err("failed to init policy"))
}

func TestEngine_Execute_Vault(t *testing.T) {
	e, sender := makeEngine(t)

	receipt, err := e.Execute(ctx(), makeTx("alice", 1, 100, "vault", vault.CmdArg, ""))
	require.NoError(t, err)
	require.Len(t, receipt.ID, 20)
	require.Equal(t, []core.EventType{core.EventDeposit}, eventTypes(receipt.Events))
	require.Empty(t, receipt.Failures)

	_, err = e.Execute(ctx(), makeTx("alice", 2, 0, "vault", vault.CmdArg, string(vault.CmdWithdraw),
		vault.AmountArg, "30"))
	require.NoError(t, err)
	require.Equal(t, uint64(30), sender.Received("alice"))

	acc, err := e.Account("alice")
	require.NoError(t, err)
	require.Equal(t, uint64(70), acc.Balance)

	total, err := e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(70), total)

	_, err = e.Execute(ctx(), makeTx("alice", 3, 0, "vault", vault.CmdArg, string(vault.CmdWithdraw),
		vault.AmountArg, "71"))
	require.ErrorIs(t, err, core.ErrInsufficientFunds)

	_, err = e.Execute(ctx(), makeTx("alice", 3, 0, "unknown"))
	require.EqualError(t, err, "unknown contract 'unknown': invalid input")
}

func TestEngine_Execute_Auction(t *testing.T) {
	e, sender := makeEngine(t)

	_, err := e.Execute(ctx(), makeTx("alice", 1, 0, "auction", auction.CmdArg, string(auction.CmdCreate),
		auction.DeadlineArg, "5"))
	require.NoError(t, err)

	_, err = e.Execute(ctx(), makeTx("bob", 2, 10, "auction", auction.CmdArg, string(auction.CmdBid),
		auction.AuctionArg, "1", auction.AmountArg, "10"))
	require.NoError(t, err)

	receipt, err := e.Execute(ctx(), makeTx("carol", 3, 15, "auction", auction.CmdArg,
		string(auction.CmdBid), auction.AuctionArg, "1", auction.AmountArg, "15"))
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventBidPlaced, core.EventBidRefunded},
		eventTypes(receipt.Events))
	require.Equal(t, uint64(10), sender.Received("bob"))

	total, err := e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(15), total)

	_, err = e.Execute(ctx(), makeTx("alice", 5, 0, "auction", auction.CmdArg, string(auction.CmdEnd),
		auction.AuctionArg, "1"))
	require.NoError(t, err)
	require.Equal(t, uint64(15), sender.Received("alice"))

	a, err := e.Auction(1)
	require.NoError(t, err)
	require.Equal(t, auction.Ended, a.State)
	require.Equal(t, access.Principal("carol"), a.HighestBidder)

	auctions, err := e.Auctions(index.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, auctions, 1)

	bids, err := e.Bids(1, index.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, bids, 2)

	participants, err := e.Participants(1, index.NewPage(0, 10))
	require.NoError(t, err)
	require.Equal(t, []access.Principal{"bob", "carol"}, participants)

	total, err = e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(0), total)
}

func TestEngine_Execute_Market(t *testing.T) {
	e, sender := makeEngine(t)

	_, err := e.Execute(ctx(), makeTx("alice", 1, 0, "market", market.CmdArg,
		string(market.CmdCreateListing), market.AssetArg, "art1", market.PriceArg, "1000",
		market.ExpiryArg, "20"))
	require.NoError(t, err)

	_, err = e.Execute(ctx(), makeTx("bob", 2, 1000, "market", market.CmdArg, string(market.CmdBuyNow),
		market.ListingArg, "1"))
	require.NoError(t, err)
	require.Equal(t, uint64(990), sender.Received("alice"))

	owner, err := e.Registry().OwnerOf(ctx(), "art1")
	require.NoError(t, err)
	require.Equal(t, access.Principal("bob"), owner)

	l, err := e.Listing(1)
	require.NoError(t, err)
	require.Equal(t, market.Sold, l.State)

	listings, err := e.Listings(index.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, listings, 1)

	offers, err := e.Offers(1, index.NewPage(0, 10))
	require.NoError(t, err)
	require.Empty(t, offers)

	_, err = e.Offer(1)
	require.ErrorIs(t, err, core.ErrNotFound)

	fee, err := e.Fee()
	require.NoError(t, err)
	require.Equal(t, uint64(100), fee)

	acc, err := e.Account("owner")
	require.NoError(t, err)
	require.Equal(t, uint64(10), acc.Balance)

	total, err := e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(10), total)
}

func TestEngine_Execute_Sale(t *testing.T) {
	e, sender := makeEngine(t)

	_, err := e.Execute(ctx(), makeTx("owner", 1, 0, "sale", sale.CmdArg, string(sale.CmdCreateTier),
		sale.RateArg, "1000", sale.MinArg, "1", sale.MaxArg, "50", sale.CapArg, "100"))
	require.NoError(t, err)

	_, err = e.Execute(ctx(), makeTx("owner", 1, 0, "sale", sale.CmdArg, string(sale.CmdStart),
		sale.StartArg, "2", sale.EndArg, "10", sale.WalletArg, "treasury"))
	require.NoError(t, err)

	receipt, err := e.Execute(ctx(), makeTx("bob", 2, 20, "sale", sale.CmdArg, string(sale.CmdBuy),
		sale.TierArg, "1", sale.AmountArg, "20"))
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventTokensPurchased}, eventTypes(receipt.Events))

	total, err := e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(20), total)

	receipt, err = e.Execute(ctx(), makeTx("owner", 10, 0, "sale", sale.CmdArg,
		string(sale.CmdDistribute), sale.LimitArg, "10"))
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventTokensClaimed}, eventTypes(receipt.Events))
	require.Equal(t, uint64(20), sender.Received("treasury"))

	s, err := e.Sale()
	require.NoError(t, err)
	require.Equal(t, uint64(20), s.Released)

	tiers, err := e.Tiers(index.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, tiers, 1)

	purchases, err := e.Purchases(index.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.Equal(t, uint64(20000), purchases[0].Tokens)

	h, err := e.Holding("bob")
	require.NoError(t, err)
	require.True(t, h.Claimed)

	total, err = e.Custody()
	require.NoError(t, err)
	require.Equal(t, uint64(0), total)
}

func TestEngine_Execute_Access(t *testing.T) {
	e, _ := makeEngine(t)

	var events []core.Event
	e.Watch().Add(observer(func(event core.Event) {
		events = append(events, event)
	}))

	_, err := e.Execute(ctx(), makeTx("alice", 1, 0, "access", contract.CmdArg, string(contract.CmdPause)))
	require.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = e.Execute(ctx(), makeTx("owner", 1, 0, "access", contract.CmdArg, string(contract.CmdPause)))
	require.NoError(t, err)

	_, err = e.Execute(ctx(), makeTx("alice", 2, 10, "vault"))
	require.EqualError(t, err, vault.ContractName+": failed to DEPOSIT: deposit: ledger is paused: unauthorized")

	state, err := e.Policy()
	require.NoError(t, err)
	require.True(t, state.Paused)

	require.Len(t, events, 1)
	require.Equal(t, core.EventPaused, events[0].Type)
}

func TestContractName(t *testing.T) {
	require.Equal(t, vault.ContractName, ContractName("vault"))
	require.Equal(t, auction.ContractName, ContractName("auction"))
	require.Equal(t, market.ContractName, ContractName("market"))
	require.Equal(t, sale.ContractName, ContractName("sale"))
	require.Equal(t, contract.ContractName, ContractName("access"))
	require.Equal(t, "unknown", ContractName("unknown"))
}

func TestTransactionID(t *testing.T) {
	tx := call.NewTransaction("alice")
	require.Equal(t, tx.String(), transactionID(tx))

	require.Len(t, transactionID(badIDTx{Transaction: tx}), 20)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeConfig() Config {
	config := DefaultConfig()
	config.Owner = "owner"
	config.FeeRate = 100
	config.SecondsPerDay = ledger.DefaultSecondsPerDay
	config.Assets = map[string]string{"art1": "alice"}

	return config
}

func makeEngine(t *testing.T) (*Engine, *fake.Sender) {
	sender := fake.NewSender()

	e, err := New(mem.NewStore(), sender, makeConfig())
	require.NoError(t, err)

	return e, sender
}

func makeTx(caller string, height, value uint64, contract string, args ...string) txn.Transaction {
	opts := []call.TransactionOption{
		call.WithClock(height, height),
		call.WithValue(value),
		call.WithArg(native.ContractArg, []byte(ContractName(contract))),
	}

	for i := 0; i+1 < len(args); i += 2 {
		opts = append(opts, call.WithArg(args[i], []byte(args[i+1])))
	}

	return call.NewTransaction(access.Principal(caller), opts...)
}

func eventTypes(events []core.Event) []core.EventType {
	types := make([]core.EventType, len(events))
	for i, event := range events {
		types[i] = event.Type
	}

	return types
}

func ctx() context.Context {
	return context.Background()
}

type observer func(core.Event)

func (o observer) NotifyCallback(event core.Event) {
	o(event)
}

type badIDTx struct {
	txn.Transaction
}

func (badIDTx) GetID() []byte {
	return []byte{0xaa}
}
