package sale

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/access/roles"
	"go.dedis.ch/custody/core/execution"
	"go.dedis.ch/custody/core/execution/native"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/ledger"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/mem"
	"go.dedis.ch/custody/core/txn"
	"go.dedis.ch/custody/core/txn/call"
	"go.dedis.ch/custody/internal/testing/fake"
)

func TestRegisterContract(t *testing.T) {
	srvc := native.NewExecution()
	RegisterContract(srvc, Contract{})

	require.Panics(t, func() { RegisterContract(srvc, Contract{}) })
}

func TestTokenAmount(t *testing.T) {
	tokens, err := TokenAmount(2, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), tokens)

	_, err = TokenAmount(math.MaxUint64, 1000)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)

	tokens, err = TokenAmount(math.MaxUint64, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), tokens)
}

func TestContract_Execute_Invalid(t *testing.T) {
	env := newEnv(t)

	_, err := env.run("owner", 1, 5, CmdClaim)
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.EqualError(t, err, "command 'CLAIM' does not accept value: invalid input")

	_, err = env.run("owner", 1, 0, "UNKNOWN")
	require.EqualError(t, err, "unknown command 'UNKNOWN': invalid input")

	_, err = env.run("owner", 1, 0, CmdCreateTier, uintArg(RateArg, 10))
	require.EqualError(t, err, "failed to CREATE_TIER: missing argument 'sale:min': invalid input")

	_, err = env.run("owner", 1, 0, CmdStart, uintArg(StartArg, 10))
	require.EqualError(t, err, "failed to START: missing argument 'sale:end': invalid input")

	_, err = env.run("owner", 1, 0, CmdDistribute)
	require.EqualError(t, err,
		"failed to DISTRIBUTE: missing argument 'sale:limit': invalid input")

	_, err = env.run("owner", 1, 0, CmdDistribute, uintArg(LimitArg, index.MaxPageSize+1))
	require.ErrorIs(t, err, core.ErrLimitExceeded)
}

func TestContract_CreateTier(t *testing.T) {
	env := newEnv(t)

	res, err := env.createTier("owner", 1000, 1, 10, 100)
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventTierCreated}, eventTypes(res.Events))
	require.Equal(t, "1", res.Events[0].Subject)

	tier, err := env.contract.GetTier(1)
	require.NoError(t, err)
	require.Equal(t, Tier{ID: 1, Rate: 1000, MinPurchase: 1, MaxPurchase: 10, Cap: 100}, tier)

	_, err = env.contract.GetTier(2)
	require.EqualError(t, err, "tier 2: not found")

	_, err = env.contract.GetTier(0)
	require.ErrorIs(t, err, core.ErrNotFound)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, Sale{State: Pending, Tiers: 1}, s)
}

func TestContract_CreateTier_Invalid(t *testing.T) {
	env := newEnv(t)

	_, err := env.createTier("alice", 1000, 1, 10, 100)
	require.ErrorIs(t, err, core.ErrUnauthorized)
	require.EqualError(t, err,
		"failed to CREATE_TIER: create-tier: 'alice' is not allowed to manage-sale: unauthorized")

	_, err = env.createTier("owner", 0, 1, 10, 100)
	require.EqualError(t, err, "failed to CREATE_TIER: create-tier: rate is zero: invalid input")

	_, err = env.createTier("owner", 10, 0, 10, 100)
	require.EqualError(t, err,
		"failed to CREATE_TIER: create-tier: purchase bounds [0, 10] out of order: invalid input")

	_, err = env.createTier("owner", 10, 20, 10, 100)
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = env.createTier("owner", 10, 1, 200, 100)
	require.EqualError(t, err,
		"failed to CREATE_TIER: create-tier: max purchase 200 above cap 100: invalid input")

	_, err = env.createTier("owner", 1000, 1, 10, math.MaxUint64)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)

	env.open(t)

	_, err = env.createTier("owner", 1000, 1, 10, 100)
	require.EqualError(t, err,
		"failed to CREATE_TIER: create-tier: sale already started: invalid input")

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Tiers)
}

func TestContract_Start(t *testing.T) {
	env := newEnv(t)

	_, err := env.start("owner", 1, 10, 100)
	require.EqualError(t, err, "failed to START: start-sale: sale has no tier: invalid input")

	_, err = env.createTier("owner", 1000, 1, 10, 100)
	require.NoError(t, err)

	_, err = env.start("alice", 1, 10, 100)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = env.start("owner", 1, 100, 100)
	require.EqualError(t, err,
		"failed to START: start-sale: end 100 not after start 100: invalid input")

	_, err = env.start("owner", 50, 10, 40)
	require.EqualError(t, err,
		"failed to START: start-sale: end 40 not after time 50: invalid input")

	res, err := env.start("owner", 50, 60, 100, txn.Arg{Key: WalletArg, Value: []byte("wallet")})
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventSaleStarted}, eventTypes(res.Events))

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, Started, s.State)
	require.Equal(t, access.Principal("wallet"), s.Wallet)
	require.Equal(t, uint64(60), s.Start)
	require.Equal(t, uint64(100), s.End)

	_, err = env.start("owner", 50, 60, 100)
	require.EqualError(t, err, "failed to START: start-sale: sale already started: invalid input")
}

func TestContract_UpdateTimes(t *testing.T) {
	env := newEnv(t)

	_, err := env.updateTimes("owner", 1, 10, 20)
	require.EqualError(t, err,
		"failed to UPDATE_TIMES: update-sale-times: sale not started: invalid input")

	env.open(t)

	_, err = env.updateTimes("alice", 1, 10, 20)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	res, err := env.updateTimes("owner", 1, 5, 200)
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventSaleUpdated}, eventTypes(res.Events))

	_, err = env.updateTimes("owner", 10, 20, 200)
	require.EqualError(t, err,
		"failed to UPDATE_TIMES: update-sale-times: sale opened at time 5: invalid input")

	_, err = env.updateTimes("owner", 10, 5, 150)
	require.NoError(t, err)

	_, err = env.updateTimes("owner", 150, 5, 300)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)
	require.EqualError(t, err,
		"failed to UPDATE_TIMES: update-sale-times: sale ended at time 150: already finalized")

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, uint64(5), s.Start)
	require.Equal(t, uint64(150), s.End)
}

func TestContract_UpdateWallet(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.run("alice", 2, 0, CmdUpdateWallet, txn.Arg{Key: WalletArg, Value: []byte("alice")})
	require.ErrorIs(t, err, core.ErrUnauthorized)

	_, err = env.run("owner", 2, 0, CmdUpdateWallet)
	require.ErrorIs(t, err, core.ErrInvalidInput)

	res, err := env.run("owner", 2, 0, CmdUpdateWallet, txn.Arg{Key: WalletArg, Value: []byte("vault")})
	require.NoError(t, err)
	require.Equal(t, "vault", res.Events[0].Principal)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, access.Principal("vault"), s.Wallet)
}

func TestContract_Buy(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	res, err := env.buy("alice", 10, 1, 4)
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventTokensPurchased}, eventTypes(res.Events))
	require.Equal(t, uint64(4), res.Events[0].Amount)

	_, err = env.buy("alice", 11, 1, 6)
	require.NoError(t, err)

	_, err = env.buy("bob", 12, 1, 3)
	require.NoError(t, err)

	h, err := env.contract.GetHolding("alice")
	require.NoError(t, err)
	require.Equal(t, Holding{Buyer: "alice", Paid: 10, Tokens: 10000}, h)

	tier, err := env.contract.GetTier(1)
	require.NoError(t, err)
	require.Equal(t, uint64(13), tier.Sold)
	require.Equal(t, uint64(13000), tier.Tokens)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, uint64(13), s.Raised)
	require.Equal(t, uint64(13000), s.Tokens)
	require.Equal(t, uint64(3), s.Purchases)
	require.Equal(t, uint64(2), s.Buyers)

	list, err := env.contract.Purchases(index.NewPage(1, 10))
	require.NoError(t, err)
	require.Equal(t, []Purchase{
		{ID: 2, Buyer: "alice", Tier: 1, Amount: 6, Tokens: 6000, Time: 11},
		{ID: 3, Buyer: "bob", Tier: 1, Amount: 3, Tokens: 3000, Time: 12},
	}, list)

	env.checkAccount(t, "alice", 0, 10)
	env.checkAccount(t, "bob", 0, 3)
	env.checkCustody(t, 13)
	require.Empty(t, env.sender.Transfers)

	_, err = env.contract.GetHolding("carol")
	require.EqualError(t, err, "purchases of 'carol': not found")
}

func TestContract_Buy_Invalid(t *testing.T) {
	env := newEnv(t)

	_, err := env.buy("alice", 1, 1, 5)
	require.EqualError(t, err, "failed to BUY: buy-tokens: sale not started: invalid input")

	env.open(t)

	_, err = env.buy("alice", 9, 1, 5)
	require.EqualError(t, err, "failed to BUY: buy-tokens: sale opens at time 10: invalid input")

	_, err = env.buy("alice", 10, 2, 5)
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = env.run("alice", 10, 3, CmdBuy, uintArg(TierArg, 1), uintArg(AmountArg, 5))
	require.EqualError(t, err,
		"failed to BUY: buy-tokens: attached value 3 does not match purchase 5: invalid input")

	_, err = env.buy("alice", 10, 1, 0)
	require.EqualError(t, err, "failed to BUY: buy-tokens: purchase 0 below 1: invalid input")

	_, err = env.buy("alice", 10, 1, 8)
	require.NoError(t, err)

	_, err = env.buy("alice", 10, 1, 3)
	require.ErrorIs(t, err, core.ErrLimitExceeded)
	require.EqualError(t, err,
		"failed to BUY: buy-tokens: purchases of 'alice' in tier 1 reach 11 above 10: limit exceeded")

	_, err = env.buy("alice", 100, 1, 1)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)
	require.EqualError(t, err,
		"failed to BUY: buy-tokens: sale ended at time 100: already finalized")

	env.checkAccount(t, "alice", 0, 8)
	env.checkCustody(t, 8)
}

func TestContract_Buy_HardCap(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	buyers := []access.Principal{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "b1"}

	for i, buyer := range buyers {
		_, err := env.buy(buyer, 10+uint64(i), 1, 10)
		require.NoError(t, err)
	}

	_, err := env.buy("b2", 20, 1, 1)
	require.ErrorIs(t, err, core.ErrLimitExceeded)
	require.EqualError(t, err,
		"failed to BUY: buy-tokens: hard cap 100 of tier 1 exceeded: limit exceeded")

	tier, err := env.contract.GetTier(1)
	require.NoError(t, err)
	require.Equal(t, tier.Cap, tier.Sold)

	env.checkCustody(t, 100)
}

func TestContract_Buy_Paused(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	env.stage(t, func(snap store.Snapshot) error {
		_, err := roles.NewPolicy().SetPaused(snap, "owner", true)
		return err
	})

	_, err := env.buy("alice", 10, 1, 5)
	require.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestContract_Buy_Frozen(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	env.stage(t, func(snap store.Snapshot) error {
		_, err := env.ledger.Deposit(snap, "alice", 5)
		if err != nil {
			return err
		}

		_, err = env.ledger.Freeze(snap, "owner", "alice", true)
		return err
	})

	_, err := env.buy("alice", 10, 1, 5)
	require.ErrorIs(t, err, core.ErrAccountFrozen)

	env.checkAccount(t, "alice", 5, 0)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Zero(t, s.Raised)
}

func TestContract_Claim(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.buy("alice", 10, 1, 10)
	require.NoError(t, err)

	_, err = env.claim("alice", 99)
	require.EqualError(t, err,
		"failed to CLAIM: claim-tokens: sale open until time 100: invalid input")

	_, err = env.claim("bob", 100)
	require.ErrorIs(t, err, core.ErrNotFound)

	res, err := env.claim("alice", 100)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Equal(t, []core.EventType{core.EventTokensClaimed}, eventTypes(res.Events))
	require.Equal(t, uint64(10000), res.Events[0].Amount)

	require.Equal(t, uint64(10), env.sender.Received("owner"))

	h, err := env.contract.GetHolding("alice")
	require.NoError(t, err)
	require.True(t, h.Claimed)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, uint64(10), s.Released)

	env.checkAccount(t, "alice", 0, 0)
	env.checkCustody(t, 0)

	_, err = env.claim("alice", 101)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)
	require.EqualError(t, err,
		"failed to CLAIM: claim-tokens: purchases of 'alice': already finalized")
}

func TestContract_Claim_PaymentFailure(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.buy("alice", 10, 1, 10)
	require.NoError(t, err)

	env.sender.FailFor("owner", -1)

	res, err := env.claim("alice", 100)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	require.ErrorIs(t, res.Failures[0], core.ErrExternalCallFailed)
	require.Equal(t, []core.EventType{core.EventTokensClaimed, core.EventProceedsCredited},
		eventTypes(res.Events))

	// The proceeds are not lost, they wait in the balance of the wallet.
	env.checkAccount(t, "alice", 0, 0)
	env.checkAccount(t, "owner", 10, 0)
	env.checkCustody(t, 10)
}

func TestContract_Claim_Reentrancy(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.buy("alice", 10, 1, 10)
	require.NoError(t, err)

	_, err = env.buy("bob", 11, 1, 5)
	require.NoError(t, err)

	var nested error

	env.sender.OnSend(func(ctx context.Context, to access.Principal, amount uint64) {
		_, nested = env.contract.Execute(ctx, makeTx("alice", 100, 0, CmdClaim))
	})

	_, err = env.claim("alice", 100)
	require.NoError(t, err)

	require.ErrorIs(t, nested, core.ErrReentrancyDetected)

	require.Equal(t, uint64(10), env.sender.Received("owner"))
	env.checkCustody(t, 5)
}

func TestContract_Buy_Reentrancy(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.buy("alice", 10, 1, 10)
	require.NoError(t, err)

	_, err = env.run("owner", 11, 0, CmdCancel)
	require.NoError(t, err)

	var nested error

	env.sender.OnSend(func(ctx context.Context, to access.Principal, amount uint64) {
		tx := makeTx("alice", 12, 5, CmdBuy, uintArg(TierArg, 1), uintArg(AmountArg, 5))
		_, nested = env.contract.Execute(context.Background(), tx)
	})

	_, err = env.claim("alice", 12)
	require.NoError(t, err)

	require.ErrorIs(t, nested, core.ErrReentrancyDetected)

	s, err := env.contract.GetSale()
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Purchases)
}

func TestContract_Cancel(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.buy("alice", 10, 1, 10)
	require.NoError(t, err)

	_, err = env.buy("bob", 11, 1, 5)
	require.NoError(t, err)

	_, err = env.run("alice", 12, 0, CmdCancel)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	res, err := env.run("owner", 12, 0, CmdCancel)
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventSaleCancelled}, eventTypes(res.Events))
	require.Equal(t, uint64(15), res.Events[0].Amount)

	_, err = env.run("owner", 13, 0, CmdCancel)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)

	_, err = env.buy("carol", 13, 1, 5)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)

	env.sender.FailFor("bob", 1)

	res, err = env.claim("alice", 13)
	require.NoError(t, err)
	require.Equal(t, []core.EventType{core.EventPurchaseRefunded}, eventTypes(res.Events))
	require.Equal(t, uint64(10), env.sender.Received("alice"))

	res, err = env.claim("bob", 14)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	require.Equal(t, []core.EventType{core.EventRefundFailed}, eventTypes(res.Events))

	env.checkAccount(t, "alice", 0, 0)
	env.checkAccount(t, "bob", 5, 0)
	env.checkCustody(t, 5)
	require.Zero(t, env.sender.Received("owner"))
}

func TestContract_Cancel_AfterEnd(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	_, err := env.run("owner", 100, 0, CmdCancel)
	require.ErrorIs(t, err, core.ErrAlreadyFinalized)
	require.EqualError(t, err,
		"failed to CANCEL: cancel-sale: sale ended at time 100: already finalized")
}

func TestContract_Distribute(t *testing.T) {
	env := newEnv(t)
	env.open(t)

	buyers := []access.Principal{"a1", "a2", "a3", "a4", "a5"}

	for i, buyer := range buyers {
		_, err := env.buy(buyer, 10+uint64(i), 1, uint64(i+1))
		require.NoError(t, err)
	}

	_, err := env.distribute("owner", 50, 0, 2)
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = env.claim("a2", 100)
	require.NoError(t, err)

	_, err = env.distribute("alice", 100, 0, 2)
	require.ErrorIs(t, err, core.ErrUnauthorized)
	require.EqualError(t, err,
		"failed to DISTRIBUTE: distribute-tokens: 'alice' is not allowed to distribute-tokens: unauthorized")

	env.sender.FailFor("owner", 1)

	res, err := env.distribute("owner", 100, 0, 3)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	require.Equal(t, []core.EventType{
		core.EventTokensClaimed,
		core.EventTokensClaimed,
		core.EventProceedsCredited,
	}, eventTypes(res.Events))
	require.Equal(t, "a1", res.Events[0].Principal)
	require.Equal(t, "a3", res.Events[1].Principal)

	res, err = env.distribute("owner", 100, 3, 10)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Len(t, res.Events, 2)

	res, err = env.distribute("owner", 100, 0, 10)
	require.NoError(t, err)
	require.Empty(t, res.Events)

	for _, buyer := range buyers {
		h, err := env.contract.GetHolding(buyer)
		require.NoError(t, err)
		require.True(t, h.Claimed, buyer)

		env.checkAccount(t, buyer, 0, 0)
	}

	// The payment of a1 failed and was credited to the wallet.
	require.Equal(t, uint64(2+3+4+5), env.sender.Received("owner"))
	env.checkAccount(t, "owner", 1, 0)
	env.checkCustody(t, 1)
}

func TestContract_Tiers(t *testing.T) {
	env := newEnv(t)

	for i := uint64(1); i <= 3; i++ {
		_, err := env.createTier("owner", i*100, 1, 10, 100)
		require.NoError(t, err)
	}

	list, err := env.contract.Tiers(index.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, uint64(200), list[0].Rate)
	require.Equal(t, uint64(3), list[1].ID)

	_, err = env.contract.Tiers(index.NewPage(0, 0))
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = env.contract.Purchases(index.NewPage(0, index.MaxPageSize+1))
	require.ErrorIs(t, err, core.ErrLimitExceeded)
}

// -----------------------------------------------------------------------------
// Utility functions

type env struct {
	store    *mem.Store
	sender   *fake.Sender
	ledger   ledger.Ledger
	contract Contract
}

func newEnv(t *testing.T) env {
	e := env{
		store:  mem.NewStore(),
		sender: fake.NewSender(),
		ledger: ledger.NewLedger(ledger.Config{}, roles.NewPolicy()),
	}

	e.stage(t, func(snap store.Snapshot) error {
		return roles.NewPolicy().Init(snap, "owner")
	})

	gw := gateway.NewGateway(e.store, e.sender)
	e.contract = NewContract(gw, e.ledger, roles.NewPolicy())

	return e
}

func (e env) stage(t *testing.T, fn func(store.Snapshot) error) {
	_, err := e.store.Stage(fn)
	require.NoError(t, err)
}

func (e env) run(caller access.Principal, now, value uint64, cmd Command,
	args ...txn.Arg) (execution.Result, error) {

	return e.contract.Execute(context.Background(), makeTx(caller, now, value, cmd, args...))
}

// open creates a tier of 1000 tokens per unit, with purchases between 1 and
// 10 and a cap of 100, and starts the sale between the times 10 and 100.
func (e env) open(t *testing.T) {
	_, err := e.createTier("owner", 1000, 1, 10, 100)
	require.NoError(t, err)

	_, err = e.start("owner", 1, 10, 100)
	require.NoError(t, err)
}

func (e env) createTier(caller access.Principal, rate, lower, upper, hardCap uint64) (execution.Result, error) {
	return e.run(caller, 1, 0, CmdCreateTier,
		uintArg(RateArg, rate),
		uintArg(MinArg, lower),
		uintArg(MaxArg, upper),
		uintArg(CapArg, hardCap))
}

func (e env) start(caller access.Principal, now, start, end uint64,
	args ...txn.Arg) (execution.Result, error) {

	args = append(args, uintArg(StartArg, start), uintArg(EndArg, end))

	return e.run(caller, now, 0, CmdStart, args...)
}

func (e env) updateTimes(caller access.Principal, now, start, end uint64) (execution.Result, error) {
	return e.run(caller, now, 0, CmdUpdateTimes, uintArg(StartArg, start), uintArg(EndArg, end))
}

func (e env) buy(caller access.Principal, now, tier, amount uint64) (execution.Result, error) {
	return e.run(caller, now, amount, CmdBuy, uintArg(TierArg, tier), uintArg(AmountArg, amount))
}

func (e env) claim(caller access.Principal, now uint64) (execution.Result, error) {
	return e.run(caller, now, 0, CmdClaim)
}

func (e env) distribute(caller access.Principal, now, offset, limit uint64) (execution.Result, error) {
	return e.run(caller, now, 0, CmdDistribute, uintArg(OffsetArg, offset), uintArg(LimitArg, limit))
}

func (e env) checkAccount(t *testing.T, id access.Principal, balance, escrowed uint64) {
	acc, err := e.ledger.GetAccount(e.store, id)
	require.NoError(t, err)
	require.Equal(t, balance, acc.Balance, "balance")
	require.Equal(t, escrowed, acc.Escrowed, "escrowed")
}

func (e env) checkCustody(t *testing.T, expected uint64) {
	total, err := e.ledger.Custody(e.store)
	require.NoError(t, err)
	require.Equal(t, expected, total)
}

func makeTx(caller access.Principal, now, value uint64, cmd Command, args ...txn.Arg) txn.Transaction {
	args = append(args, txn.Arg{Key: CmdArg, Value: []byte(cmd)})

	return call.NewTransaction(caller,
		call.WithClock(now, now),
		call.WithValue(value),
		call.WithArgs(args...))
}

func uintArg(key string, value uint64) txn.Arg {
	return txn.Arg{Key: key, Value: []byte(strconv.FormatUint(value, 10))}
}

func eventTypes(events []core.Event) []core.EventType {
	types := make([]core.EventType, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}

	return types
}
