package sale

import (
	"context"
	"encoding/json"
	"strconv"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/arith"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

func (c Contract) buy(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, TierArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	amount, err := txn.GetUint(t, AmountArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "buy-tokens", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadOpen(snap, tx.Time())
		if err != nil {
			return err
		}

		if tx.Time() < s.Start {
			return xerrors.Errorf("sale opens at time %d: %w", s.Start, core.ErrInvalidInput)
		}

		tier, err := c.loadTier(snap, id)
		if err != nil {
			return err
		}

		if tx.GetTransaction().GetValue() != amount {
			return xerrors.Errorf("attached value %d does not match purchase %d: %w",
				tx.GetTransaction().GetValue(), amount, core.ErrInvalidInput)
		}

		if amount < tier.MinPurchase {
			return xerrors.Errorf("purchase %d below %d: %w", amount, tier.MinPurchase,
				core.ErrInvalidInput)
		}

		spent, err := c.loadSpent(snap, id, tx.Caller())
		if err != nil {
			return err
		}

		spent, err = arith.Add(spent, amount)
		if err != nil {
			return err
		}

		if spent > tier.MaxPurchase {
			return xerrors.Errorf("purchases of '%s' in tier %d reach %d above %d: %w",
				tx.Caller(), id, spent, tier.MaxPurchase, core.ErrLimitExceeded)
		}

		tier.Sold, err = arith.Add(tier.Sold, amount)
		if err != nil {
			return err
		}

		if tier.Sold > tier.Cap {
			return xerrors.Errorf("hard cap %d of tier %d exceeded: %w", tier.Cap, id,
				core.ErrLimitExceeded)
		}

		tokens, err := TokenAmount(amount, tier.Rate)
		if err != nil {
			return err
		}

		tier.Tokens, err = arith.Add(tier.Tokens, tokens)
		if err != nil {
			return err
		}

		_, err = c.ledger.Escrow(tx, tx.Caller(), amount)
		if err != nil {
			return err
		}

		p := Purchase{
			Buyer:  tx.Caller(),
			Tier:   id,
			Amount: amount,
			Tokens: tokens,
			Time:   tx.Time(),
		}

		err = c.record(snap, &s, p)
		if err != nil {
			return err
		}

		err = snap.Set(spentKey(id, tx.Caller()), []byte(strconv.FormatUint(spent, 10)))
		if err != nil {
			return xerrors.Errorf("failed to write spent amount: %v", err)
		}

		err = c.saveTier(snap, tier)
		if err != nil {
			return err
		}

		tx.Emit(core.EventTokensPurchased, strconv.FormatUint(id, 10), tx.Caller(), amount)

		return c.saveSale(snap, s)
	})
}

// record appends the purchase to the history of the sale and adds it to the
// holding of the buyer.
func (c Contract) record(snap store.Snapshot, s *Sale, p Purchase) error {
	h, found, err := c.loadHolding(snap, p.Buyer)
	if err != nil {
		return err
	}

	h.Paid, err = arith.Add(h.Paid, p.Amount)
	if err != nil {
		return err
	}

	h.Tokens, err = arith.Add(h.Tokens, p.Tokens)
	if err != nil {
		return err
	}

	s.Raised, err = arith.Add(s.Raised, p.Amount)
	if err != nil {
		return err
	}

	s.Tokens, err = arith.Add(s.Tokens, p.Tokens)
	if err != nil {
		return err
	}

	p.ID, err = arith.Add(s.Purchases, 1)
	if err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return xerrors.Errorf("failed to encode purchase: %v", err)
	}

	s.Purchases, err = purchases.Append(snap, data)
	if err != nil {
		return err
	}

	if !found {
		s.Buyers, err = buyers.Append(snap, []byte(p.Buyer))
		if err != nil {
			return err
		}
	}

	return c.saveHolding(snap, h)
}

func (c Contract) claim(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	return c.gateway.Protect(ctx, "claim-tokens", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadReleasable(snap, tx.Time())
		if err != nil {
			return err
		}

		h, found, err := c.loadHolding(snap, tx.Caller())
		if err != nil {
			return err
		}

		if !found {
			return xerrors.Errorf("purchases of '%s': %w", tx.Caller(), core.ErrNotFound)
		}

		if h.Claimed {
			return xerrors.Errorf("purchases of '%s': %w", tx.Caller(), core.ErrAlreadyFinalized)
		}

		err = c.release(tx, snap, &s, h)
		if err != nil {
			return err
		}

		return c.saveSale(snap, s)
	})
}

// distribute releases the holdings of a page of buyers. The holdings already
// claimed are skipped, and every payment is settled on its own so that a
// failing recipient does not hold back the others.
func (c Contract) distribute(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	offset, err := txn.GetOptionalUint(t, OffsetArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	limit, err := txn.GetUint(t, LimitArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	page := index.NewPage(offset, limit)

	err = page.Validate()
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "distribute-tokens", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpDistributeTokens, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadReleasable(snap, tx.Time())
		if err != nil {
			return err
		}

		values, err := buyers.Range(snap, page)
		if err != nil {
			return err
		}

		for _, value := range values {
			h, _, err := c.loadHolding(snap, access.Principal(value))
			if err != nil {
				return err
			}

			if h.Claimed {
				continue
			}

			err = c.release(tx, snap, &s, h)
			if err != nil {
				return err
			}
		}

		return c.saveSale(snap, s)
	})
}

// release marks the holding as claimed and moves its value out of the escrow
// of the buyer. The value is paid to the wallet of the sale, or back to the
// buyer when the sale is cancelled.
func (c Contract) release(tx *gateway.Tx, snap store.Snapshot, s *Sale, h Holding) error {
	h.Claimed = true

	err := c.saveHolding(snap, h)
	if err != nil {
		return err
	}

	s.Released, err = arith.Add(s.Released, h.Paid)
	if err != nil {
		return err
	}

	_, err = c.ledger.Payout(tx, h.Buyer, h.Paid)
	if err != nil {
		return err
	}

	if s.State == Cancelled {
		tx.Pay(h.Buyer, h.Paid, gateway.WithSettle(c.settleRefund(h.Buyer, h.Paid)))

		return nil
	}

	tx.Emit(core.EventTokensClaimed, Prefix, h.Buyer, h.Tokens)
	tx.Pay(s.Wallet, h.Paid, gateway.WithSettle(c.settleProceeds(s.Wallet, h.Buyer, h.Paid)))

	return nil
}

// settleRefund returns the settlement of the refund of a buyer of a cancelled
// sale. A failed refund is credited to the balance of the buyer.
func (c Contract) settleRefund(buyer access.Principal, amount uint64) gateway.Settle {
	return func(tx *gateway.Tx, err error) error {
		if err == nil {
			tx.Emit(core.EventPurchaseRefunded, Prefix, buyer, amount)
			return nil
		}

		_, cerr := c.ledger.Credit(tx, buyer, amount)
		if cerr != nil {
			return xerrors.Errorf("failed to credit refund: %w", cerr)
		}

		custody.Logger.Warn().Err(err).Str("buyer", buyer.String()).
			Uint64("amount", amount).Msg("refund credited to the balance")

		tx.Emit(core.EventRefundFailed, Prefix, buyer, amount)

		return nil
	}
}

// settleProceeds returns the settlement of the payment of the proceeds of a
// buyer to the wallet. A failed payment is credited to the balance of the
// wallet, the tokens of the buyer stay claimed.
func (c Contract) settleProceeds(wallet, buyer access.Principal, amount uint64) gateway.Settle {
	return func(tx *gateway.Tx, err error) error {
		if err == nil {
			return nil
		}

		_, cerr := c.ledger.Credit(tx, wallet, amount)
		if cerr != nil {
			return xerrors.Errorf("failed to credit proceeds: %w", cerr)
		}

		custody.Logger.Warn().Err(err).Str("wallet", wallet.String()).
			Str("buyer", buyer.String()).Uint64("amount", amount).
			Msg("proceeds credited to the balance")

		tx.Emit(core.EventProceedsCredited, buyer.String(), wallet, amount)

		return nil
	}
}

// GetHolding returns the sum of the purchases of the buyer.
func (c Contract) GetHolding(buyer access.Principal) (Holding, error) {
	h, found, err := c.loadHolding(prefixed.NewReadable(Prefix, c.gateway.Store()), buyer)
	if err != nil {
		return h, err
	}

	if !found {
		return h, xerrors.Errorf("purchases of '%s': %w", buyer, core.ErrNotFound)
	}

	return h, nil
}

// Purchases returns a page of the purchases in the order they were made.
func (c Contract) Purchases(page index.Page) ([]Purchase, error) {
	values, err := purchases.Range(prefixed.NewReadable(Prefix, c.gateway.Store()), page)
	if err != nil {
		return nil, err
	}

	res := make([]Purchase, len(values))
	for i, data := range values {
		err = json.Unmarshal(data, &res[i])
		if err != nil {
			return nil, xerrors.Errorf("failed to decode purchase: %v", err)
		}
	}

	return res, nil
}

// loadReleasable returns the record of a sale whose purchases can be
// released, which is a cancelled sale or a started sale that has ended.
func (c Contract) loadReleasable(snap store.Readable, now uint64) (Sale, error) {
	s, err := c.loadSale(snap)
	if err != nil {
		return s, err
	}

	switch {
	case s.State == Cancelled:
		return s, nil
	case s.State == Pending:
		return s, xerrors.Errorf("sale not started: %w", core.ErrInvalidInput)
	case now < s.End:
		return s, xerrors.Errorf("sale open until time %d: %w", s.End, core.ErrInvalidInput)
	}

	return s, nil
}

func (c Contract) loadHolding(snap store.Readable, buyer access.Principal) (Holding, bool, error) {
	h := Holding{Buyer: buyer}

	data, err := snap.Get(holdingKey(buyer))
	if err != nil {
		return h, false, xerrors.Errorf("failed to read holding: %v", err)
	}

	if data == nil {
		return h, false, nil
	}

	err = json.Unmarshal(data, &h)
	if err != nil {
		return h, false, xerrors.Errorf("failed to decode holding: %v", err)
	}

	return h, true, nil
}

func (c Contract) saveHolding(snap store.Snapshot, h Holding) error {
	data, err := json.Marshal(h)
	if err != nil {
		return xerrors.Errorf("failed to encode holding: %v", err)
	}

	err = snap.Set(holdingKey(h.Buyer), data)
	if err != nil {
		return xerrors.Errorf("failed to write holding: %v", err)
	}

	return nil
}

func (c Contract) loadSpent(snap store.Readable, tier uint64, buyer access.Principal) (uint64, error) {
	data, err := snap.Get(spentKey(tier, buyer))
	if err != nil {
		return 0, xerrors.Errorf("failed to read spent amount: %v", err)
	}

	if data == nil {
		return 0, nil
	}

	spent, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("failed to decode spent amount: %v", err)
	}

	return spent, nil
}
