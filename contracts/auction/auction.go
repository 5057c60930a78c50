package auction

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

var auctions = index.NewList("auctions")

func bids(id uint64) index.List {
	return index.NewList("bids/%d", id)
}

func participants(id uint64) index.List {
	return index.NewList("participants/%d", id)
}

func participantKey(id uint64, p access.Principal) []byte {
	return []byte("participant/" + strconv.FormatUint(id, 10) + "/" + p.String())
}

func (c Contract) create(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	deadline, err := txn.GetUint(t, DeadlineArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	increment, err := txn.GetOptionalUint(t, IncrementArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	if increment == 0 {
		increment = c.config.MinIncrement
	}

	return c.gateway.Protect(ctx, "create-auction", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		if deadline <= tx.Height() {
			return xerrors.Errorf("deadline %d not after height %d: %w", deadline,
				tx.Height(), core.ErrInvalidInput)
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		length, err := auctions.Len(snap)
		if err != nil {
			return err
		}

		a := Auction{
			Seller:       tx.Caller(),
			Deadline:     deadline,
			MinIncrement: increment,
			State:        Open,
		}

		a.ID, err = arith.Add(length, 1)
		if err != nil {
			return err
		}

		data, err := json.Marshal(a)
		if err != nil {
			return xerrors.Errorf("failed to encode auction: %v", err)
		}

		_, err = auctions.Append(snap, data)
		if err != nil {
			return err
		}

		tx.Emit(core.EventAuctionCreated, strconv.FormatUint(a.ID, 10), a.Seller, 0)

		return nil
	})
}

func (c Contract) bid(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, AuctionArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	amount, err := txn.GetUint(t, AmountArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "bid", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		a, err := c.load(snap, id)
		if err != nil {
			return err
		}

		if a.State != Open {
			return xerrors.Errorf("auction %d: %w", id, core.ErrAlreadyFinalized)
		}

		if tx.Height() >= a.Deadline {
			return xerrors.Errorf("auction %d closed at height %d: %w", id, a.Deadline,
				core.ErrInvalidInput)
		}

		if tx.Caller() == a.Seller {
			return xerrors.Errorf("seller cannot bid: %w", core.ErrInvalidInput)
		}

		if tx.GetTransaction().GetValue() != amount {
			return xerrors.Errorf("attached value %d does not match bid %d: %w",
				tx.GetTransaction().GetValue(), amount, core.ErrInvalidInput)
		}

		minBid, err := arith.Add(a.HighestBid, a.MinIncrement)
		if err != nil {
			return err
		}

		if amount < minBid {
			return xerrors.Errorf("bid %d below %d: %w", amount, minBid, core.ErrInvalidInput)
		}

		prevBidder, prevBid := a.HighestBidder, a.HighestBid

		a.HighestBid = amount
		a.HighestBidder = tx.Caller()

		_, err = c.ledger.Escrow(tx, tx.Caller(), amount)
		if err != nil {
			return err
		}

		err = c.record(snap, &a, Bid{Bidder: tx.Caller(), Amount: amount, Height: tx.Height()})
		if err != nil {
			return err
		}

		subject := strconv.FormatUint(id, 10)
		tx.Emit(core.EventBidPlaced, subject, tx.Caller(), amount)

		if prevBidder == "" {
			return nil
		}

		_, err = c.ledger.Payout(tx, prevBidder, prevBid)
		if err != nil {
			return err
		}

		tx.Pay(prevBidder, prevBid, gateway.WithSettle(c.settleRefund(subject, prevBidder, prevBid)))

		return nil
	})
}

// settleRefund returns the settlement of the refund of an outbid bidder. The
// value of a failed refund stays in the custody and is credited to the balance
// of the bidder.
func (c Contract) settleRefund(subject string, bidder access.Principal, amount uint64) gateway.Settle {
	return func(tx *gateway.Tx, err error) error {
		if err == nil {
			tx.Emit(core.EventBidRefunded, subject, bidder, amount)
			return nil
		}

		_, cerr := c.ledger.Credit(tx, bidder, amount)
		if cerr != nil {
			return xerrors.Errorf("failed to credit refund: %w", cerr)
		}

		custody.Logger.Warn().Err(err).Str("auction", subject).Str("bidder", bidder.String()).
			Uint64("amount", amount).Msg("refund credited to the balance")

		tx.Emit(core.EventRefundFailed, subject, bidder, amount)

		return nil
	}
}

func (c Contract) end(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, AuctionArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "end-auction", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		a, err := c.load(snap, id)
		if err != nil {
			return err
		}

		if a.State != Open {
			return xerrors.Errorf("auction %d: %w", id, core.ErrAlreadyFinalized)
		}

		err = c.policy.RequireRole(tx, access.OpEndAuction, tx.Caller(), a.Seller)
		if err != nil {
			return err
		}

		if tx.Height() < a.Deadline {
			return xerrors.Errorf("auction %d open until height %d: %w", id, a.Deadline,
				core.ErrInvalidInput)
		}

		a.State = Ended

		err = c.save(snap, a)
		if err != nil {
			return err
		}

		tx.Emit(core.EventAuctionEnded, strconv.FormatUint(id, 10), a.HighestBidder, a.HighestBid)

		if a.HighestBidder == "" {
			return nil
		}

		_, err = c.ledger.Payout(tx, a.HighestBidder, a.HighestBid)
		if err != nil {
			return err
		}

		tx.Pay(a.Seller, a.HighestBid)

		return nil
	})
}

// GetAuction returns the auction.
func (c Contract) GetAuction(id uint64) (Auction, error) {
	return c.load(prefixed.NewReadable(Prefix, c.gateway.Store()), id)
}

// List returns a page of the auctions in the order of creation.
func (c Contract) List(page index.Page) ([]Auction, error) {
	values, err := auctions.Range(prefixed.NewReadable(Prefix, c.gateway.Store()), page)
	if err != nil {
		return nil, err
	}

	res := make([]Auction, len(values))
	for i, data := range values {
		err = json.Unmarshal(data, &res[i])
		if err != nil {
			return nil, xerrors.Errorf("failed to decode auction: %v", err)
		}
	}

	return res, nil
}

// Bids returns a page of the accepted bids of the auction.
func (c Contract) Bids(id uint64, page index.Page) ([]Bid, error) {
	snap := prefixed.NewReadable(Prefix, c.gateway.Store())

	_, err := c.load(snap, id)
	if err != nil {
		return nil, err
	}

	values, err := bids(id).Range(snap, page)
	if err != nil {
		return nil, err
	}

	res := make([]Bid, len(values))
	for i, data := range values {
		err = json.Unmarshal(data, &res[i])
		if err != nil {
			return nil, xerrors.Errorf("failed to decode bid: %v", err)
		}
	}

	return res, nil
}

// Participants returns a page of the distinct bidders of the auction.
func (c Contract) Participants(id uint64, page index.Page) ([]access.Principal, error) {
	snap := prefixed.NewReadable(Prefix, c.gateway.Store())

	_, err := c.load(snap, id)
	if err != nil {
		return nil, err
	}

	values, err := participants(id).Range(snap, page)
	if err != nil {
		return nil, err
	}

	res := make([]access.Principal, len(values))
	for i, data := range values {
		res[i] = access.Principal(data)
	}

	return res, nil
}

// record appends the bid to the history of the auction and saves it.
func (c Contract) record(snap store.Snapshot, a *Auction, b Bid) error {
	data, err := json.Marshal(b)
	if err != nil {
		return xerrors.Errorf("failed to encode bid: %v", err)
	}

	a.Bids, err = bids(a.ID).Append(snap, data)
	if err != nil {
		return err
	}

	key := participantKey(a.ID, b.Bidder)

	known, err := snap.Get(key)
	if err != nil {
		return xerrors.Errorf("failed to read participant: %v", err)
	}

	if known == nil {
		a.Participants, err = participants(a.ID).Append(snap, []byte(b.Bidder))
		if err != nil {
			return err
		}

		err = snap.Set(key, []byte{1})
		if err != nil {
			return xerrors.Errorf("failed to write participant: %v", err)
		}
	}

	return c.save(snap, *a)
}

func (c Contract) load(snap store.Readable, id uint64) (Auction, error) {
	var a Auction

	if id == 0 {
		return a, xerrors.Errorf("auction 0: %w", core.ErrNotFound)
	}

	data, err := auctions.Get(snap, id-1)
	if xerrors.Is(err, core.ErrNotFound) {
		return a, xerrors.Errorf("auction %d: %w", id, core.ErrNotFound)
	}

	if err != nil {
		return a, err
	}

	err = json.Unmarshal(data, &a)
	if err != nil {
		return a, xerrors.Errorf("failed to decode auction: %v", err)
	}

	return a, nil
}

func (c Contract) save(snap store.Snapshot, a Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return xerrors.Errorf("failed to encode auction: %v", err)
	}

	return auctions.Set(snap, a.ID-1, data)
}
