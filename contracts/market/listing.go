package market

import (
	"context"
	"strconv"
	"strings"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/arith"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

func (c Contract) createListing(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	asset := string(t.GetArg(AssetArg))
	if asset == "" {
		return gateway.Receipt{}, xerrors.Errorf("missing argument '%s': %w", AssetArg,
			core.ErrInvalidInput)
	}

	price, err := txn.GetUint(t, PriceArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	expiry, err := txn.GetUint(t, ExpiryArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	if price == 0 {
		return gateway.Receipt{}, xerrors.Errorf("price is zero: %w", core.ErrInvalidInput)
	}

	return c.gateway.Protect(ctx, "create-listing", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		if expiry <= tx.Height() {
			return xerrors.Errorf("expiry %d not after height %d: %w", expiry, tx.Height(),
				core.ErrInvalidInput)
		}

		owner, err := c.registry.OwnerOf(ctx, asset)
		if err != nil {
			return xerrors.Errorf("failed to verify ownership of '%s': %w", asset, err)
		}

		if owner != tx.Caller() {
			return xerrors.Errorf("'%s' does not own '%s': %w", tx.Caller(), asset,
				core.ErrUnauthorized)
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		listed, err := snap.Get(assetKey(asset))
		if err != nil {
			return xerrors.Errorf("failed to read asset: %v", err)
		}

		if listed != nil {
			return xerrors.Errorf("asset '%s' already listed: %w", asset, core.ErrInvalidInput)
		}

		id, err := create(snap, listings, func(id uint64) interface{} {
			return Listing{
				ID:     id,
				Seller: tx.Caller(),
				Asset:  asset,
				Price:  price,
				Expiry: expiry,
				State:  Active,
				Active: []uint64{},
			}
		})
		if err != nil {
			return err
		}

		err = snap.Set(assetKey(asset), encodeID(id))
		if err != nil {
			return xerrors.Errorf("failed to write asset: %v", err)
		}

		tx.Emit(core.EventListingCreated, strconv.FormatUint(id, 10), tx.Caller(), price)

		return nil
	})
}

func (c Contract) cancelListing(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "cancel-listing", t, func(tx *gateway.Tx) error {
		return c.cancel(tx, id)
	})
}

// batchCancel cancels the listings in a single operation. The listings are
// all cancelled or none is, while the refunds of their offers are independent.
func (c Contract) batchCancel(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	ids, err := parseIDs(string(t.GetArg(ListingsArg)), c.config.MaxBatch)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "batch-cancel", t, func(tx *gateway.Tx) error {
		for _, id := range ids {
			err := c.cancel(tx, id)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (c Contract) cancel(tx *gateway.Tx, id uint64) error {
	snap := prefixed.NewSnapshot(Prefix, tx)

	l, err := c.loadListing(snap, id)
	if err != nil {
		return err
	}

	if l.Closed() {
		return xerrors.Errorf("listing %d is %s: %w", id, l.State, core.ErrAlreadyFinalized)
	}

	err = c.policy.RequireRole(tx, access.OpCancelListing, tx.Caller(), l.Seller)
	if err != nil {
		return err
	}

	return c.closeListing(tx, snap, l, Cancelled, core.EventListingCancelled)
}

func (c Contract) expireListing(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "expire-listing", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		l, err := c.loadListing(snap, id)
		if err != nil {
			return err
		}

		if l.Closed() {
			return xerrors.Errorf("listing %d is %s: %w", id, l.State, core.ErrAlreadyFinalized)
		}

		if tx.Height() < l.Expiry {
			return xerrors.Errorf("listing %d open until height %d: %w", id, l.Expiry,
				core.ErrInvalidInput)
		}

		return c.closeListing(tx, snap, l, Expired, core.EventListingExpired)
	})
}

// closeListing moves the listing to a terminal state and refunds its active offers.
func (c Contract) closeListing(tx *gateway.Tx, snap store.Snapshot, l Listing, state ListingState,
	typ core.EventType) error {

	l.State = state

	err := snap.Delete(assetKey(l.Asset))
	if err != nil {
		return xerrors.Errorf("failed to delete asset: %v", err)
	}

	for _, oid := range append([]uint64{}, l.Active...) {
		o, err := c.loadOffer(snap, oid)
		if err != nil {
			return err
		}

		err = c.refund(tx, snap, &l, o)
		if err != nil {
			return err
		}
	}

	err = c.saveListing(snap, l)
	if err != nil {
		return err
	}

	tx.Emit(typ, strconv.FormatUint(l.ID, 10), tx.Caller(), 0)

	return nil
}

func (c Contract) buyNow(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "buy-now", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		l, err := c.loadOpen(tx, snap, id)
		if err != nil {
			return err
		}

		if tx.GetTransaction().GetValue() != l.Price {
			return xerrors.Errorf("attached value %d does not match price %d: %w",
				tx.GetTransaction().GetValue(), l.Price, core.ErrInvalidInput)
		}

		// The price enters the custody and leaves it at once, except the fee.
		_, err = c.ledger.Escrow(tx, tx.Caller(), l.Price)
		if err != nil {
			return err
		}

		_, err = c.ledger.Payout(tx, tx.Caller(), l.Price)
		if err != nil {
			return err
		}

		return c.sell(tx, snap, l, tx.Caller(), l.Price)
	})
}

// sell marks the listing sold to the buyer, collects the fee and queues the
// transfer of the asset and the payout of the seller. Both are atomic: if the
// payout fails, the asset is transferred back and the sale is undone.
func (c Contract) sell(tx *gateway.Tx, snap store.Snapshot, l Listing, buyer access.Principal,
	amount uint64) error {

	rate, err := c.fee(snap)
	if err != nil {
		return err
	}

	fee, err := arith.Fee(amount, rate)
	if err != nil {
		return err
	}

	payout, err := arith.Sub(amount, fee)
	if err != nil {
		return err
	}

	if fee > 0 {
		state, err := c.policy.State(tx)
		if err != nil {
			return err
		}

		_, err = c.ledger.Credit(tx, state.Owner, fee)
		if err != nil {
			return err
		}
	}

	l.State = Sold
	l.Buyer = buyer

	err = snap.Delete(assetKey(l.Asset))
	if err != nil {
		return xerrors.Errorf("failed to delete asset: %v", err)
	}

	err = c.saveListing(snap, l)
	if err != nil {
		return err
	}

	tx.Emit(core.EventListingSold, strconv.FormatUint(l.ID, 10), buyer, payout)

	asset, seller := l.Asset, l.Seller

	tx.Call("asset-transfer", func(ctx context.Context) error {
		return c.registry.Transfer(ctx, asset, seller, buyer)
	}, gateway.WithCompensate(func(ctx context.Context) error {
		return c.registry.Transfer(ctx, asset, buyer, seller)
	}))

	tx.Pay(seller, payout)

	custody.Logger.Info().Uint64("listing", l.ID).Str("buyer", buyer.String()).
		Uint64("amount", amount).Uint64("fee", fee).Msg("listing sold")

	return nil
}

func (c Contract) updateFee(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	rate, err := txn.GetUint(t, FeeArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	// The bound holds for every caller, the owner included.
	if rate > MaxFee {
		return gateway.Receipt{}, xerrors.Errorf("fee rate %d above %d: %w", rate, MaxFee,
			core.ErrInvalidInput)
	}

	return c.gateway.Protect(ctx, "update-fee", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpUpdateFee, tx.Caller())
		if err != nil {
			return err
		}

		err = c.setFee(prefixed.NewSnapshot(Prefix, tx), rate)
		if err != nil {
			return err
		}

		tx.Emit(core.EventFeeUpdated, "fee", tx.Caller(), rate)

		return nil
	})
}

// loadOpen returns the listing if it accepts a buyer at the height of the
// transaction.
func (c Contract) loadOpen(tx *gateway.Tx, snap store.Readable, id uint64) (Listing, error) {
	l, err := c.loadListing(snap, id)
	if err != nil {
		return l, err
	}

	if l.Closed() {
		return l, xerrors.Errorf("listing %d is %s: %w", id, l.State, core.ErrAlreadyFinalized)
	}

	if tx.Height() >= l.Expiry {
		return l, xerrors.Errorf("listing %d expired at height %d: %w", id, l.Expiry,
			core.ErrInvalidInput)
	}

	if tx.Caller() == l.Seller {
		return l, xerrors.Errorf("seller cannot buy: %w", core.ErrInvalidInput)
	}

	return l, nil
}

// parseIDs parses a comma-separated list of at most max identifiers.
func parseIDs(arg string, max int) ([]uint64, error) {
	if arg == "" {
		return nil, xerrors.Errorf("missing argument '%s': %w", ListingsArg, core.ErrInvalidInput)
	}

	count := strings.Count(arg, ",") + 1
	if count > max {
		return nil, xerrors.Errorf("batch of %d above %d: %w", count, max, core.ErrLimitExceeded)
	}

	parts := strings.Split(arg, ",")
	ids := make([]uint64, len(parts))
	seen := make(map[uint64]struct{}, len(parts))

	for i, part := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, xerrors.Errorf("malformed identifier '%s': %w", part, core.ErrInvalidInput)
		}

		_, found := seen[id]
		if found {
			return nil, xerrors.Errorf("duplicate identifier %d: %w", id, core.ErrInvalidInput)
		}

		seen[id] = struct{}{}
		ids[i] = id
	}

	return ids, nil
}
