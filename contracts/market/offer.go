package market

import (
	"context"
	"strconv"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/gateway"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"go.dedis.ch/custody/core/txn"
	"golang.org/x/xerrors"
)

func (c Contract) makeOffer(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	amount, err := txn.GetUint(t, AmountArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	expiry, err := txn.GetOptionalUint(t, ExpiryArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	if amount == 0 {
		return gateway.Receipt{}, xerrors.Errorf("offer of zero: %w", core.ErrInvalidInput)
	}

	if t.GetValue() != amount {
		return gateway.Receipt{}, xerrors.Errorf("attached value %d does not match offer %d: %w",
			t.GetValue(), amount, core.ErrInvalidInput)
	}

	return c.gateway.Protect(ctx, "make-offer", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireActive(tx)
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		l, err := c.loadOpen(tx, snap, id)
		if err != nil {
			return err
		}

		if expiry == 0 {
			expiry = l.Expiry
		}

		if expiry <= tx.Height() || expiry > l.Expiry {
			return xerrors.Errorf("expiry %d not in (%d, %d]: %w", expiry, tx.Height(),
				l.Expiry, core.ErrInvalidInput)
		}

		key := activeKey(l.ID, tx.Caller())

		existing, err := snap.Get(key)
		if err != nil {
			return xerrors.Errorf("failed to read active offer: %v", err)
		}

		if existing != nil {
			return xerrors.Errorf("'%s' already has an active offer on listing %d: %w",
				tx.Caller(), l.ID, core.ErrInvalidInput)
		}

		if len(l.Active) >= c.config.MaxOffers {
			return xerrors.Errorf("listing %d has %d active offers: %w", l.ID, len(l.Active),
				core.ErrLimitExceeded)
		}

		_, err = c.ledger.Escrow(tx, tx.Caller(), amount)
		if err != nil {
			return err
		}

		oid, err := create(snap, offers, func(oid uint64) interface{} {
			return Offer{
				ID:      oid,
				Listing: l.ID,
				Offeror: tx.Caller(),
				Amount:  amount,
				Expiry:  expiry,
				State:   OfferActive,
			}
		})
		if err != nil {
			return err
		}

		l.Offers, err = listingOffers(l.ID).Append(snap, encodeID(oid))
		if err != nil {
			return err
		}

		l.Active = append(l.Active, oid)

		err = snap.Set(key, encodeID(oid))
		if err != nil {
			return xerrors.Errorf("failed to write active offer: %v", err)
		}

		err = c.saveListing(snap, l)
		if err != nil {
			return err
		}

		tx.Emit(core.EventOfferMade, strconv.FormatUint(oid, 10), tx.Caller(), amount)

		return nil
	})
}

func (c Contract) withdrawOffer(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	oid, err := txn.GetUint(t, OfferArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "withdraw-offer", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		o, err := c.loadOffer(snap, oid)
		if err != nil {
			return err
		}

		if o.Offeror != tx.Caller() {
			return xerrors.Errorf("'%s' is not the offeror: %w", tx.Caller(), core.ErrUnauthorized)
		}

		if o.State != OfferActive {
			return xerrors.Errorf("offer %d is %s: %w", oid, o.State, core.ErrAlreadyFinalized)
		}

		l, err := c.loadListing(snap, o.Listing)
		if err != nil {
			return err
		}

		err = c.deactivate(snap, &l, &o, Withdrawn)
		if err != nil {
			return err
		}

		err = c.saveListing(snap, l)
		if err != nil {
			return err
		}

		_, err = c.ledger.Payout(tx, o.Offeror, o.Amount)
		if err != nil {
			return err
		}

		tx.Emit(core.EventOfferWithdrawn, strconv.FormatUint(oid, 10), o.Offeror, o.Amount)
		tx.Pay(o.Offeror, o.Amount)

		return nil
	})
}

func (c Contract) acceptOffer(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	oid, err := txn.GetUint(t, OfferArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "accept-offer", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		l, err := c.loadListing(snap, id)
		if err != nil {
			return err
		}

		if l.Closed() {
			return xerrors.Errorf("listing %d is %s: %w", id, l.State, core.ErrAlreadyFinalized)
		}

		err = c.policy.RequireRole(tx, access.OpAcceptOffer, tx.Caller(), l.Seller)
		if err != nil {
			return err
		}

		if tx.Height() >= l.Expiry {
			return xerrors.Errorf("listing %d expired at height %d: %w", id, l.Expiry,
				core.ErrInvalidInput)
		}

		o, err := c.loadOffer(snap, oid)
		if err != nil {
			return err
		}

		if o.Listing != l.ID {
			return xerrors.Errorf("offer %d is not on listing %d: %w", oid, id, core.ErrInvalidInput)
		}

		if o.State != OfferActive {
			return xerrors.Errorf("offer %d is %s: %w", oid, o.State, core.ErrAlreadyFinalized)
		}

		if tx.Height() >= o.Expiry {
			return xerrors.Errorf("offer %d expired at height %d: %w", oid, o.Expiry,
				core.ErrInvalidInput)
		}

		err = c.deactivate(snap, &l, &o, Accepted)
		if err != nil {
			return err
		}

		_, err = c.ledger.Payout(tx, o.Offeror, o.Amount)
		if err != nil {
			return err
		}

		tx.Emit(core.EventOfferAccepted, strconv.FormatUint(oid, 10), o.Offeror, o.Amount)

		// The other active offers are refunded independently. There are at
		// most MaxOffers of them and a failed refund stays pending.
		for _, other := range append([]uint64{}, l.Active...) {
			ro, err := c.loadOffer(snap, other)
			if err != nil {
				return err
			}

			err = c.refund(tx, snap, &l, ro)
			if err != nil {
				return err
			}
		}

		return c.sell(tx, snap, l, o.Offeror, o.Amount)
	})
}

// retryRefunds refunds the offers in the page of a closed listing that are
// either waiting for a failed refund or still active.
func (c Contract) retryRefunds(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	id, err := txn.GetUint(t, ListingArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

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

	return c.gateway.Protect(ctx, "retry-refunds", t, func(tx *gateway.Tx) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		l, err := c.loadListing(snap, id)
		if err != nil {
			return err
		}

		if !l.Closed() {
			return xerrors.Errorf("listing %d is active: %w", id, core.ErrInvalidInput)
		}

		ids, err := c.offerIDs(snap, id, page)
		if err != nil {
			return err
		}

		for _, oid := range ids {
			o, err := c.loadOffer(snap, oid)
			if err != nil {
				return err
			}

			if o.State == OfferActive || o.RefundPending {
				err = c.refund(tx, snap, &l, o)
				if err != nil {
					return err
				}
			}
		}

		return c.saveListing(snap, l)
	})
}

// refund withdraws the offer and queues its refund as an independent
// interaction. The offer stays pending until the transfer succeeds.
func (c Contract) refund(tx *gateway.Tx, snap store.Snapshot, l *Listing, o Offer) error {
	if o.State == OfferActive {
		err := c.deactivate(snap, l, &o, Withdrawn)
		if err != nil {
			return err
		}
	}

	o.RefundPending = true

	err := c.saveOffer(snap, o)
	if err != nil {
		return err
	}

	_, err = c.ledger.Payout(tx, o.Offeror, o.Amount)
	if err != nil {
		return err
	}

	tx.Pay(o.Offeror, o.Amount, gateway.WithSettle(c.settleRefund(o.ID)))

	return nil
}

// settleRefund returns the settlement of the refund of an offer. A failed
// refund puts the amount back in escrow and leaves the offer pending.
func (c Contract) settleRefund(oid uint64) gateway.Settle {
	return func(tx *gateway.Tx, err error) error {
		snap := prefixed.NewSnapshot(Prefix, tx)

		o, lerr := c.loadOffer(snap, oid)
		if lerr != nil {
			return lerr
		}

		subject := strconv.FormatUint(oid, 10)

		if err != nil {
			_, rerr := c.ledger.Restore(tx, o.Offeror, o.Amount)
			if rerr != nil {
				return rerr
			}

			custody.Logger.Warn().Err(err).Uint64("offer", oid).
				Str("offeror", o.Offeror.String()).Msg("refund pending")

			tx.Emit(core.EventRefundFailed, subject, o.Offeror, o.Amount)

			return nil
		}

		o.RefundPending = false

		err = c.saveOffer(snap, o)
		if err != nil {
			return err
		}

		tx.Emit(core.EventOfferWithdrawn, subject, o.Offeror, o.Amount)

		return nil
	}
}

// deactivate moves an active offer to the state and removes it from the active
// offers of the listing.
func (c Contract) deactivate(snap store.Snapshot, l *Listing, o *Offer, state OfferState) error {
	o.State = state

	active := l.Active[:0]
	for _, id := range l.Active {
		if id != o.ID {
			active = append(active, id)
		}
	}

	l.Active = active

	err := snap.Delete(activeKey(l.ID, o.Offeror))
	if err != nil {
		return xerrors.Errorf("failed to delete active offer: %v", err)
	}

	return c.saveOffer(snap, *o)
}
