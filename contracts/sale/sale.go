package sale

import (
	"context"
	"encoding/json"
	"strconv"

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

var (
	tiers     = index.NewList("tiers")
	purchases = index.NewList("purchases")
	buyers    = index.NewList("buyers")

	saleKey = []byte("record")
)

func holdingKey(p access.Principal) []byte {
	return []byte("holding/" + p.String())
}

func spentKey(tier uint64, p access.Principal) []byte {
	return []byte("spent/" + strconv.FormatUint(tier, 10) + "/" + p.String())
}

func (c Contract) createTier(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	tier := Tier{}

	fields := []struct {
		key   string
		value *uint64
	}{
		{key: RateArg, value: &tier.Rate},
		{key: MinArg, value: &tier.MinPurchase},
		{key: MaxArg, value: &tier.MaxPurchase},
		{key: CapArg, value: &tier.Cap},
	}

	for _, field := range fields {
		v, err := txn.GetUint(t, field.key)
		if err != nil {
			return gateway.Receipt{}, err
		}

		*field.value = v
	}

	return c.gateway.Protect(ctx, "create-tier", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpManageSale, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadSale(snap)
		if err != nil {
			return err
		}

		if s.State != Pending {
			return xerrors.Errorf("sale already %s: %w", s.State, core.ErrInvalidInput)
		}

		err = validateTier(tier)
		if err != nil {
			return err
		}

		s.Tiers, err = arith.Add(s.Tiers, 1)
		if err != nil {
			return err
		}

		tier.ID = s.Tiers

		data, err := json.Marshal(tier)
		if err != nil {
			return xerrors.Errorf("failed to encode tier: %v", err)
		}

		_, err = tiers.Append(snap, data)
		if err != nil {
			return err
		}

		tx.Emit(core.EventTierCreated, strconv.FormatUint(tier.ID, 10), tx.Caller(), tier.Cap)

		return c.saveSale(snap, s)
	})
}

// validateTier returns an error if the bounds of the tier are inconsistent.
// The tokens of the whole cap must be representable so that no purchase of
// the tier overflows.
func validateTier(tier Tier) error {
	if tier.Rate == 0 {
		return xerrors.Errorf("rate is zero: %w", core.ErrInvalidInput)
	}

	if tier.MinPurchase == 0 || tier.MinPurchase > tier.MaxPurchase {
		return xerrors.Errorf("purchase bounds [%d, %d] out of order: %w",
			tier.MinPurchase, tier.MaxPurchase, core.ErrInvalidInput)
	}

	if tier.MaxPurchase > tier.Cap {
		return xerrors.Errorf("max purchase %d above cap %d: %w", tier.MaxPurchase, tier.Cap,
			core.ErrInvalidInput)
	}

	_, err := TokenAmount(tier.Cap, tier.Rate)
	if err != nil {
		return xerrors.Errorf("cap of the tier: %w", err)
	}

	return nil
}

func (c Contract) start(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	start, err := txn.GetUint(t, StartArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	end, err := txn.GetUint(t, EndArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	var wallet access.Principal
	if len(t.GetArg(WalletArg)) > 0 {
		wallet, err = txn.GetPrincipal(t, WalletArg)
		if err != nil {
			return gateway.Receipt{}, err
		}
	}

	return c.gateway.Protect(ctx, "start-sale", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpManageSale, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadSale(snap)
		if err != nil {
			return err
		}

		if s.State != Pending {
			return xerrors.Errorf("sale already %s: %w", s.State, core.ErrInvalidInput)
		}

		if s.Tiers == 0 {
			return xerrors.Errorf("sale has no tier: %w", core.ErrInvalidInput)
		}

		err = checkTimes(start, end, tx.Time())
		if err != nil {
			return err
		}

		if wallet == "" {
			wallet = tx.Caller()
		}

		s.State = Started
		s.Start = start
		s.End = end
		s.Wallet = wallet

		tx.Emit(core.EventSaleStarted, Prefix, wallet, 0)

		return c.saveSale(snap, s)
	})
}

func checkTimes(start, end, now uint64) error {
	if end <= start {
		return xerrors.Errorf("end %d not after start %d: %w", end, start, core.ErrInvalidInput)
	}

	if end <= now {
		return xerrors.Errorf("end %d not after time %d: %w", end, now, core.ErrInvalidInput)
	}

	return nil
}

func (c Contract) updateTimes(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	start, err := txn.GetUint(t, StartArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	end, err := txn.GetUint(t, EndArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "update-sale-times", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpManageSale, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadOpen(snap, tx.Time())
		if err != nil {
			return err
		}

		if tx.Time() >= s.Start && start != s.Start {
			return xerrors.Errorf("sale opened at time %d: %w", s.Start, core.ErrInvalidInput)
		}

		err = checkTimes(start, end, tx.Time())
		if err != nil {
			return err
		}

		s.Start = start
		s.End = end

		tx.Emit(core.EventSaleUpdated, Prefix, tx.Caller(), 0)

		return c.saveSale(snap, s)
	})
}

func (c Contract) updateWallet(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	wallet, err := txn.GetPrincipal(t, WalletArg)
	if err != nil {
		return gateway.Receipt{}, err
	}

	return c.gateway.Protect(ctx, "update-sale-wallet", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpManageSale, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadSale(snap)
		if err != nil {
			return err
		}

		if s.State == Cancelled {
			return xerrors.Errorf("sale: %w", core.ErrAlreadyFinalized)
		}

		s.Wallet = wallet

		tx.Emit(core.EventSaleUpdated, Prefix, wallet, 0)

		return c.saveSale(snap, s)
	})
}

func (c Contract) cancel(ctx context.Context, t txn.Transaction) (gateway.Receipt, error) {
	return c.gateway.Protect(ctx, "cancel-sale", t, func(tx *gateway.Tx) error {
		err := c.policy.RequireRole(tx, access.OpManageSale, tx.Caller())
		if err != nil {
			return err
		}

		snap := prefixed.NewSnapshot(Prefix, tx)

		s, err := c.loadSale(snap)
		if err != nil {
			return err
		}

		if s.State == Cancelled {
			return xerrors.Errorf("sale: %w", core.ErrAlreadyFinalized)
		}

		if s.State == Started && tx.Time() >= s.End {
			return xerrors.Errorf("sale ended at time %d: %w", s.End, core.ErrAlreadyFinalized)
		}

		s.State = Cancelled

		tx.Emit(core.EventSaleCancelled, Prefix, tx.Caller(), s.Raised)

		return c.saveSale(snap, s)
	})
}

// GetSale returns the record of the sale.
func (c Contract) GetSale() (Sale, error) {
	return c.loadSale(prefixed.NewReadable(Prefix, c.gateway.Store()))
}

// GetTier returns the tier.
func (c Contract) GetTier(id uint64) (Tier, error) {
	return c.loadTier(prefixed.NewReadable(Prefix, c.gateway.Store()), id)
}

// Tiers returns a page of the tiers in the order of creation.
func (c Contract) Tiers(page index.Page) ([]Tier, error) {
	values, err := tiers.Range(prefixed.NewReadable(Prefix, c.gateway.Store()), page)
	if err != nil {
		return nil, err
	}

	res := make([]Tier, len(values))
	for i, data := range values {
		err = json.Unmarshal(data, &res[i])
		if err != nil {
			return nil, xerrors.Errorf("failed to decode tier: %v", err)
		}
	}

	return res, nil
}

// loadSale returns the record of the sale, which is pending until it is first
// written.
func (c Contract) loadSale(snap store.Readable) (Sale, error) {
	s := Sale{State: Pending}

	data, err := snap.Get(saleKey)
	if err != nil {
		return s, xerrors.Errorf("failed to read sale: %v", err)
	}

	if data == nil {
		return s, nil
	}

	err = json.Unmarshal(data, &s)
	if err != nil {
		return s, xerrors.Errorf("failed to decode sale: %v", err)
	}

	return s, nil
}

// loadOpen returns the record of a started sale that has not ended yet.
func (c Contract) loadOpen(snap store.Readable, now uint64) (Sale, error) {
	s, err := c.loadSale(snap)
	if err != nil {
		return s, err
	}

	switch s.State {
	case Pending:
		return s, xerrors.Errorf("sale not started: %w", core.ErrInvalidInput)
	case Cancelled:
		return s, xerrors.Errorf("sale: %w", core.ErrAlreadyFinalized)
	}

	if now >= s.End {
		return s, xerrors.Errorf("sale ended at time %d: %w", s.End, core.ErrAlreadyFinalized)
	}

	return s, nil
}

func (c Contract) saveSale(snap store.Snapshot, s Sale) error {
	data, err := json.Marshal(s)
	if err != nil {
		return xerrors.Errorf("failed to encode sale: %v", err)
	}

	err = snap.Set(saleKey, data)
	if err != nil {
		return xerrors.Errorf("failed to write sale: %v", err)
	}

	return nil
}

func (c Contract) loadTier(snap store.Readable, id uint64) (Tier, error) {
	var tier Tier

	if id == 0 {
		return tier, xerrors.Errorf("tier 0: %w", core.ErrNotFound)
	}

	data, err := tiers.Get(snap, id-1)
	if xerrors.Is(err, core.ErrNotFound) {
		return tier, xerrors.Errorf("tier %d: %w", id, core.ErrNotFound)
	}

	if err != nil {
		return tier, err
	}

	err = json.Unmarshal(data, &tier)
	if err != nil {
		return tier, xerrors.Errorf("failed to decode tier: %v", err)
	}

	return tier, nil
}

func (c Contract) saveTier(snap store.Snapshot, tier Tier) error {
	data, err := json.Marshal(tier)
	if err != nil {
		return xerrors.Errorf("failed to encode tier: %v", err)
	}

	return tiers.Set(snap, tier.ID-1, data)
}
