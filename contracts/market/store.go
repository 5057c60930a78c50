package market

import (
	"encoding/binary"
	"encoding/json"
	"strconv"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"golang.org/x/xerrors"
)

var (
	listings = index.NewList("listings")
	offers   = index.NewList("offers")
	feeKey   = []byte("fee")
)

func listingOffers(id uint64) index.List {
	return index.NewList("listing-offers/%d", id)
}

// assetKey is the key of the active listing of an asset.
func assetKey(asset string) []byte {
	return []byte("asset/" + asset)
}

// activeKey is the key of the active offer of an offeror on a listing.
func activeKey(listing uint64, offeror access.Principal) []byte {
	return []byte("active/" + strconv.FormatUint(listing, 10) + "/" + offeror.String())
}

// GetListing returns the listing.
func (c Contract) GetListing(id uint64) (Listing, error) {
	return c.loadListing(c.reader(), id)
}

// GetOffer returns the offer.
func (c Contract) GetOffer(id uint64) (Offer, error) {
	return c.loadOffer(c.reader(), id)
}

// Listings returns a page of the listings in the order of creation.
func (c Contract) Listings(page index.Page) ([]Listing, error) {
	values, err := listings.Range(c.reader(), page)
	if err != nil {
		return nil, err
	}

	res := make([]Listing, len(values))
	for i, data := range values {
		err = json.Unmarshal(data, &res[i])
		if err != nil {
			return nil, xerrors.Errorf("failed to decode listing: %v", err)
		}
	}

	return res, nil
}

// Offers returns a page of the offers made on the listing.
func (c Contract) Offers(listing uint64, page index.Page) ([]Offer, error) {
	snap := c.reader()

	_, err := c.loadListing(snap, listing)
	if err != nil {
		return nil, err
	}

	ids, err := c.offerIDs(snap, listing, page)
	if err != nil {
		return nil, err
	}

	res := make([]Offer, len(ids))
	for i, id := range ids {
		res[i], err = c.loadOffer(snap, id)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// Fee returns the current fee rate in basis points.
func (c Contract) Fee() (uint64, error) {
	return c.fee(c.reader())
}

func (c Contract) reader() store.Readable {
	return prefixed.NewReadable(Prefix, c.gateway.Store())
}

func (c Contract) fee(snap store.Readable) (uint64, error) {
	data, err := snap.Get(feeKey)
	if err != nil {
		return 0, xerrors.Errorf("failed to read fee: %v", err)
	}

	if len(data) == 0 {
		return c.config.FeeRate, nil
	}

	if len(data) != 8 {
		return 0, xerrors.New("malformed fee")
	}

	return binary.BigEndian.Uint64(data), nil
}

func (c Contract) setFee(snap store.Snapshot, rate uint64) error {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, rate)

	err := snap.Set(feeKey, buffer)
	if err != nil {
		return xerrors.Errorf("failed to write fee: %v", err)
	}

	return nil
}

func (c Contract) offerIDs(snap store.Readable, listing uint64, page index.Page) ([]uint64, error) {
	values, err := listingOffers(listing).Range(snap, page)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, len(values))
	for i, data := range values {
		if len(data) != 8 {
			return nil, xerrors.New("malformed offer identifier")
		}

		ids[i] = binary.BigEndian.Uint64(data)
	}

	return ids, nil
}

func (c Contract) loadListing(snap store.Readable, id uint64) (Listing, error) {
	var l Listing

	err := load(snap, listings, id, &l)
	if err != nil {
		return l, xerrors.Errorf("listing %d: %w", id, err)
	}

	return l, nil
}

func (c Contract) saveListing(snap store.Snapshot, l Listing) error {
	return save(snap, listings, l.ID, l)
}

func (c Contract) loadOffer(snap store.Readable, id uint64) (Offer, error) {
	var o Offer

	err := load(snap, offers, id, &o)
	if err != nil {
		return o, xerrors.Errorf("offer %d: %w", id, err)
	}

	return o, nil
}

func (c Contract) saveOffer(snap store.Snapshot, o Offer) error {
	return save(snap, offers, o.ID, o)
}

// create appends the record to the list and returns its identifier, which is
// the length of the list after the append.
func create(snap store.Snapshot, list index.List, fn func(id uint64) interface{}) (uint64, error) {
	length, err := list.Len(snap)
	if err != nil {
		return 0, err
	}

	if length == ^uint64(0) {
		return 0, xerrors.Errorf("no identifier left: %w", core.ErrArithmeticOverflow)
	}

	data, err := json.Marshal(fn(length + 1))
	if err != nil {
		return 0, xerrors.Errorf("failed to encode record: %v", err)
	}

	return list.Append(snap, data)
}

func load(snap store.Readable, list index.List, id uint64, v interface{}) error {
	if id == 0 {
		return core.ErrNotFound
	}

	data, err := list.Get(snap, id-1)
	if xerrors.Is(err, core.ErrNotFound) {
		return core.ErrNotFound
	}

	if err != nil {
		return err
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return xerrors.Errorf("failed to decode: %v", err)
	}

	return nil
}

func save(snap store.Snapshot, list index.List, id uint64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	return list.Set(snap, id-1, data)
}

func encodeID(id uint64) []byte {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, id)

	return buffer
}
