package engine

import (
	"go.dedis.ch/custody/contracts/auction"
	"go.dedis.ch/custody/contracts/market"
	"go.dedis.ch/custody/contracts/sale"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/index"
	"go.dedis.ch/custody/core/ledger"
)

// Account returns the account of the principal.
func (e *Engine) Account(id access.Principal) (ledger.Account, error) {
	return e.vault.GetAccount(id)
}

// Custody returns the total value held by the ledger.
func (e *Engine) Custody() (uint64, error) {
	return e.vault.Custody()
}

// Policy returns the record of the access control policy.
func (e *Engine) Policy() (access.State, error) {
	return e.access.GetState()
}

// Auction returns the auction.
func (e *Engine) Auction(id uint64) (auction.Auction, error) {
	return e.auction.GetAuction(id)
}

// Auctions returns a page of the auctions.
func (e *Engine) Auctions(page index.Page) ([]auction.Auction, error) {
	return e.auction.List(page)
}

// Bids returns a page of the bids of the auction.
func (e *Engine) Bids(id uint64, page index.Page) ([]auction.Bid, error) {
	return e.auction.Bids(id, page)
}

// Participants returns a page of the bidders of the auction.
func (e *Engine) Participants(id uint64, page index.Page) ([]access.Principal, error) {
	return e.auction.Participants(id, page)
}

// Listing returns the listing.
func (e *Engine) Listing(id uint64) (market.Listing, error) {
	return e.market.GetListing(id)
}

// Listings returns a page of the listings.
func (e *Engine) Listings(page index.Page) ([]market.Listing, error) {
	return e.market.Listings(page)
}

// Offer returns the offer.
func (e *Engine) Offer(id uint64) (market.Offer, error) {
	return e.market.GetOffer(id)
}

// Offers returns a page of the offers of the listing.
func (e *Engine) Offers(listing uint64, page index.Page) ([]market.Offer, error) {
	return e.market.Offers(listing, page)
}

// Fee returns the current fee rate of the marketplace in basis points.
func (e *Engine) Fee() (uint64, error) {
	return e.market.Fee()
}

// Sale returns the record of the token sale.
func (e *Engine) Sale() (sale.Sale, error) {
	return e.sale.GetSale()
}

// Tiers returns a page of the tiers of the token sale.
func (e *Engine) Tiers(page index.Page) ([]sale.Tier, error) {
	return e.sale.Tiers(page)
}

// Purchases returns a page of the purchases of the token sale.
func (e *Engine) Purchases(page index.Page) ([]sale.Purchase, error) {
	return e.sale.Purchases(page)
}

// Holding returns the sum of the purchases of the buyer.
func (e *Engine) Holding(buyer access.Principal) (sale.Holding, error) {
	return e.sale.GetHolding(buyer)
}
