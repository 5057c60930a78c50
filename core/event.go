package core

import "fmt"

// EventType is the kind of a ledger event.
type EventType string

const (
	// EventDeposit is emitted when value is credited to an account.
	EventDeposit EventType = "Deposit"
	// EventWithdrawal is emitted when value leaves an account.
	EventWithdrawal EventType = "Withdrawal"
	// EventFrozen is emitted when an account is frozen or unfrozen.
	EventFrozen EventType = "Frozen"
	// EventPaused is emitted when the ledger is paused or unpaused.
	EventPaused EventType = "Paused"
	// EventRoleChanged is emitted on ownership transfer and admin changes.
	EventRoleChanged EventType = "RoleChanged"

	// EventAuctionCreated is emitted when an auction opens.
	EventAuctionCreated EventType = "AuctionCreated"
	// EventBidPlaced is emitted when a bid becomes the highest bid.
	EventBidPlaced EventType = "BidPlaced"
	// EventBidRefunded is emitted when an outbid bidder is paid back.
	EventBidRefunded EventType = "BidRefunded"
	// EventAuctionEnded is emitted when an auction is settled.
	EventAuctionEnded EventType = "AuctionEnded"

	// EventListingCreated is emitted when a listing becomes active.
	EventListingCreated EventType = "ListingCreated"
	// EventListingSold is emitted when a listing is sold.
	EventListingSold EventType = "ListingSold"
	// EventListingCancelled is emitted when a listing is cancelled.
	EventListingCancelled EventType = "ListingCancelled"
	// EventListingExpired is emitted when a listing is marked as expired.
	EventListingExpired EventType = "ListingExpired"
	// EventOfferMade is emitted when an offer is escrowed.
	EventOfferMade EventType = "OfferMade"
	// EventOfferWithdrawn is emitted when an offer is refunded.
	EventOfferWithdrawn EventType = "OfferWithdrawn"
	// EventOfferAccepted is emitted when the seller accepts an offer.
	EventOfferAccepted EventType = "OfferAccepted"

	// EventTierCreated is emitted when a tier is added to the token sale.
	EventTierCreated EventType = "TierCreated"
	// EventSaleStarted is emitted when the token sale is scheduled.
	EventSaleStarted EventType = "SaleStarted"
	// EventSaleUpdated is emitted when the times or the wallet of the sale
	// change.
	EventSaleUpdated EventType = "SaleUpdated"
	// EventSaleCancelled is emitted when the sale is cancelled.
	EventSaleCancelled EventType = "SaleCancelled"
	// EventTokensPurchased is emitted when a purchase is escrowed.
	EventTokensPurchased EventType = "TokensPurchased"
	// EventTokensClaimed is emitted when the tokens of a buyer are released.
	EventTokensClaimed EventType = "TokensClaimed"
	// EventPurchaseRefunded is emitted when a buyer of a cancelled sale is
	// paid back.
	EventPurchaseRefunded EventType = "PurchaseRefunded"
	// EventProceedsCredited is emitted when the proceeds of a sale could not
	// be delivered to the wallet and are credited to its balance instead.
	EventProceedsCredited EventType = "ProceedsCredited"

	// EventRefundFailed is emitted when a refund could not be delivered and is
	// kept for a later retry.
	EventRefundFailed EventType = "RefundFailed"
	// EventFeeUpdated is emitted when the marketplace fee changes.
	EventFeeUpdated EventType = "FeeUpdated"
)

// Event is the record emitted by a successful state-mutating operation.
type Event struct {
	Type      EventType `json:"eventType"`
	Subject   string    `json:"subjectId"`
	Principal string    `json:"principal"`
	Amount    uint64    `json:"amount"`
	Timestamp uint64    `json:"timestamp"`
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return fmt.Sprintf("%s{subject=%s principal=%s amount=%d time=%d}",
		e.Type, e.Subject, e.Principal, e.Amount, e.Timestamp)
}
