// Package access defines the roles and the operations of the access control
// policy.
//
// A single owner principal is set at construction. The owner can delegate
// administrative operations to admins, and some operations are also granted to
// the owner of the resource they target, like the seller of an auction.
package access

import (
	"sort"
	"unicode"

	"go.dedis.ch/custody/core/store"
)

// MaxPrincipalLen is the maximum length of a principal identifier.
const MaxPrincipalLen = 128

// Principal is the identity of a caller.
type Principal string

// Valid returns true if the principal is a non-empty printable identifier.
func (p Principal) Valid() bool {
	if len(p) == 0 || len(p) > MaxPrincipalLen {
		return false
	}

	for _, r := range p {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}

// String implements fmt.Stringer.
func (p Principal) String() string {
	return string(p)
}

// Role is a role a principal can hold for an operation.
type Role string

const (
	// RoleOwner is the single owner of the ledger.
	RoleOwner Role = "owner"

	// RoleAdmin is a principal the owner delegated administration to.
	RoleAdmin Role = "admin"

	// RoleResource is the principal owning the resource targeted by the
	// operation, for instance the seller of a listing.
	RoleResource Role = "resource"
)

// Operation is a privileged operation.
type Operation string

const (
	// OpFreeze freezes or unfreezes an account.
	OpFreeze Operation = "freeze"
	// OpPause pauses or unpauses the ledger.
	OpPause Operation = "pause"
	// OpUpdateFee updates the marketplace fee.
	OpUpdateFee Operation = "update-fee"
	// OpTransferOwnership transfers the ownership to a new principal.
	OpTransferOwnership Operation = "transfer-ownership"
	// OpGrantAdmin adds an admin.
	OpGrantAdmin Operation = "grant-admin"
	// OpRevokeAdmin removes an admin.
	OpRevokeAdmin Operation = "revoke-admin"
	// OpEndAuction settles an auction.
	OpEndAuction Operation = "end-auction"
	// OpCancelListing cancels a listing.
	OpCancelListing Operation = "cancel-listing"
	// OpAcceptOffer accepts an offer on a listing.
	OpAcceptOffer Operation = "accept-offer"
	// OpManageSale creates the tiers, schedules, updates or cancels the token
	// sale.
	OpManageSale Operation = "manage-sale"
	// OpDistributeTokens releases the purchases of the token sale on behalf
	// of the buyers.
	OpDistributeTokens Operation = "distribute-tokens"
)

// Rules maps every privileged operation to the roles allowed to perform it.
var Rules = map[Operation][]Role{
	OpFreeze:            {RoleOwner, RoleAdmin},
	OpPause:             {RoleOwner, RoleAdmin},
	OpUpdateFee:         {RoleOwner},
	OpTransferOwnership: {RoleOwner},
	OpGrantAdmin:        {RoleOwner},
	OpRevokeAdmin:       {RoleOwner},
	OpEndAuction:        {RoleResource, RoleOwner, RoleAdmin},
	OpCancelListing:     {RoleResource, RoleOwner, RoleAdmin},
	OpAcceptOffer:       {RoleResource},
	OpManageSale:        {RoleOwner},
	OpDistributeTokens:  {RoleOwner, RoleAdmin},
}

// State is the policy record. It replaces the global owner and paused flags:
// it is created once at construction and only changed through the gated
// setters of the service.
type State struct {
	Owner  Principal   `json:"owner"`
	Admins []Principal `json:"admins"`
	Paused bool        `json:"paused"`
}

// IsAdmin returns true if the principal is a delegated admin.
func (s State) IsAdmin(p Principal) bool {
	i := sort.Search(len(s.Admins), func(i int) bool { return s.Admins[i] >= p })

	return i < len(s.Admins) && s.Admins[i] == p
}

// Roles returns the roles the principal holds. The resource owners are the
// principals owning the resource targeted by an operation.
func (s State) Roles(p Principal, resourceOwners ...Principal) []Role {
	roles := []Role{}

	for _, owner := range resourceOwners {
		if owner == p {
			roles = append(roles, RoleResource)
			break
		}
	}

	if p == s.Owner {
		roles = append(roles, RoleOwner)
	}

	if s.IsAdmin(p) {
		roles = append(roles, RoleAdmin)
	}

	return roles
}

// Service is the access control policy.
type Service interface {
	// State returns the policy record.
	State(snap store.Readable) (State, error)

	// RequireRole returns nil if the caller holds one of the roles required by
	// the operation, otherwise an unauthorized error.
	RequireRole(snap store.Readable, op Operation, caller Principal,
		resourceOwners ...Principal) error

	// RequireActive returns an error if the ledger is paused.
	RequireActive(snap store.Readable) error
}
