// Package roles implements the access control policy on top of a store. The
// policy record lives in its own namespace and is read on every privileged
// operation, so there is no process-wide owner or paused flag.
package roles

import (
	"encoding/json"
	"sort"

	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"go.dedis.ch/custody/core/store"
	"go.dedis.ch/custody/core/store/prefixed"
	"golang.org/x/xerrors"
)

const (
	// Prefix is the namespace of the policy in the store.
	Prefix = "access"

	// MaxAdmins is the maximum number of delegated admins.
	MaxAdmins = 32
)

var stateKey = []byte("policy")

// Policy is the role-based access control policy.
//
// - implements access.Service
type Policy struct{}

// NewPolicy returns a new policy.
func NewPolicy() Policy {
	return Policy{}
}

// Init writes the initial policy record. It fails if the policy is already
// initialized.
func (p Policy) Init(snap store.Snapshot, owner access.Principal) error {
	if !owner.Valid() {
		return xerrors.Errorf("invalid owner '%s': %w", owner, core.ErrInvalidInput)
	}

	_, err := p.State(snap)
	if err == nil {
		return xerrors.Errorf("policy already initialized: %w", core.ErrAlreadyFinalized)
	}

	if !xerrors.Is(err, core.ErrNotFound) {
		return err
	}

	return p.write(snap, access.State{Owner: owner, Admins: []access.Principal{}})
}

// State implements access.Service. It returns the policy record.
func (p Policy) State(snap store.Readable) (access.State, error) {
	var state access.State

	data, err := prefixed.NewReadable(Prefix, snap).Get(stateKey)
	if err != nil {
		return state, xerrors.Errorf("failed to read policy: %v", err)
	}

	if data == nil {
		return state, xerrors.Errorf("policy not initialized: %w", core.ErrNotFound)
	}

	err = json.Unmarshal(data, &state)
	if err != nil {
		return state, xerrors.Errorf("failed to decode policy: %v", err)
	}

	return state, nil
}

// RequireRole implements access.Service. The caller must hold at least one of
// the roles of the operation.
func (p Policy) RequireRole(snap store.Readable, op access.Operation,
	caller access.Principal, resourceOwners ...access.Principal) error {

	allowed, found := access.Rules[op]
	if !found {
		return xerrors.Errorf("unknown operation '%s': %w", op, core.ErrInvalidInput)
	}

	state, err := p.State(snap)
	if err != nil {
		return err
	}

	for _, role := range state.Roles(caller, resourceOwners...) {
		for _, a := range allowed {
			if role == a {
				return nil
			}
		}
	}

	return xerrors.Errorf("'%s' is not allowed to %s: %w", caller, op, core.ErrUnauthorized)
}

// RequireActive implements access.Service. It returns an error if the ledger is
// paused.
func (p Policy) RequireActive(snap store.Readable) error {
	state, err := p.State(snap)
	if err != nil {
		return err
	}

	if state.Paused {
		return xerrors.Errorf("ledger is paused: %w", core.ErrUnauthorized)
	}

	return nil
}

// TransferOwnership replaces the owner. Only the owner can do it and the new
// owner must be a valid principal.
func (p Policy) TransferOwnership(snap store.Snapshot, caller, owner access.Principal) error {
	if !owner.Valid() {
		return xerrors.Errorf("invalid owner '%s': %w", owner, core.ErrInvalidInput)
	}

	err := p.RequireRole(snap, access.OpTransferOwnership, caller)
	if err != nil {
		return err
	}

	state, err := p.State(snap)
	if err != nil {
		return err
	}

	state.Owner = owner

	custody.Logger.Info().Str("from", caller.String()).Str("to", owner.String()).
		Msg("ownership transferred")

	return p.write(snap, state)
}

// GrantAdmin adds the principal to the admins. It is idempotent.
func (p Policy) GrantAdmin(snap store.Snapshot, caller, admin access.Principal) error {
	if !admin.Valid() {
		return xerrors.Errorf("invalid admin '%s': %w", admin, core.ErrInvalidInput)
	}

	err := p.RequireRole(snap, access.OpGrantAdmin, caller)
	if err != nil {
		return err
	}

	state, err := p.State(snap)
	if err != nil {
		return err
	}

	if state.IsAdmin(admin) {
		return nil
	}

	if len(state.Admins) >= MaxAdmins {
		return xerrors.Errorf("%d admins: %w", len(state.Admins), core.ErrLimitExceeded)
	}

	state.Admins = append(state.Admins, admin)
	sort.Slice(state.Admins, func(i, j int) bool { return state.Admins[i] < state.Admins[j] })

	return p.write(snap, state)
}

// RevokeAdmin removes the principal from the admins. It is idempotent.
func (p Policy) RevokeAdmin(snap store.Snapshot, caller, admin access.Principal) error {
	err := p.RequireRole(snap, access.OpRevokeAdmin, caller)
	if err != nil {
		return err
	}

	state, err := p.State(snap)
	if err != nil {
		return err
	}

	admins := state.Admins[:0]
	for _, a := range state.Admins {
		if a != admin {
			admins = append(admins, a)
		}
	}

	state.Admins = admins

	return p.write(snap, state)
}

// SetPaused pauses or unpauses the ledger. It returns true if the flag
// changed.
func (p Policy) SetPaused(snap store.Snapshot, caller access.Principal, paused bool) (bool, error) {
	err := p.RequireRole(snap, access.OpPause, caller)
	if err != nil {
		return false, err
	}

	state, err := p.State(snap)
	if err != nil {
		return false, err
	}

	if state.Paused == paused {
		return false, nil
	}

	state.Paused = paused

	return true, p.write(snap, state)
}

func (p Policy) write(snap store.Snapshot, state access.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return xerrors.Errorf("failed to encode policy: %v", err)
	}

	err = prefixed.NewSnapshot(Prefix, snap).Set(stateKey, data)
	if err != nil {
		return xerrors.Errorf("failed to write policy: %v", err)
	}

	return nil
}
