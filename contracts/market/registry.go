package market

import (
	"context"
	"sync"

	"go.dedis.ch/custody/core"
	"go.dedis.ch/custody/core/access"
	"golang.org/x/xerrors"
)

// Registry is an in-memory asset registry.
//
// - implements market.AssetRegistry
type Registry struct {
	sync.Mutex

	owners map[string]access.Principal
}

// NewRegistry returns a registry that knows the assets of the map, indexed by
// reference.
func NewRegistry(owners map[string]access.Principal) *Registry {
	r := &Registry{
		owners: make(map[string]access.Principal, len(owners)),
	}

	for asset, owner := range owners {
		r.owners[asset] = owner
	}

	return r
}

// Register sets the owner of the asset.
func (r *Registry) Register(asset string, owner access.Principal) {
	r.Lock()
	r.owners[asset] = owner
	r.Unlock()
}

// OwnerOf implements market.AssetRegistry.
func (r *Registry) OwnerOf(ctx context.Context, asset string) (access.Principal, error) {
	r.Lock()
	defer r.Unlock()

	owner, found := r.owners[asset]
	if !found {
		return "", xerrors.Errorf("unknown asset '%s': %w", asset, core.ErrNotFound)
	}

	return owner, nil
}

// Transfer implements market.AssetRegistry. It fails if the asset does not
// belong to the sender.
func (r *Registry) Transfer(ctx context.Context, asset string, from, to access.Principal) error {
	r.Lock()
	defer r.Unlock()

	owner, found := r.owners[asset]
	if !found {
		return xerrors.Errorf("unknown asset '%s'", asset)
	}

	if owner != from {
		return xerrors.Errorf("asset '%s' does not belong to '%s'", asset, from)
	}

	r.owners[asset] = to

	return nil
}
