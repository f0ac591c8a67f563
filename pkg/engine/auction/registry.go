package auction

import (
	"fmt"
	"sync"
)

// Registry manages auction records in a thread-safe manner.
// Enforces the one-unsettled-auction-per-key invariant; a settled record
// may be superseded by a new auction for the same asset.
// Uses in-memory cache + pebble persistence for durability.
type Registry struct {
	mu       sync.RWMutex
	auctions map[Key]*Auction
	store    *Store // optional; nil means in-memory only
}

// NewRegistry creates an in-memory registry (no persistence).
func NewRegistry() *Registry {
	return &Registry{auctions: make(map[Key]*Auction)}
}

// NewRegistryWithStore creates a registry backed by a pebble store and
// loads all previously persisted auctions into the cache.
func NewRegistryWithStore(dbPath string) (*Registry, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction store: %w", err)
	}

	all, err := store.LoadAllAuctions()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load auctions: %w", err)
	}

	auctions := make(map[Key]*Auction, len(all))
	for _, a := range all {
		auctions[a.Key()] = a
	}

	return &Registry{auctions: auctions, store: store}, nil
}

// Close closes the underlying pebble database, if any.
func (r *Registry) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Put stores a new auction under its key.
// Fails with ErrAuctionExists while an unsettled record holds the key.
func (r *Registry) Put(a *Auction) error {
	if a == nil {
		return fmt.Errorf("cannot register nil auction")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.auctions[a.Key()]; ok && !existing.Settled {
		return fmt.Errorf("auction %s: %w", a.Key(), ErrAuctionExists)
	}

	if err := r.persist(a); err != nil {
		return err
	}
	r.auctions[a.Key()] = a
	return nil
}

// Get retrieves an auction by key.
// Returns ErrAuctionNotFound if no record exists.
func (r *Registry) Get(k Key) (*Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[k]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", k, ErrAuctionNotFound)
	}
	return a, nil
}

// Update persists a mutated auction record.
// The record must already be registered.
func (r *Registry) Update(a *Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.Key()]; !ok {
		return fmt.Errorf("auction %s: %w", a.Key(), ErrAuctionNotFound)
	}
	if err := r.persist(a); err != nil {
		return err
	}
	r.auctions[a.Key()] = a
	return nil
}

// persist writes the record through to pebble (assumes lock is held).
func (r *Registry) persist(a *Auction) error {
	if r.store == nil {
		return nil
	}
	return r.store.SaveAuction(a)
}

// List returns all auction records, settled included.
// Returns a snapshot slice to avoid holding the lock.
func (r *Registry) List() []*Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		out = append(out, a)
	}
	return out
}

// ListLive returns all unsettled auctions.
func (r *Registry) ListLive() []*Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Auction, 0)
	for _, a := range r.auctions {
		if !a.Settled {
			out = append(out, a)
		}
	}
	return out
}

// Count returns the total number of records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.auctions)
}
