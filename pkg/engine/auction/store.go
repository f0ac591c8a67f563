package auction

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Store provides pebble-based persistence for auction records.
// Thread-safe through the Registry's mutex; not used directly.
type Store struct {
	db *pebble.DB
}

// NewStore opens a pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAuction persists an auction record.
func (s *Store) SaveAuction(a *Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal auction: %w", err)
	}
	if err := s.db.Set(auctionKey(a.Key()), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save auction: %w", err)
	}
	return nil
}

// LoadAuction loads an auction record.
// Returns nil if no record exists for the key.
func (s *Store) LoadAuction(k Key) (*Auction, error) {
	data, closer, err := s.db.Get(auctionKey(k))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	defer closer.Close()

	var a Auction
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction: %w", err)
	}
	return &a, nil
}

// LoadAllAuctions loads every stored auction record.
func (s *Store) LoadAllAuctions() ([]*Auction, error) {
	prefix := auctionPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var out []*Auction
	for iter.First(); iter.Valid(); iter.Next() {
		var a Auction
		if err := json.Unmarshal(iter.Value(), &a); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, &a)
	}
	return out, nil
}
