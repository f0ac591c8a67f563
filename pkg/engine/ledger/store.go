package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
)

// Pebble key schema.
// One record per (account, asset) balance under "ref:".
// Format: "ref:{account}:{asset}" — both hex, so keys parse back cleanly.

const prefixRefund = "ref:"

func balanceKey(account common.Address, a asset.Asset) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixRefund, account.Hex(), a.Address().Hex()))
}

func refundPrefix() []byte {
	return []byte(prefixRefund)
}

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// parseBalanceKey extracts (account, asset) from a stored key.
func parseBalanceKey(key []byte) (common.Address, asset.Asset, error) {
	rest := strings.TrimPrefix(string(key), prefixRefund)
	parts := strings.Split(rest, ":")
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return common.Address{}, asset.Asset{}, fmt.Errorf("invalid refund key: %q", key)
	}
	return common.HexToAddress(parts[0]), asset.Token(common.HexToAddress(parts[1])), nil
}

// Store provides pebble-based persistence for refund balances.
// Thread-safe through the Ledger's mutex; not used directly.
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

// SaveBalance persists a single (account, asset) balance.
func (s *Store) SaveBalance(account common.Address, a asset.Asset, bal *big.Int) error {
	data, err := json.Marshal(bal)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}
	if err := s.db.Set(balanceKey(account, a), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadAllBalances loads every stored balance keyed by account and asset.
func (s *Store) LoadAllBalances() (map[common.Address]map[asset.Asset]*big.Int, error) {
	prefix := refundPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	balances := make(map[common.Address]map[asset.Asset]*big.Int)
	for iter.First(); iter.Valid(); iter.Next() {
		account, a, err := parseBalanceKey(iter.Key())
		if err != nil {
			continue // Skip invalid entries
		}
		bal := new(big.Int)
		if err := json.Unmarshal(iter.Value(), bal); err != nil {
			continue
		}
		if bal.Sign() == 0 {
			continue // Fully withdrawn entries carry no information
		}
		if balances[account] == nil {
			balances[account] = make(map[asset.Asset]*big.Int)
		}
		balances[account][a] = bal
	}
	return balances, nil
}
