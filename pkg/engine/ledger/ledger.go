package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
)

// Ledger tracks per-account refund balances by asset.
// Pull-payment primitive: outbid funds accumulate here and are paid out
// only when the account withdraws. Balances are never negative.
// Uses in-memory cache + pebble persistence for durability.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[asset.Asset]*big.Int
	store    *Store // optional; nil means in-memory only
}

// NewLedger creates an in-memory ledger (no persistence).
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[asset.Asset]*big.Int)}
}

// NewLedgerWithStore creates a ledger backed by a pebble store and loads
// all previously persisted balances into the cache.
func NewLedgerWithStore(dbPath string) (*Ledger, error) {
	store, err := NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger store: %w", err)
	}

	balances, err := store.LoadAllBalances()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	return &Ledger{balances: balances, store: store}, nil
}

// Close closes the underlying pebble database, if any.
func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Credit adds amount to an account's withdrawable balance for an asset.
// Additive: an account outbid several times accumulates across credits.
func (l *Ledger) Credit(account common.Address, a asset.Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("credit amount must be positive: %v", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byAsset, ok := l.balances[account]
	if !ok {
		byAsset = make(map[asset.Asset]*big.Int)
		l.balances[account] = byAsset
	}

	bal, ok := byAsset[a]
	if !ok {
		bal = new(big.Int)
	}
	newBal := new(big.Int).Add(bal, amount)

	if err := l.persist(account, a, newBal); err != nil {
		return err
	}
	byAsset[a] = newBal
	return nil
}

// Pending returns the withdrawable balance for (account, asset).
// Defaults to 0 for unknown accounts or assets. Returns a copy.
func (l *Ledger) Pending(account common.Address, a asset.Asset) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[account][a]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Withdraw zeroes the account's balance for the asset, then invokes pay
// with the owed amount. The balance is zeroed before the outbound
// transfer so a re-entering caller observes nothing left to withdraw.
// A zero balance is a silent no-op (returns 0, nil). If pay reports an
// error the balance is restored and the operation has no effect.
func (l *Ledger) Withdraw(account common.Address, a asset.Asset, pay func(amount *big.Int) error) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[account][a]
	if !ok || bal.Sign() == 0 {
		return new(big.Int), nil
	}

	owed := new(big.Int).Set(bal)

	// Effects before interaction: zero the entry first.
	if err := l.persist(account, a, new(big.Int)); err != nil {
		return nil, err
	}
	l.balances[account][a] = new(big.Int)

	if err := pay(owed); err != nil {
		// Payout failed: restore the balance so no funds are lost.
		if perr := l.persist(account, a, owed); perr != nil {
			return nil, fmt.Errorf("payout failed (%v) and restore failed: %w", err, perr)
		}
		l.balances[account][a] = owed
		return nil, fmt.Errorf("refund payout failed: %w", err)
	}

	return owed, nil
}

// TotalOwed sums all outstanding balances for an asset.
// Used by custody-invariant checks.
func (l *Ledger) TotalOwed(a asset.Asset) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := new(big.Int)
	for _, byAsset := range l.balances {
		if bal, ok := byAsset[a]; ok {
			total.Add(total, bal)
		}
	}
	return total
}

// persist writes a balance through to pebble (assumes lock is held).
func (l *Ledger) persist(account common.Address, a asset.Asset, bal *big.Int) error {
	if l.store == nil {
		return nil
	}
	return l.store.SaveBalance(account, a, bal)
}
