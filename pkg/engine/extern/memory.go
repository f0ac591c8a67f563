package extern

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// In-memory collaborator implementations. Used by the devnet entrypoint
// and the test suite; the interfaces in extern.go are what production
// integrations implement against a real chain.

// MemoryNFT is an in-memory non-fungible asset contract.
type MemoryNFT struct {
	mu        sync.RWMutex
	owners    map[uint64]common.Address
	approvals map[uint64]common.Address // per-asset approved operator
}

// NewMemoryNFT creates an empty in-memory NFT contract.
func NewMemoryNFT() *MemoryNFT {
	return &MemoryNFT{
		owners:    make(map[uint64]common.Address),
		approvals: make(map[uint64]common.Address),
	}
}

// Mint assigns a fresh asset id to an owner.
func (n *MemoryNFT) Mint(owner common.Address, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.owners[id]; ok {
		return fmt.Errorf("asset %d already minted", id)
	}
	n.owners[id] = owner
	return nil
}

// Approve grants operator transfer rights over one asset.
func (n *MemoryNFT) Approve(owner, operator common.Address, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.owners[id] != owner {
		return fmt.Errorf("approve: %s does not own asset %d", owner.Hex(), id)
	}
	n.approvals[id] = operator
	return nil
}

func (n *MemoryNFT) OwnerOf(id uint64) (common.Address, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	owner, ok := n.owners[id]
	if !ok {
		return common.Address{}, fmt.Errorf("asset %d does not exist", id)
	}
	return owner, nil
}

func (n *MemoryNFT) IsApprovedOrOwner(operator common.Address, id uint64) (bool, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	owner, ok := n.owners[id]
	if !ok {
		return false, fmt.Errorf("asset %d does not exist", id)
	}
	return operator == owner || n.approvals[id] == operator, nil
}

func (n *MemoryNFT) TransferFrom(from, to common.Address, id uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	owner, ok := n.owners[id]
	if !ok {
		return fmt.Errorf("asset %d does not exist", id)
	}
	if owner != from {
		return fmt.Errorf("transfer: %s does not own asset %d", from.Hex(), id)
	}
	n.owners[id] = to
	delete(n.approvals, id) // approval does not survive a transfer
	return nil
}

var _ AssetContract = (*MemoryNFT)(nil)

// MemoryToken is an in-memory fungible token.
// With FailTransfers set, TransferFrom reports false without moving
// funds, mirroring tokens that signal failure instead of reverting.
type MemoryToken struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int

	// FailTransfers forces every TransferFrom to report ok=false.
	FailTransfers bool
}

// NewMemoryToken creates an empty in-memory token.
func NewMemoryToken() *MemoryToken {
	return &MemoryToken{balances: make(map[common.Address]*big.Int)}
}

// Mint credits an account out of thin air (devnet only).
func (t *MemoryToken) Mint(account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[account]
	if !ok {
		bal = new(big.Int)
	}
	t.balances[account] = new(big.Int).Add(bal, amount)
}

func (t *MemoryToken) TransferFrom(from, to common.Address, amount *big.Int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailTransfers {
		return false, nil
	}
	if amount == nil || amount.Sign() < 0 {
		return false, fmt.Errorf("invalid transfer amount: %v", amount)
	}

	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return false, nil // insufficient balance reports failure, not error
	}

	t.balances[from] = new(big.Int).Sub(bal, amount)
	toBal, ok := t.balances[to]
	if !ok {
		toBal = new(big.Int)
	}
	t.balances[to] = new(big.Int).Add(toBal, amount)
	return true, nil
}

func (t *MemoryToken) BalanceOf(account common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

var _ TokenContract = (*MemoryToken)(nil)

// MemoryBank is an in-memory native-currency ledger.
type MemoryBank struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

// NewMemoryBank creates an empty in-memory bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{balances: make(map[common.Address]*big.Int)}
}

// Mint credits an account out of thin air (devnet only).
func (b *MemoryBank) Mint(account common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.balances[account]
	if !ok {
		bal = new(big.Int)
	}
	b.balances[account] = new(big.Int).Add(bal, amount)
}

func (b *MemoryBank) Transfer(from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount: %v", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	bal, ok := b.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient native balance: %s has %v, needs %v", from.Hex(), bal, amount)
	}

	b.balances[from] = new(big.Int).Sub(bal, amount)
	toBal, ok := b.balances[to]
	if !ok {
		toBal = new(big.Int)
	}
	b.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}

func (b *MemoryBank) BalanceOf(account common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

var _ Bank = (*MemoryBank)(nil)

// Registry resolves contract addresses to in-memory implementations.
type Registry struct {
	mu     sync.RWMutex
	assets map[common.Address]AssetContract
	tokens map[common.Address]TokenContract
}

// NewRegistry creates an empty contract registry.
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[common.Address]AssetContract),
		tokens: make(map[common.Address]TokenContract),
	}
}

// RegisterAsset binds an address to an asset contract.
func (r *Registry) RegisterAsset(addr common.Address, c AssetContract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[addr] = c
}

// RegisterToken binds an address to a token contract.
func (r *Registry) RegisterToken(addr common.Address, c TokenContract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[addr] = c
}

func (r *Registry) AssetContract(addr common.Address) (AssetContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.assets[addr]
	if !ok {
		return nil, fmt.Errorf("no asset contract at %s", addr.Hex())
	}
	return c, nil
}

func (r *Registry) TokenContract(addr common.Address) (TokenContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("no token contract at %s", addr.Hex())
	}
	return c, nil
}

var _ ContractResolver = (*Registry)(nil)

// StaticFeed is a fixed-price feed, the in-memory stand-in for an
// aggregator (price scaled by 10^Decimals).
type StaticFeed struct {
	Price    *big.Int
	Decimals uint8
}

// NewStaticFeed creates a feed answering with a whole-unit price at the
// given decimal scale, e.g. NewStaticFeed(3000, 8) = 3000 USD at 8 dp.
func NewStaticFeed(wholePrice int64, decimals uint8) *StaticFeed {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return &StaticFeed{
		Price:    new(big.Int).Mul(big.NewInt(wholePrice), scale),
		Decimals: decimals,
	}
}

func (f *StaticFeed) LatestPrice() (*big.Int, uint8, error) {
	return new(big.Int).Set(f.Price), f.Decimals, nil
}
