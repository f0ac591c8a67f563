package engine

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
	"github.com/minjekim/auctionhouse/pkg/engine/extern"
	"github.com/minjekim/auctionhouse/pkg/engine/ledger"
	"github.com/minjekim/auctionhouse/pkg/engine/oracle"
	"github.com/minjekim/auctionhouse/pkg/util"
)

// Engine is the auction engine: lifecycle, bidding, refund accounting and
// settlement over external asset/token contracts and price feeds.
//
// Every public operation takes the engine mutex for its full duration, so
// state transitions are applied one at a time and each either completes
// all of its effects or none. External transfers are the only calls made
// while an operation is in flight; the ordering around them is part of
// the engine's observable behavior and must not be rearranged.
type Engine struct {
	mu sync.Mutex

	// addr is the engine's own custody account: attached native value and
	// pulled token amounts are held here until refund or settlement.
	addr common.Address

	admin       common.Address
	initialized bool

	auctions  *auction.Registry
	ledger    *ledger.Ledger
	feeds     *oracle.Registry
	contracts extern.ContractResolver
	bank      extern.Bank
	clock     util.Clock
	log       *zap.SugaredLogger

	// OnBid and OnSettle fire after the corresponding state transition is
	// persisted. Called with the mutex held; keep handlers non-blocking.
	OnBid    func(BidEvent)
	OnSettle func(SettleEvent)
}

// Config wires an Engine's collaborators.
type Config struct {
	Address   common.Address
	Auctions  *auction.Registry
	Ledger    *ledger.Ledger
	Feeds     *oracle.Registry
	Contracts extern.ContractResolver
	Bank      extern.Bank
	Clock     util.Clock
	Logger    *zap.SugaredLogger
}

// New creates an engine. Admin is unset until Initialize.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{
		addr:      cfg.Address,
		auctions:  cfg.Auctions,
		ledger:    cfg.Ledger,
		feeds:     cfg.Feeds,
		contracts: cfg.Contracts,
		bank:      cfg.Bank,
		clock:     clock,
		log:       log,
	}
}

// Address returns the engine's custody account.
func (e *Engine) Address() common.Address {
	return e.addr
}

// Initialize sets the caller as admin. One-time: a second call fails.
func (e *Engine) Initialize(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return ErrAlreadyInitialized
	}
	if caller == (common.Address{}) {
		return fmt.Errorf("initialize: empty caller")
	}
	e.admin = caller
	e.initialized = true
	e.log.Infow("engine_initialized", "admin", caller.Hex())
	return nil
}

// Admin returns the current admin account.
func (e *Engine) Admin() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admin
}

// TransferAdmin hands the admin role to another account. Admin-only.
func (e *Engine) TransferAdmin(caller, newAdmin common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if newAdmin == (common.Address{}) {
		return fmt.Errorf("transfer admin: empty account")
	}
	e.admin = newAdmin
	e.log.Infow("admin_transferred", "from", caller.Hex(), "to", newAdmin.Hex())
	return nil
}

// AuthorizeUpgrade is the admin-only gate invoked by the upgrade
// mechanism. It performs no upgrade itself; it only authorizes one.
func (e *Engine) AuthorizeUpgrade(caller, newImplementation common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.log.Infow("upgrade_authorized", "admin", caller.Hex(), "implementation", newImplementation.Hex())
	return nil
}

// SetFeed registers or overwrites the price feed for an asset. Admin-only.
func (e *Engine) SetFeed(caller common.Address, a asset.Asset, feed oracle.PriceFeed) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.feeds.SetFeed(a, feed); err != nil {
		return err
	}
	e.log.Infow("feed_set", "asset", a.String())
	return nil
}

// requireAdmin checks the caller against the admin (assumes lock is held).
func (e *Engine) requireAdmin(caller common.Address) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if caller != e.admin {
		return fmt.Errorf("caller %s: %w", caller.Hex(), ErrNotAuthorized)
	}
	return nil
}

// CreateParams are the seller-supplied auction parameters.
type CreateParams struct {
	AssetContract common.Address
	AssetID       uint64
	StartPrice    *big.Int
	BiddingAsset  asset.Asset
	StartTime     int64 // unix seconds
	EndTime       int64
}

// CreateAuction validates ownership, approval and parameters, then
// registers a fresh auction. No funds move at creation.
func (e *Engine) CreateAuction(seller common.Address, p CreateParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	nft, err := e.contracts.AssetContract(p.AssetContract)
	if err != nil {
		return fmt.Errorf("create auction: %w", err)
	}

	owner, err := nft.OwnerOf(p.AssetID)
	if err != nil {
		return fmt.Errorf("create auction: %w", err)
	}
	if owner != seller {
		return fmt.Errorf("create auction %s/%d: %w", p.AssetContract.Hex(), p.AssetID, auction.ErrNotOwner)
	}

	approved, err := nft.IsApprovedOrOwner(e.addr, p.AssetID)
	if err != nil {
		return fmt.Errorf("create auction: %w", err)
	}
	if !approved {
		return fmt.Errorf("create auction %s/%d: %w", p.AssetContract.Hex(), p.AssetID, auction.ErrNotApproved)
	}

	if p.StartPrice == nil || p.StartPrice.Sign() <= 0 {
		return auction.ErrInvalidStartPrice
	}
	now := e.clock.Now().Unix()
	if p.StartTime < now {
		return auction.ErrInvalidStartTime
	}
	if p.EndTime <= p.StartTime {
		return auction.ErrInvalidTimeRange
	}

	a := &auction.Auction{
		Seller:        seller,
		AssetContract: p.AssetContract,
		AssetID:       p.AssetID,
		StartPrice:    new(big.Int).Set(p.StartPrice),
		BiddingAsset:  p.BiddingAsset,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		HighestBid:    new(big.Int),
	}
	if err := e.auctions.Put(a); err != nil {
		return err
	}

	e.log.Infow("auction_created",
		"auction", a.Key().String(),
		"seller", seller.Hex(),
		"start_price", p.StartPrice.String(),
		"bidding_asset", p.BiddingAsset.String(),
		"start", p.StartTime,
		"end", p.EndTime)
	return nil
}

// GetAuction returns a copy of the auction record for a key.
func (e *Engine) GetAuction(contract common.Address, id uint64) (*auction.Auction, error) {
	a, err := e.auctions.Get(auction.Key{Contract: contract, ID: id})
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// ListAuctions returns copies of all auction records.
func (e *Engine) ListAuctions() []*auction.Auction {
	all := e.auctions.List()
	out := make([]*auction.Auction, len(all))
	for i, a := range all {
		out[i] = a.Clone()
	}
	return out
}

// PendingRefund returns the withdrawable balance for (account, asset).
func (e *Engine) PendingRefund(account common.Address, a asset.Asset) *big.Int {
	return e.ledger.Pending(account, a)
}

// Refund withdraws the caller's full refund balance for an asset.
// The ledger entry is zeroed before the outbound transfer; a zero balance
// is a no-op. Returns the amount paid out.
func (e *Engine) Refund(caller common.Address, a asset.Asset) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	paid, err := e.ledger.Withdraw(caller, a, func(amount *big.Int) error {
		return e.payOut(caller, a, amount)
	})
	if err != nil {
		return nil, err
	}
	if paid.Sign() > 0 {
		e.log.Infow("refund_withdrawn", "account", caller.Hex(), "asset", a.String(), "amount", paid.String())
	}
	return paid, nil
}

// payOut moves funds from engine custody to an account in the given
// asset (assumes lock is held).
func (e *Engine) payOut(to common.Address, a asset.Asset, amount *big.Int) error {
	if a.IsNative() {
		return e.bank.Transfer(e.addr, to, amount)
	}
	tok, err := e.contracts.TokenContract(a.Address())
	if err != nil {
		return err
	}
	ok, err := tok.TransferFrom(e.addr, to, amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pay out %s to %s: %w", a, to.Hex(), ErrTransferFailed)
	}
	return nil
}

// liveAuction fetches the auction for bidding: it must exist, be
// unsettled, and the window must contain now (assumes lock is held).
func (e *Engine) liveAuction(contract common.Address, id uint64, now int64) (*auction.Auction, error) {
	a, err := e.auctions.Get(auction.Key{Contract: contract, ID: id})
	if err != nil {
		return nil, err
	}
	if a.Settled {
		return nil, fmt.Errorf("auction %s: %w", a.Key(), auction.ErrAlreadySettled)
	}
	if now < a.StartTime {
		return nil, fmt.Errorf("auction %s: %w", a.Key(), auction.ErrAuctionNotStarted)
	}
	if now > a.EndTime {
		return nil, fmt.Errorf("auction %s: %w", a.Key(), auction.ErrAuctionEnded)
	}
	return a, nil
}

// emitBid fires the bid hook (assumes lock is held).
func (e *Engine) emitBid(ev BidEvent) {
	e.log.Infow("bid_accepted",
		"auction", ev.Auction.String(),
		"bidder", ev.Bidder.Hex(),
		"amount", ev.Amount.String(),
		"asset", ev.Asset.String(),
		"mode", ev.Mode)
	if e.OnBid != nil {
		e.OnBid(ev)
	}
}
