package auction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
)

// Creation and lifecycle failures. Callers branch with errors.Is.
var (
	ErrNotOwner          = errors.New("seller is not the asset owner")
	ErrNotApproved       = errors.New("engine not approved to transfer the asset")
	ErrInvalidStartPrice = errors.New("start price must be greater than 0")
	ErrInvalidStartTime  = errors.New("start time is in the past")
	ErrInvalidTimeRange  = errors.New("end time must be after start time")
	ErrAuctionExists     = errors.New("unsettled auction already exists")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrAlreadySettled    = errors.New("auction already settled")
	ErrAuctionNotStarted = errors.New("auction has not started")
	ErrAuctionEnded      = errors.New("auction has ended")
	ErrAuctionNotEnded   = errors.New("auction has not ended")
)

// Key identifies an auction by the asset it sells.
// At most one unsettled auction exists per key.
type Key struct {
	Contract common.Address `json:"contract"`
	ID       uint64         `json:"id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Contract.Hex(), k.ID)
}

// Auction is the state of a single-asset auction.
// HighestBid is denominated in BiddingAsset; BiddingAsset can change when
// an oracle-normalized bid in a different asset wins the top spot.
type Auction struct {
	Seller        common.Address `json:"seller"`
	AssetContract common.Address `json:"assetContract"`
	AssetID       uint64         `json:"assetId"`

	StartPrice   *big.Int    `json:"startPrice"` // denominated in the initial BiddingAsset
	BiddingAsset asset.Asset `json:"biddingAsset"`

	// Unix seconds. Bids are accepted while StartTime <= now <= EndTime.
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`

	HighestBid    *big.Int       `json:"highestBid"`
	HighestBidder common.Address `json:"highestBidder"`

	Settled bool `json:"settled"`
}

// Key returns the registry key for this auction.
func (a *Auction) Key() Key {
	return Key{Contract: a.AssetContract, ID: a.AssetID}
}

// HasBid reports whether any bid has been accepted.
func (a *Auction) HasBid() bool {
	return a.HighestBidder != (common.Address{})
}

// Reserve returns the amount a new bid must strictly exceed:
// the current highest bid, or the start price if nobody has bid yet.
func (a *Auction) Reserve() *big.Int {
	if a.HasBid() {
		return a.HighestBid
	}
	return a.StartPrice
}

// InWindow reports whether now falls inside the bidding window.
func (a *Auction) InWindow(now int64) bool {
	return now >= a.StartTime && now <= a.EndTime
}

// Clone returns a deep copy. The engine mutates a clone and swaps it in
// through the registry so a failed persist leaves the old record intact.
func (a *Auction) Clone() *Auction {
	dup := *a
	if a.StartPrice != nil {
		dup.StartPrice = new(big.Int).Set(a.StartPrice)
	}
	if a.HighestBid != nil {
		dup.HighestBid = new(big.Int).Set(a.HighestBid)
	}
	return &dup
}

// Validate checks record invariants after load or mutation.
func (a *Auction) Validate() error {
	if a.Seller == (common.Address{}) {
		return fmt.Errorf("auction %s: empty seller", a.Key())
	}
	if a.StartPrice == nil || a.StartPrice.Sign() <= 0 {
		return fmt.Errorf("auction %s: %w", a.Key(), ErrInvalidStartPrice)
	}
	if a.EndTime <= a.StartTime {
		return fmt.Errorf("auction %s: %w", a.Key(), ErrInvalidTimeRange)
	}
	if a.HighestBid == nil {
		return fmt.Errorf("auction %s: nil highest bid", a.Key())
	}
	if a.HighestBid.Sign() < 0 {
		return fmt.Errorf("auction %s: negative highest bid", a.Key())
	}
	if a.HasBid() && a.HighestBid.Sign() == 0 {
		return fmt.Errorf("auction %s: bidder set with zero bid", a.Key())
	}
	return nil
}
