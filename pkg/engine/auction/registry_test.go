package auction_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
)

var (
	seller  = common.HexToAddress("0x0000000000000000000000000000000000000AA1")
	bidder  = common.HexToAddress("0x0000000000000000000000000000000000000BB1")
	nftAddr = common.HexToAddress("0x00000000000000000000000000000000000000F1")
)

func sampleAuction(id uint64) *auction.Auction {
	return &auction.Auction{
		Seller:        seller,
		AssetContract: nftAddr,
		AssetID:       id,
		StartPrice:    big.NewInt(1000),
		BiddingAsset:  asset.Native(),
		StartTime:     1_700_000_000,
		EndTime:       1_700_000_600,
		HighestBid:    new(big.Int),
	}
}

func TestPutAndGet(t *testing.T) {
	r := auction.NewRegistry()

	a := sampleAuction(1)
	if err := r.Put(a); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := r.Get(a.Key())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Seller != seller || got.AssetID != 1 {
		t.Errorf("got %+v", got)
	}

	if _, err := r.Get(auction.Key{Contract: nftAddr, ID: 99}); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("missing key: got %v, want ErrAuctionNotFound", err)
	}
}

func TestPutRejectsDuplicateUnsettled(t *testing.T) {
	r := auction.NewRegistry()

	if err := r.Put(sampleAuction(1)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := r.Put(sampleAuction(1)); !errors.Is(err, auction.ErrAuctionExists) {
		t.Errorf("got %v, want ErrAuctionExists", err)
	}

	// A settled record may be superseded.
	settled := sampleAuction(2)
	settled.Settled = true
	if err := r.Put(settled); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := r.Put(sampleAuction(2)); err != nil {
		t.Errorf("superseding a settled record failed: %v", err)
	}
}

func TestUpdateRequiresExistingRecord(t *testing.T) {
	r := auction.NewRegistry()

	if err := r.Update(sampleAuction(1)); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("got %v, want ErrAuctionNotFound", err)
	}

	a := sampleAuction(1)
	if err := r.Put(a); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	next := a.Clone()
	next.HighestBid = big.NewInt(2000)
	next.HighestBidder = bidder
	if err := r.Update(next); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := r.Get(a.Key())
	if got.HighestBid.Cmp(big.NewInt(2000)) != 0 || got.HighestBidder != bidder {
		t.Errorf("got %+v", got)
	}
}

func TestListLiveExcludesSettled(t *testing.T) {
	r := auction.NewRegistry()

	live := sampleAuction(1)
	settled := sampleAuction(2)
	settled.Settled = true
	r.Put(live)
	r.Put(settled)

	if got := r.Count(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("list = %d records, want 2", got)
	}

	lives := r.ListLive()
	if len(lives) != 1 || lives[0].AssetID != 1 {
		t.Errorf("live = %+v, want only auction 1", lives)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := sampleAuction(1)
	a.HighestBid = big.NewInt(500)
	a.HighestBidder = bidder

	dup := a.Clone()
	dup.HighestBid.SetInt64(999)
	dup.StartPrice.SetInt64(1)
	dup.Settled = true

	if a.HighestBid.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("highest bid mutated through clone: %s", a.HighestBid)
	}
	if a.StartPrice.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("start price mutated through clone: %s", a.StartPrice)
	}
	if a.Settled {
		t.Error("settled flag mutated through clone")
	}
}

func TestReserve(t *testing.T) {
	a := sampleAuction(1)

	if got := a.Reserve(); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("reserve without bids = %s, want start price 1000", got)
	}

	a.HighestBid = big.NewInt(1500)
	a.HighestBidder = bidder
	if got := a.Reserve(); got.Cmp(big.NewInt(1500)) != 0 {
		t.Errorf("reserve with bid = %s, want 1500", got)
	}
}

func TestInWindow(t *testing.T) {
	a := sampleAuction(1)

	cases := []struct {
		now  int64
		want bool
	}{
		{a.StartTime - 1, false},
		{a.StartTime, true},
		{a.EndTime, true},
		{a.EndTime + 1, false},
	}
	for _, tc := range cases {
		if got := a.InWindow(tc.now); got != tc.want {
			t.Errorf("InWindow(%d) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	good := sampleAuction(1)
	if err := good.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	noSeller := sampleAuction(1)
	noSeller.Seller = common.Address{}
	if err := noSeller.Validate(); err == nil {
		t.Error("empty seller accepted")
	}

	badPrice := sampleAuction(1)
	badPrice.StartPrice = big.NewInt(0)
	if err := badPrice.Validate(); !errors.Is(err, auction.ErrInvalidStartPrice) {
		t.Errorf("got %v, want ErrInvalidStartPrice", err)
	}

	badRange := sampleAuction(1)
	badRange.EndTime = badRange.StartTime
	if err := badRange.Validate(); !errors.Is(err, auction.ErrInvalidTimeRange) {
		t.Errorf("got %v, want ErrInvalidTimeRange", err)
	}

	ghostBid := sampleAuction(1)
	ghostBid.HighestBidder = bidder
	if err := ghostBid.Validate(); err == nil {
		t.Error("bidder with zero bid accepted")
	}
}

func TestRegistryPersistenceReload(t *testing.T) {
	dbPath := t.TempDir() + "/auctions.db"

	r, err := auction.NewRegistryWithStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	a := sampleAuction(1)
	if err := r.Put(a); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	next := a.Clone()
	next.HighestBid = big.NewInt(4200)
	next.HighestBidder = bidder
	if err := r.Update(next); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	tokenAuction := sampleAuction(2)
	tokenAuction.BiddingAsset = asset.Token(common.HexToAddress("0x00000000000000000000000000000000000000E2"))
	if err := r.Put(tokenAuction); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reloaded, err := auction.NewRegistryWithStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen registry: %v", err)
	}
	defer reloaded.Close()

	if got := reloaded.Count(); got != 2 {
		t.Fatalf("count after reload = %d, want 2", got)
	}

	got, err := reloaded.Get(a.Key())
	if err != nil {
		t.Fatalf("get after reload failed: %v", err)
	}
	if got.HighestBid.Cmp(big.NewInt(4200)) != 0 || got.HighestBidder != bidder {
		t.Errorf("reloaded record = %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("reloaded record invalid: %v", err)
	}

	tok, err := reloaded.Get(tokenAuction.Key())
	if err != nil {
		t.Fatalf("get after reload failed: %v", err)
	}
	if tok.BiddingAsset.IsNative() {
		t.Error("bidding asset lost through reload")
	}
}
