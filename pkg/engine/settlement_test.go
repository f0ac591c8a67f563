package engine_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/minjekim/auctionhouse/pkg/engine"
	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
)

func TestSettleTransfersAssetAndProceeds(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	if err := f.eng.Bid(bidder1, nftAddr, 1, nil, milli(200)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if err := f.eng.Bid(bidder2, nftAddr, 1, nil, milli(300)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	f.closeWindow()

	// Anyone may settle once the window has closed.
	if err := f.eng.Settle(outsider, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	owner, err := f.nft.OwnerOf(1)
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if owner != bidder2 {
		t.Errorf("asset owner = %s, want winner %s", owner.Hex(), bidder2.Hex())
	}

	wantSeller := new(big.Int).Add(ether(100), milli(300))
	if got := f.bank.BalanceOf(seller); got.Cmp(wantSeller) != 0 {
		t.Errorf("seller balance = %s, want %s", got, wantSeller)
	}

	// Custody still holds the displaced bidder's unclaimed refund.
	if got := f.bank.BalanceOf(engineAddr); got.Cmp(milli(200)) != 0 {
		t.Errorf("custody = %s, want %s", got, milli(200))
	}

	if !f.auctionState().Settled {
		t.Error("auction not marked settled")
	}
}

func TestSettleBeforeEnd(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	if err := f.eng.Settle(seller, nftAddr, 1); !errors.Is(err, auction.ErrAuctionNotEnded) {
		t.Errorf("got %v, want ErrAuctionNotEnded", err)
	}
}

func TestSettleTwice(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	if err := f.eng.Bid(bidder1, nftAddr, 1, nil, milli(200)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	f.closeWindow()

	if err := f.eng.Settle(seller, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if err := f.eng.Settle(seller, nftAddr, 1); !errors.Is(err, auction.ErrAlreadySettled) {
		t.Errorf("second settle: got %v, want ErrAlreadySettled", err)
	}

	// The winner received the asset exactly once; the seller was paid
	// exactly once.
	owner, _ := f.nft.OwnerOf(1)
	if owner != bidder1 {
		t.Errorf("asset owner = %s, want %s", owner.Hex(), bidder1.Hex())
	}
	wantSeller := new(big.Int).Add(ether(100), milli(200))
	if got := f.bank.BalanceOf(seller); got.Cmp(wantSeller) != 0 {
		t.Errorf("seller balance = %s, want %s", got, wantSeller)
	}
}

func TestSettleWithNoBids(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))
	f.closeWindow()

	if err := f.eng.Settle(seller, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// Nothing moved: the seller keeps the asset and every balance is
	// where it started.
	owner, _ := f.nft.OwnerOf(1)
	if owner != seller {
		t.Errorf("asset owner = %s, want seller %s", owner.Hex(), seller.Hex())
	}
	if got := f.bank.BalanceOf(seller); got.Cmp(ether(100)) != 0 {
		t.Errorf("seller balance = %s, want %s", got, ether(100))
	}
	if got := f.bank.BalanceOf(engineAddr); got.Sign() != 0 {
		t.Errorf("custody = %s, want 0", got)
	}
	if !f.auctionState().Settled {
		t.Error("auction not marked settled")
	}
}

func TestSettleTokenAuction(t *testing.T) {
	f := newFixture(t)
	f.createToken(ether(5))

	accepted, err := f.eng.BidERC20(bidder1, nftAddr, 1, ether(7))
	if err != nil || !accepted {
		t.Fatalf("token bid: accepted=%v err=%v", accepted, err)
	}
	f.closeWindow()

	if err := f.eng.Settle(bidder1, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	owner, _ := f.nft.OwnerOf(1)
	if owner != bidder1 {
		t.Errorf("asset owner = %s, want %s", owner.Hex(), bidder1.Hex())
	}

	// Proceeds arrive in the bidding token.
	wantSeller := new(big.Int).Add(ether(1000), ether(7))
	if got := f.token.BalanceOf(seller); got.Cmp(wantSeller) != 0 {
		t.Errorf("seller token balance = %s, want %s", got, wantSeller)
	}
	if got := f.token.BalanceOf(engineAddr); got.Sign() != 0 {
		t.Errorf("token custody = %s, want 0", got)
	}
}

// An oracle bid can flip the bidding asset mid-auction; settlement pays
// the seller in whatever asset the winning bid was denominated in.
func TestSettlePaysWinningBidAsset(t *testing.T) {
	f := newFixture(t)
	f.registerFeeds()
	f.createToken(ether(5))

	accepted, err := f.eng.BidWithOracle(bidder1, nftAddr, 1, asset.Native(), nil, milli(20))
	if err != nil || !accepted {
		t.Fatalf("oracle bid: accepted=%v err=%v", accepted, err)
	}
	f.closeWindow()

	if err := f.eng.Settle(seller, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	wantSeller := new(big.Int).Add(ether(100), milli(20))
	if got := f.bank.BalanceOf(seller); got.Cmp(wantSeller) != 0 {
		t.Errorf("seller native balance = %s, want %s", got, wantSeller)
	}
	if got := f.token.BalanceOf(seller); got.Cmp(ether(1000)) != 0 {
		t.Errorf("seller token balance = %s, want untouched %s", got, ether(1000))
	}
}

func TestSettleUnknownAuction(t *testing.T) {
	f := newFixture(t)

	if err := f.eng.Settle(seller, nftAddr, 42); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("got %v, want ErrAuctionNotFound", err)
	}
}

// Refund balances are independent of auction state: a displaced bidder
// can withdraw long after the auction settled.
func TestRefundSurvivesSettlement(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	if err := f.eng.Bid(bidder1, nftAddr, 1, nil, milli(200)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	if err := f.eng.Bid(bidder2, nftAddr, 1, nil, milli(300)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	f.closeWindow()
	if err := f.eng.Settle(seller, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	paid, err := f.eng.Refund(bidder1, asset.Native())
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if paid.Cmp(milli(200)) != 0 {
		t.Errorf("refund = %s, want %s", paid, milli(200))
	}
	if got := f.bank.BalanceOf(bidder1); got.Cmp(ether(100)) != 0 {
		t.Errorf("bidder1 balance = %s, want %s", got, ether(100))
	}
}

func TestSettleEventFires(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	if err := f.eng.Bid(bidder1, nftAddr, 1, nil, milli(200)); err != nil {
		t.Fatalf("bid failed: %v", err)
	}
	f.closeWindow()

	var got *engine.SettleEvent
	f.eng.OnSettle = func(ev engine.SettleEvent) { got = &ev }

	if err := f.eng.Settle(seller, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if got == nil {
		t.Fatal("settle event did not fire")
	}
	if got.Winner != bidder1 || got.Seller != seller || got.Amount.Cmp(milli(200)) != 0 {
		t.Errorf("event = %+v", got)
	}
	if !got.Asset.IsNative() {
		t.Errorf("event asset = %s, want native", got.Asset)
	}
}
