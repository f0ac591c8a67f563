package engine_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine"
	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
	"github.com/minjekim/auctionhouse/pkg/engine/extern"
	"github.com/minjekim/auctionhouse/pkg/engine/ledger"
	"github.com/minjekim/auctionhouse/pkg/engine/oracle"
	"github.com/minjekim/auctionhouse/pkg/util"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000EE")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000000AA1")
	bidder1    = common.HexToAddress("0x0000000000000000000000000000000000000BB1")
	bidder2    = common.HexToAddress("0x0000000000000000000000000000000000000BB2")
	outsider   = common.HexToAddress("0x0000000000000000000000000000000000000CC1")

	nftAddr   = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000E2")
)

var genesis = time.Unix(1_700_000_000, 0)

// ether returns n whole native units at wei scale.
func ether(n int64) *big.Int {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), one)
}

// milli returns n thousandths of a native unit (0.001 = milli(1)).
func milli(n int64) *big.Int {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	return new(big.Int).Mul(big.NewInt(n), one)
}

type fixture struct {
	t *testing.T

	eng      *engine.Engine
	clock    *util.ManualClock
	bank     *extern.MemoryBank
	nft      *extern.MemoryNFT
	token    *extern.MemoryToken
	feeds    *oracle.Registry
	ledger   *ledger.Ledger
	auctions *auction.Registry
}

// newFixture stands up an engine over in-memory collaborators:
// NFT id 1 minted to the seller and approved for the engine, every
// account funded with 100 native and 1000 token units.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := util.NewManualClock(genesis)
	contracts := extern.NewRegistry()
	nft := extern.NewMemoryNFT()
	token := extern.NewMemoryToken()
	contracts.RegisterAsset(nftAddr, nft)
	contracts.RegisterToken(tokenAddr, token)

	bank := extern.NewMemoryBank()
	led := ledger.NewLedger()
	feeds := oracle.NewRegistry()
	auctions := auction.NewRegistry()

	eng := engine.New(engine.Config{
		Address:   engineAddr,
		Auctions:  auctions,
		Ledger:    led,
		Feeds:     feeds,
		Contracts: contracts,
		Bank:      bank,
		Clock:     clock,
	})
	if err := eng.Initialize(admin); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	if err := nft.Mint(seller, 1); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := nft.Approve(seller, engineAddr, 1); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	for _, acct := range []common.Address{seller, bidder1, bidder2} {
		bank.Mint(acct, ether(100))
		token.Mint(acct, ether(1000))
	}

	return &fixture{
		t:        t,
		eng:      eng,
		clock:    clock,
		bank:     bank,
		nft:      nft,
		token:    token,
		feeds:    feeds,
		ledger:   led,
		auctions: auctions,
	}
}

func (f *fixture) params(startPrice *big.Int, bidding asset.Asset) engine.CreateParams {
	now := f.clock.Now().Unix()
	return engine.CreateParams{
		AssetContract: nftAddr,
		AssetID:       1,
		StartPrice:    startPrice,
		BiddingAsset:  bidding,
		StartTime:     now,
		EndTime:       now + 600,
	}
}

// createNative registers a native-currency auction opening immediately.
func (f *fixture) createNative(startPrice *big.Int) {
	f.t.Helper()
	if err := f.eng.CreateAuction(seller, f.params(startPrice, asset.Native())); err != nil {
		f.t.Fatalf("create auction failed: %v", err)
	}
}

// createToken registers a token-denominated auction opening immediately.
func (f *fixture) createToken(startPrice *big.Int) {
	f.t.Helper()
	if err := f.eng.CreateAuction(seller, f.params(startPrice, asset.Token(tokenAddr))); err != nil {
		f.t.Fatalf("create auction failed: %v", err)
	}
}

// closeWindow moves the clock past the auction's end time.
func (f *fixture) closeWindow() {
	f.clock.Advance(601 * time.Second)
}

func (f *fixture) auctionState() *auction.Auction {
	f.t.Helper()
	a, err := f.eng.GetAuction(nftAddr, 1)
	if err != nil {
		f.t.Fatalf("get auction failed: %v", err)
	}
	return a
}

func TestInitializeOnlyOnce(t *testing.T) {
	f := newFixture(t)

	if err := f.eng.Initialize(outsider); !errors.Is(err, engine.ErrAlreadyInitialized) {
		t.Errorf("second initialize: got %v, want ErrAlreadyInitialized", err)
	}
	if got := f.eng.Admin(); got != admin {
		t.Errorf("admin = %s, want %s", got.Hex(), admin.Hex())
	}
}

func TestTransferAdmin(t *testing.T) {
	f := newFixture(t)

	if err := f.eng.TransferAdmin(outsider, outsider); !errors.Is(err, engine.ErrNotAuthorized) {
		t.Errorf("non-admin transfer: got %v, want ErrNotAuthorized", err)
	}

	if err := f.eng.TransferAdmin(admin, outsider); err != nil {
		t.Fatalf("admin transfer failed: %v", err)
	}
	if got := f.eng.Admin(); got != outsider {
		t.Errorf("admin = %s, want %s", got.Hex(), outsider.Hex())
	}

	// The old admin no longer holds the role.
	if err := f.eng.TransferAdmin(admin, admin); !errors.Is(err, engine.ErrNotAuthorized) {
		t.Errorf("stale admin transfer: got %v, want ErrNotAuthorized", err)
	}
}

func TestAuthorizeUpgradeAdminGate(t *testing.T) {
	f := newFixture(t)

	impl := common.HexToAddress("0x00000000000000000000000000000000000000DD")
	if err := f.eng.AuthorizeUpgrade(outsider, impl); !errors.Is(err, engine.ErrNotAuthorized) {
		t.Errorf("non-admin authorize: got %v, want ErrNotAuthorized", err)
	}
	if err := f.eng.AuthorizeUpgrade(admin, impl); err != nil {
		t.Errorf("admin authorize failed: %v", err)
	}
}

func TestSetFeedAdminGate(t *testing.T) {
	f := newFixture(t)

	feed := extern.NewStaticFeed(3000, 8)
	if err := f.eng.SetFeed(outsider, asset.Native(), feed); !errors.Is(err, engine.ErrNotAuthorized) {
		t.Errorf("non-admin set feed: got %v, want ErrNotAuthorized", err)
	}
	if err := f.eng.SetFeed(admin, asset.Native(), feed); err != nil {
		t.Fatalf("admin set feed failed: %v", err)
	}
	if !f.feeds.Supported(asset.Native()) {
		t.Error("feed not registered after SetFeed")
	}

	// Overwrite with a new price is allowed.
	if err := f.eng.SetFeed(admin, asset.Native(), extern.NewStaticFeed(2500, 8)); err != nil {
		t.Errorf("feed overwrite failed: %v", err)
	}
	price, _, err := f.feeds.PriceOf(asset.Native())
	if err != nil {
		t.Fatalf("price lookup failed: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(2500), new(big.Int).Exp(big.NewInt(10), big.NewInt(8), nil))
	if price.Cmp(want) != 0 {
		t.Errorf("price = %s, want %s", price, want)
	}
}

func TestCreateAuctionRejectsNonOwner(t *testing.T) {
	f := newFixture(t)

	err := f.eng.CreateAuction(outsider, f.params(milli(100), asset.Native()))
	if !errors.Is(err, auction.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestCreateAuctionRequiresApproval(t *testing.T) {
	f := newFixture(t)

	// Asset 2 is minted but never approved for the engine.
	if err := f.nft.Mint(seller, 2); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	p := f.params(milli(100), asset.Native())
	p.AssetID = 2
	if err := f.eng.CreateAuction(seller, p); !errors.Is(err, auction.ErrNotApproved) {
		t.Errorf("got %v, want ErrNotApproved", err)
	}
}

func TestCreateAuctionParameterValidation(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now().Unix()

	cases := []struct {
		name string
		p    engine.CreateParams
		want error
	}{
		{
			name: "zero start price",
			p:    f.params(big.NewInt(0), asset.Native()),
			want: auction.ErrInvalidStartPrice,
		},
		{
			name: "nil start price",
			p:    f.params(nil, asset.Native()),
			want: auction.ErrInvalidStartPrice,
		},
		{
			name: "start in the past",
			p: engine.CreateParams{
				AssetContract: nftAddr, AssetID: 1, StartPrice: milli(100),
				StartTime: now - 10, EndTime: now + 600,
			},
			want: auction.ErrInvalidStartTime,
		},
		{
			name: "end before start",
			p: engine.CreateParams{
				AssetContract: nftAddr, AssetID: 1, StartPrice: milli(100),
				StartTime: now + 100, EndTime: now + 50,
			},
			want: auction.ErrInvalidTimeRange,
		},
		{
			name: "end equals start",
			p: engine.CreateParams{
				AssetContract: nftAddr, AssetID: 1, StartPrice: milli(100),
				StartTime: now + 100, EndTime: now + 100,
			},
			want: auction.ErrInvalidTimeRange,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := f.eng.CreateAuction(seller, tc.p); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateAuctionDuplicateKey(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	err := f.eng.CreateAuction(seller, f.params(milli(200), asset.Native()))
	if !errors.Is(err, auction.ErrAuctionExists) {
		t.Errorf("got %v, want ErrAuctionExists", err)
	}
}

func TestCreateAuctionAfterSettlement(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))
	f.closeWindow()

	if err := f.eng.Settle(outsider, nftAddr, 1); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// A settled record may be superseded by a fresh auction for the
	// same asset. The seller still owns it (no bids) so this succeeds.
	if err := f.nft.Approve(seller, engineAddr, 1); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := f.eng.CreateAuction(seller, f.params(milli(150), asset.Native())); err != nil {
		t.Fatalf("re-create after settlement failed: %v", err)
	}

	a := f.auctionState()
	if a.Settled {
		t.Error("new auction born settled")
	}
	if a.StartPrice.Cmp(milli(150)) != 0 {
		t.Errorf("start price = %s, want %s", a.StartPrice, milli(150))
	}
}

func TestGetAuctionReturnsCopy(t *testing.T) {
	f := newFixture(t)
	f.createNative(milli(100))

	a := f.auctionState()
	a.HighestBid.SetInt64(999)
	a.Settled = true

	fresh := f.auctionState()
	if fresh.HighestBid.Sign() != 0 || fresh.Settled {
		t.Error("mutating the returned record leaked into engine state")
	}
}

func TestGetAuctionNotFound(t *testing.T) {
	f := newFixture(t)

	if _, err := f.eng.GetAuction(nftAddr, 42); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("got %v, want ErrAuctionNotFound", err)
	}
}

func TestRefundWithNoBalanceIsNoOp(t *testing.T) {
	f := newFixture(t)

	before := f.bank.BalanceOf(bidder1)
	paid, err := f.eng.Refund(bidder1, asset.Native())
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if paid.Sign() != 0 {
		t.Errorf("paid = %s, want 0", paid)
	}
	if got := f.bank.BalanceOf(bidder1); got.Cmp(before) != 0 {
		t.Errorf("balance moved on empty refund: %s -> %s", before, got)
	}
}
