package main

import (
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/minjekim/auctionhouse/params"
	"github.com/minjekim/auctionhouse/pkg/api"
	"github.com/minjekim/auctionhouse/pkg/engine"
	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
	"github.com/minjekim/auctionhouse/pkg/engine/extern"
	"github.com/minjekim/auctionhouse/pkg/engine/ledger"
	"github.com/minjekim/auctionhouse/pkg/engine/oracle"
	"github.com/minjekim/auctionhouse/pkg/util"
)

// Devnet collaborator addresses. Real deployments replace the extern
// registry with chain-backed implementations at these bindings.
var (
	devNFTAddr   = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	devTokenAddr = common.HexToAddress("0x00000000000000000000000000000000000000E2")

	devSeller  = common.HexToAddress("0x0000000000000000000000000000000000000AA1")
	devBidder1 = common.HexToAddress("0x0000000000000000000000000000000000000BB1")
	devBidder2 = common.HexToAddress("0x0000000000000000000000000000000000000BB2")
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- State: auction registry + refund ledger ----
	// Pebble-backed when a path is configured, in-memory otherwise.
	auctions := auction.NewRegistry()
	if cfg.Node.AuctionDB != "" {
		auctions, err = auction.NewRegistryWithStore(cfg.Node.AuctionDB)
		if err != nil {
			sugar.Fatalw("auction_store_failed", "err", err)
		}
	}
	defer auctions.Close()

	refunds := ledger.NewLedger()
	if cfg.Node.LedgerDB != "" {
		refunds, err = ledger.NewLedgerWithStore(cfg.Node.LedgerDB)
		if err != nil {
			sugar.Fatalw("ledger_store_failed", "err", err)
		}
	}
	defer refunds.Close()

	sugar.Infow("state_loaded", "auctions", auctions.Count())

	// ---- Collaborators ----
	contracts := extern.NewRegistry()
	bank := extern.NewMemoryBank()
	feeds := oracle.NewRegistry()

	// ---- Engine ----
	eng := engine.New(engine.Config{
		Address:   common.HexToAddress(cfg.Node.EngineAddress),
		Auctions:  auctions,
		Ledger:    refunds,
		Feeds:     feeds,
		Contracts: contracts,
		Bank:      bank,
		Clock:     util.RealClock{},
		Logger:    sugar,
	})

	admin := common.HexToAddress(cfg.Node.Admin)
	if err := eng.Initialize(admin); err != nil {
		sugar.Fatalw("initialize_failed", "err", err)
	}

	if cfg.Node.Devnet {
		seedDevnet(eng, contracts, bank, admin, sugar)
	}

	// ---- API Server ----
	apiServer := api.NewServer(eng, feeds, cfg.API.AllowedOrigins)

	// Broadcast engine events to websocket subscribers.
	eng.OnBid = apiServer.BroadcastBid
	eng.OnSettle = apiServer.BroadcastSettle

	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("auctiond_started",
		"admin", admin.Hex(),
		"engine", eng.Address().Hex(),
		"devnet", cfg.Node.Devnet)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sugar.Info("auctiond_shutting_down")
}

// seedDevnet stands up in-memory collaborators so the node can run
// end-to-end auctions without a chain integration: an NFT contract with
// a minted asset, a fungible token, funded native accounts, and price
// feeds for both assets.
func seedDevnet(eng *engine.Engine, contracts *extern.Registry, bank *extern.MemoryBank, admin common.Address, sugar *zap.SugaredLogger) {
	nft := extern.NewMemoryNFT()
	token := extern.NewMemoryToken()
	contracts.RegisterAsset(devNFTAddr, nft)
	contracts.RegisterToken(devTokenAddr, token)

	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	if err := nft.Mint(devSeller, 1); err != nil {
		sugar.Infow("devnet_seed_skipped", "err", err)
		return
	}
	for _, acct := range []common.Address{devSeller, devBidder1, devBidder2} {
		bank.Mint(acct, new(big.Int).Mul(big.NewInt(100), oneEther))
		token.Mint(acct, new(big.Int).Mul(big.NewInt(1000), oneEther))
	}

	// Aggregator-style 8-decimal feeds: native 3000 USD, token 10 USD.
	_ = eng.SetFeed(admin, asset.Native(), extern.NewStaticFeed(3000, 8))
	_ = eng.SetFeed(admin, asset.Token(devTokenAddr), extern.NewStaticFeed(10, 8))

	sugar.Infow("devnet_seeded",
		"nft", devNFTAddr.Hex(),
		"token", devTokenAddr.Hex(),
		"seller", devSeller.Hex(),
		"bidders", 2)
}
