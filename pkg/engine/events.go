package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
)

// Bid entry modes, reported on events and over the API.
const (
	ModeLedger = "ledger" // native bid, outbid funds credited to the refund ledger
	ModePush   = "push"   // native bid, outbid funds pushed back synchronously
	ModeERC20  = "erc20"  // token bid in the auction's bidding asset
	ModeOracle = "oracle" // cross-asset bid normalized through price feeds
)

// BidEvent is emitted after a bid is accepted and persisted.
type BidEvent struct {
	Auction  auction.Key    `json:"auction"`
	Bidder   common.Address `json:"bidder"`
	Amount   *big.Int       `json:"amount"`
	Asset    asset.Asset    `json:"asset"`
	Mode     string         `json:"mode"`
	Time     int64          `json:"time"`
	Previous common.Address `json:"previous,omitempty"` // outbid account, if any
}

// SettleEvent is emitted after an auction settles.
type SettleEvent struct {
	Auction auction.Key    `json:"auction"`
	Seller  common.Address `json:"seller"`
	Winner  common.Address `json:"winner"` // zero address when no bid was placed
	Amount  *big.Int       `json:"amount"`
	Asset   asset.Asset    `json:"asset"`
	Time    int64          `json:"time"`
}
