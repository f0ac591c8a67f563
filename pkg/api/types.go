package api

// API request/response types for REST endpoints and WebSocket messages.
// Amounts travel as decimal strings since bid values exceed int64 range.

// ==============================
// REST Types
// ==============================

// AuctionInfo is the public view of an auction record.
type AuctionInfo struct {
	AssetContract string `json:"assetContract"`
	AssetID       uint64 `json:"assetId"`
	Seller        string `json:"seller"`
	StartPrice    string `json:"startPrice"`
	BiddingAsset  string `json:"biddingAsset"` // hex address; zero address = native
	StartTime     int64  `json:"startTime"`    // unix seconds
	EndTime       int64  `json:"endTime"`
	HighestBid    string `json:"highestBid"`
	HighestBidder string `json:"highestBidder"`
	Settled       bool   `json:"settled"`

	// HighestBidUSD is the feed-normalized value of the current highest
	// bid (or start price before the first bid), when a feed exists.
	HighestBidUSD string `json:"highestBidUSD,omitempty"`
}

// CreateAuctionRequest creates an auction on behalf of the seller.
type CreateAuctionRequest struct {
	Seller        string `json:"seller"`
	AssetContract string `json:"assetContract"`
	AssetID       uint64 `json:"assetId"`
	StartPrice    string `json:"startPrice"`
	BiddingAsset  string `json:"biddingAsset"`
	StartTime     int64  `json:"startTime"`
	EndTime       int64  `json:"endTime"`
}

// BidRequest submits a bid in one of the four modes:
// "ledger" and "push" are native bids carrying Value;
// "erc20" bids Amount in the auction's bidding token;
// "oracle" bids Amount of BidAsset (or Value when BidAsset is native).
type BidRequest struct {
	Bidder    string `json:"bidder"`
	Mode      string `json:"mode"`
	Value     string `json:"value,omitempty"`
	Amount    string `json:"amount,omitempty"`
	MinAccept string `json:"minAccept,omitempty"`
	BidAsset  string `json:"bidAsset,omitempty"`
}

// BidResponse reports the outcome of a bid submission.
// Accepted false with status "discarded" is the token-reported-failure
// path: the bid was dropped with no state change.
type BidResponse struct {
	Status   string `json:"status"` // "accepted" or "discarded"
	Accepted bool   `json:"accepted"`
	BidID    string `json:"bidId,omitempty"`
}

// RefundRequest withdraws the account's pending refund for an asset.
type RefundRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

// RefundResponse carries the amount paid out (zero for a no-op).
type RefundResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// PendingRefundResponse is the read-only ledger lookup.
type PendingRefundResponse struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// SetFeedRequest registers a fixed-price feed for an asset (admin-only).
// Price is in whole quote units, scaled internally by 10^Decimals.
type SetFeedRequest struct {
	Caller   string `json:"caller"`
	Asset    string `json:"asset"`
	Price    int64  `json:"price"`
	Decimals uint8  `json:"decimals"`
}

// SettleRequest finalizes an ended auction.
type SettleRequest struct {
	Caller string `json:"caller"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest subscribes or unsubscribes channels.
// Channels: "auctions" (all events), "auction:{contract}/{id}".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent wraps engine events for the feed.
type WSEvent struct {
	ID      string      `json:"id"`   // event uuid
	Type    string      `json:"type"` // "bid" or "settle"
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}
