package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
)

// Bid places a ledgered native-currency bid. value is the attached
// native amount and is the bid; it is pulled into engine custody on
// acceptance. minAccept lets the bidder refuse to bid below their own
// floor. When the bid displaces a previous highest bidder, that bidder's
// stake is credited to the refund ledger for later withdrawal.
func (e *Engine) Bid(bidder, contract common.Address, id uint64, minAccept, value *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()
	a, err := e.liveAuction(contract, id, now)
	if err != nil {
		return err
	}
	if !a.BiddingAsset.IsNative() {
		return fmt.Errorf("auction %s takes %s: %w", a.Key(), a.BiddingAsset, ErrWrongAsset)
	}
	if err := checkRaise(a, value); err != nil {
		return err
	}
	if minAccept != nil && value.Cmp(minAccept) < 0 {
		return fmt.Errorf("value %s below minAccept %s: %w", value, minAccept, ErrBidTooLow)
	}

	// Pull the attached value into custody before touching auction state.
	if err := e.bank.Transfer(bidder, e.addr, value); err != nil {
		return fmt.Errorf("attach value: %w", err)
	}

	prev := a.HighestBidder
	if a.HasBid() {
		if err := e.ledger.Credit(prev, asset.Native(), a.HighestBid); err != nil {
			return fmt.Errorf("credit outbid refund: %w", err)
		}
	}

	next := a.Clone()
	next.HighestBid = new(big.Int).Set(value)
	next.HighestBidder = bidder
	if err := e.auctions.Update(next); err != nil {
		return err
	}

	e.emitBid(BidEvent{
		Auction: a.Key(), Bidder: bidder, Amount: next.HighestBid,
		Asset: asset.Native(), Mode: ModeLedger, Time: now, Previous: prev,
	})
	return nil
}

// Bidding places an immediate-push native-currency bid: instead of a
// ledger credit, the displaced bidder is refunded by a synchronous
// transfer. The refund is sent before the new highest bid is recorded;
// this ordering is part of the contract's observable behavior and must
// stay as is.
func (e *Engine) Bidding(bidder, contract common.Address, id uint64, value *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()
	a, err := e.liveAuction(contract, id, now)
	if err != nil {
		return err
	}
	if !a.BiddingAsset.IsNative() {
		return fmt.Errorf("auction %s takes %s: %w", a.Key(), a.BiddingAsset, ErrWrongAsset)
	}
	if err := checkRaise(a, value); err != nil {
		return err
	}

	if err := e.bank.Transfer(bidder, e.addr, value); err != nil {
		return fmt.Errorf("attach value: %w", err)
	}

	prev := a.HighestBidder
	if a.HasBid() {
		if err := e.bank.Transfer(e.addr, prev, a.HighestBid); err != nil {
			return fmt.Errorf("push refund to %s: %w", prev.Hex(), err)
		}
	}

	next := a.Clone()
	next.HighestBid = new(big.Int).Set(value)
	next.HighestBidder = bidder
	if err := e.auctions.Update(next); err != nil {
		return err
	}

	e.emitBid(BidEvent{
		Auction: a.Key(), Bidder: bidder, Amount: next.HighestBid,
		Asset: asset.Native(), Mode: ModePush, Time: now, Previous: prev,
	})
	return nil
}

// BidERC20 places a bid in the auction's own fungible bidding token.
// The amount is pulled from the bidder through the token contract, which
// reports success as a boolean. A reported failure discards the bid with
// no state change and no error: accepted is false and the auction is
// untouched. Approval alone never implies success.
func (e *Engine) BidERC20(bidder, contract common.Address, id uint64, amount *big.Int) (accepted bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()
	a, err := e.liveAuction(contract, id, now)
	if err != nil {
		return false, err
	}
	if a.BiddingAsset.IsNative() {
		return false, fmt.Errorf("auction %s takes native currency: %w", a.Key(), ErrWrongAsset)
	}
	if err := checkRaise(a, amount); err != nil {
		return false, err
	}

	tok, err := e.contracts.TokenContract(a.BiddingAsset.Address())
	if err != nil {
		return false, fmt.Errorf("bid erc20: %w", err)
	}

	// No auction state may change until the transfer outcome is known.
	ok, err := tok.TransferFrom(bidder, e.addr, amount)
	if err != nil {
		return false, fmt.Errorf("bid erc20: %w", err)
	}
	if !ok {
		e.log.Warnw("bid_discarded_transfer_failed",
			"auction", a.Key().String(), "bidder", bidder.Hex(), "amount", amount.String())
		return false, nil
	}

	prev := a.HighestBidder
	if a.HasBid() {
		if err := e.ledger.Credit(prev, a.BiddingAsset, a.HighestBid); err != nil {
			return false, fmt.Errorf("credit outbid refund: %w", err)
		}
	}

	next := a.Clone()
	next.HighestBid = new(big.Int).Set(amount)
	next.HighestBidder = bidder
	if err := e.auctions.Update(next); err != nil {
		return false, err
	}

	e.emitBid(BidEvent{
		Auction: a.Key(), Bidder: bidder, Amount: next.HighestBid,
		Asset: a.BiddingAsset, Mode: ModeERC20, Time: now, Previous: prev,
	})
	return true, nil
}

// BidWithOracle places a bid denominated in a different asset than the
// auction's, compared through price feeds. For a native bidAsset the
// attached value is the bid; for a token bidAsset the amount is pulled
// after the comparison passes. On acceptance the raw amount and its
// asset become the new highest bid and bidding asset; the displaced
// bidder is credited in whatever asset their bid was denominated in.
func (e *Engine) BidWithOracle(bidder, contract common.Address, id uint64, bidAsset asset.Asset, amount, value *big.Int) (accepted bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now().Unix()
	a, err := e.liveAuction(contract, id, now)
	if err != nil {
		return false, err
	}

	raw := amount
	if bidAsset.IsNative() {
		raw = value
	}
	if raw == nil || raw.Sign() <= 0 {
		return false, fmt.Errorf("empty bid: %w", ErrBidTooLow)
	}

	// Both legs need feeds; comparison happens before any funds move.
	normBid, err := e.feeds.NormalizedValue(bidAsset, raw)
	if err != nil {
		return false, err
	}
	normReserve, err := e.feeds.NormalizedValue(a.BiddingAsset, a.Reserve())
	if err != nil {
		return false, err
	}
	if normBid.Cmp(normReserve) <= 0 {
		return false, fmt.Errorf("normalized %s does not exceed %s: %w", normBid, normReserve, ErrBidTooLow)
	}

	if bidAsset.IsNative() {
		if err := e.bank.Transfer(bidder, e.addr, raw); err != nil {
			return false, fmt.Errorf("attach value: %w", err)
		}
	} else {
		tok, err := e.contracts.TokenContract(bidAsset.Address())
		if err != nil {
			return false, fmt.Errorf("bid with oracle: %w", err)
		}
		ok, err := tok.TransferFrom(bidder, e.addr, raw)
		if err != nil {
			return false, fmt.Errorf("bid with oracle: %w", err)
		}
		if !ok {
			e.log.Warnw("bid_discarded_transfer_failed",
				"auction", a.Key().String(), "bidder", bidder.Hex(), "amount", raw.String())
			return false, nil
		}
	}

	prev := a.HighestBidder
	if a.HasBid() {
		if err := e.ledger.Credit(prev, a.BiddingAsset, a.HighestBid); err != nil {
			return false, fmt.Errorf("credit outbid refund: %w", err)
		}
	}

	next := a.Clone()
	next.BiddingAsset = bidAsset
	next.HighestBid = new(big.Int).Set(raw)
	next.HighestBidder = bidder
	if err := e.auctions.Update(next); err != nil {
		return false, err
	}

	e.emitBid(BidEvent{
		Auction: a.Key(), Bidder: bidder, Amount: next.HighestBid,
		Asset: bidAsset, Mode: ModeOracle, Time: now, Previous: prev,
	})
	return true, nil
}

// checkRaise enforces the strict-inequality raise rule: a bid must
// exceed max(highest bid, start price). Ties are rejected.
func checkRaise(a *auction.Auction, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("empty bid: %w", ErrBidTooLow)
	}
	if amount.Cmp(a.Reserve()) <= 0 {
		return fmt.Errorf("bid %s does not exceed %s: %w", amount, a.Reserve(), ErrBidTooLow)
	}
	return nil
}
