package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/minjekim/auctionhouse/pkg/engine/auction"
)

// Settle finalizes an ended auction. With a winner, the asset moves from
// seller to winner and the escrowed highest bid moves from engine
// custody to the seller, denominated in the winning bid's asset. With no
// bids, nothing moves: the seller still holds the asset and nothing was
// escrowed. Settlement is terminal; a second call fails AlreadySettled.
// Any caller may settle once the window has closed.
func (e *Engine) Settle(caller, contract common.Address, id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.auctions.Get(auction.Key{Contract: contract, ID: id})
	if err != nil {
		return err
	}
	if a.Settled {
		return fmt.Errorf("auction %s: %w", a.Key(), auction.ErrAlreadySettled)
	}
	now := e.clock.Now().Unix()
	if now < a.EndTime {
		return fmt.Errorf("auction %s ends at %d: %w", a.Key(), a.EndTime, auction.ErrAuctionNotEnded)
	}

	if a.HasBid() {
		nft, err := e.contracts.AssetContract(a.AssetContract)
		if err != nil {
			return fmt.Errorf("settle: %w", err)
		}
		if err := nft.TransferFrom(a.Seller, a.HighestBidder, a.AssetID); err != nil {
			return fmt.Errorf("settle: asset transfer: %w", err)
		}
		if err := e.payOut(a.Seller, a.BiddingAsset, a.HighestBid); err != nil {
			return fmt.Errorf("settle: proceeds transfer: %w", err)
		}
	}

	next := a.Clone()
	next.Settled = true
	if err := e.auctions.Update(next); err != nil {
		return err
	}

	ev := SettleEvent{
		Auction: a.Key(), Seller: a.Seller, Winner: a.HighestBidder,
		Amount: next.HighestBid, Asset: a.BiddingAsset, Time: now,
	}
	e.log.Infow("auction_settled",
		"auction", ev.Auction.String(),
		"winner", ev.Winner.Hex(),
		"amount", ev.Amount.String(),
		"asset", ev.Asset.String(),
		"caller", caller.Hex())
	if e.OnSettle != nil {
		e.OnSettle(ev)
	}
	return nil
}
