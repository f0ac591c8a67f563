package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/minjekim/auctionhouse/pkg/engine/asset"
)

// ErrTokenNotSupported is returned when an asset has no registered feed.
// Absence of a feed is a hard rejection, never a default price.
var ErrTokenNotSupported = errors.New("token not supported")

// PriceFeed exposes the latest price for one asset.
// Price is a fixed-point integer scaled by 10^Decimals, the way Chainlink
// aggregators report (e.g. 3000 USD at 8 decimals = 3000_00000000).
type PriceFeed interface {
	LatestPrice() (price *big.Int, decimals uint8, err error)
}

// Registry maps assets to their price feeds.
// Writes are admin-gated at the engine; the registry itself only stores.
type Registry struct {
	mu    sync.RWMutex
	feeds map[asset.Asset]PriceFeed
}

// NewRegistry creates an empty feed registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[asset.Asset]PriceFeed)}
}

// SetFeed registers or overwrites the feed for an asset.
func (r *Registry) SetFeed(a asset.Asset, feed PriceFeed) error {
	if feed == nil {
		return fmt.Errorf("cannot register nil feed for %s", a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[a] = feed
	return nil
}

// PriceOf returns the latest (price, decimals) for an asset.
// Fails with ErrTokenNotSupported if no feed is registered.
func (r *Registry) PriceOf(a asset.Asset) (*big.Int, uint8, error) {
	r.mu.RLock()
	feed, ok := r.feeds[a]
	r.mu.RUnlock()

	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", a, ErrTokenNotSupported)
	}

	price, decimals, err := feed.LatestPrice()
	if err != nil {
		return nil, 0, fmt.Errorf("feed for %s: %w", a, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, 0, fmt.Errorf("feed for %s returned non-positive price", a)
	}
	return price, decimals, nil
}

// Supported reports whether an asset has a registered feed.
func (r *Registry) Supported(a asset.Asset) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.feeds[a]
	return ok
}

// NormalizedValue converts a raw asset amount into the common comparison
// unit: amount * price / 10^decimals. Integer math, truncating division,
// mirroring on-chain fixed-point arithmetic.
func (r *Registry) NormalizedValue(a asset.Asset, amount *big.Int) (*big.Int, error) {
	price, decimals, err := r.PriceOf(a)
	if err != nil {
		return nil, err
	}
	return Normalize(amount, price, decimals), nil
}

// Normalize computes amount * price / 10^decimals.
func Normalize(amount, price *big.Int, decimals uint8) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, scale)
}

// USDValue renders a normalized value as a human-readable decimal, given
// how many decimal places the raw amount itself carries (18 for wei-scale
// amounts). Display only; comparisons always use the big.Int form.
func USDValue(normalized *big.Int, amountDecimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(normalized, -amountDecimals)
}
