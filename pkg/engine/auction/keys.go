package auction

import (
	"fmt"
)

// Pebble key schema.
// Auctions are stored one record per key under "auc:"; the record for a
// key is overwritten in place on every accepted bid and on settlement.

const prefixAuction = "auc:"

// auctionKey returns the key for an auction record.
// Format: "auc:{contract}:{assetID}"
// Example: "auc:0x742d35Cc...:1"
func auctionKey(k Key) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", prefixAuction, k.Contract.Hex(), k.ID))
}

// auctionPrefix returns the prefix covering all auction records.
func auctionPrefix() []byte {
	return []byte(prefixAuction)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
