package asset

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Asset identifies what a bid or refund is denominated in.
// The zero address is the sentinel for the native currency; any other
// address refers to a fungible token contract.
type Asset struct {
	addr common.Address
}

// Native returns the native-currency asset.
func Native() Asset {
	return Asset{}
}

// Token returns the asset for a fungible token contract address.
// Token(zero address) is equivalent to Native().
func Token(addr common.Address) Asset {
	return Asset{addr: addr}
}

// FromHex parses an asset from a hex address string.
// "0x0000...0000" yields the native asset.
func FromHex(s string) (Asset, error) {
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("invalid asset address: %q", s)
	}
	return Asset{addr: common.HexToAddress(s)}, nil
}

// IsNative reports whether this is the native-currency sentinel.
func (a Asset) IsNative() bool {
	return a.addr == (common.Address{})
}

// Address returns the token contract address.
// Meaningless for the native asset (returns the zero address).
func (a Asset) Address() common.Address {
	return a.addr
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.addr.Hex()
}

// MarshalJSON encodes the asset as its hex address (zero address = native),
// so stored auctions and ledger entries round-trip through pebble.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.addr.Hex())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("invalid asset address: %q", s)
	}
	a.addr = common.HexToAddress(s)
	return nil
}
