package extern

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Collaborator interfaces the engine consumes. The asset and token
// contracts live outside the engine's trust boundary: the engine never
// assumes a call succeeded without checking its reported outcome.

// AssetContract is the non-fungible asset custody contract.
type AssetContract interface {
	// OwnerOf returns the current owner of an asset id.
	OwnerOf(id uint64) (common.Address, error)

	// IsApprovedOrOwner reports whether operator may transfer the asset.
	IsApprovedOrOwner(operator common.Address, id uint64) (bool, error)

	// TransferFrom moves the asset between accounts.
	TransferFrom(from, to common.Address, id uint64) error
}

// TokenContract is a fungible token contract.
// TransferFrom reports success as a boolean rather than a guaranteed
// error: ok == false with a nil error is a legitimate, observable failure
// and callers must branch on it.
type TokenContract interface {
	TransferFrom(from, to common.Address, amount *big.Int) (bool, error)
	BalanceOf(account common.Address) *big.Int
}

// Bank moves native currency between accounts. The engine pulls attached
// bid value into its own custody account and pays refunds and settlement
// proceeds back out through it.
type Bank interface {
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(account common.Address) *big.Int
}

// ContractResolver resolves contract addresses to their implementations.
type ContractResolver interface {
	AssetContract(addr common.Address) (AssetContract, error)
	TokenContract(addr common.Address) (TokenContract, error)
}
