package engine

import "errors"

// Engine-level failures. Lifecycle failures live in the auction package,
// feed lookups in the oracle package; callers branch with errors.Is.
var (
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrBidTooLow          = errors.New("bid does not exceed current highest bid")
	ErrWrongAsset         = errors.New("bid asset does not match auction bidding asset")
	ErrTransferFailed     = errors.New("token transfer reported failure")
)
