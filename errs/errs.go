// Package errs holds the sentinel errors returned across the chain store.
// Callers are expected to compare with errors.Is, the same way the corpus
// compares against consensus.ErrUnknownAncestor and friends.
package errs

import "errors"

var (
	// ErrInitFailed means initialisation could not complete. It is terminal
	// for the instance: every subsequent operation fails with this error.
	ErrInitFailed = errors.New("chainstore: initialisation failed")

	// ErrChainMismatch means the item's chain id differs from the core's.
	ErrChainMismatch = errors.New("chainstore: chain id mismatch")

	// ErrInvalidBlock means structural validation failed.
	ErrInvalidBlock = errors.New("chainstore: invalid block")

	// ErrInvalidPoW means proof-of-work verification failed.
	ErrInvalidPoW = errors.New("chainstore: invalid proof of work")

	// ErrParentMissing means the required parent TD or header is absent
	// during a put.
	ErrParentMissing = errors.New("chainstore: parent missing")

	// ErrBrokenChain means the parent header is absent during canonical
	// rebuild.
	ErrBrokenChain = errors.New("chainstore: broken chain")

	// ErrNotFound means the requested block/header/TD/lookup is absent.
	ErrNotFound = errors.New("chainstore: not found")

	// ErrBodyMissing means a header is known but its body has not been
	// stored yet.
	ErrBodyMissing = errors.New("chainstore: body missing")

	// ErrAlreadyHaveGenesis means a non-genesis put claims to be genesis.
	ErrAlreadyHaveGenesis = errors.New("chainstore: already have genesis")

	// ErrOutOfRange means a block number exceeds 64-bit encoding.
	ErrOutOfRange = errors.New("chainstore: block number out of range")

	// ErrStoreError wraps a failure from the underlying key-value store.
	ErrStoreError = errors.New("chainstore: store error")
)
