// Package schema computes the binary keys used by the chain store. It holds
// no state: every function is a pure mapping from a logical key (a block
// number, a hash, or nothing) to the byte string stored under it in the
// underlying key-value database.
//
// The layout matches the widely deployed Geth-compatible schema byte for
// byte: callers restoring an existing database, or interoperating with one,
// depend on these exact prefixes and field orders.
package schema

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed keys.
var (
	HeadHeaderKey = []byte("LastHeader")
	HeadBlockKey  = []byte("LastBlock")
	HeadsKey      = []byte("heads")
)

// Family prefixes. headerPrefix + num (uint64 big endian) + hash -> header
// headerTDSuffix is appended after headerPrefix + num + hash to form the td key, so
// that headers and their total difficulty sort next to each other.
var (
	headerPrefix     = []byte("h")
	headerTDSuffix   = []byte("t")
	headerHashSuffix = []byte("n")
	bodyPrefix       = []byte("b")
	blockHashPrefix  = []byte("H")
)

// BufBE8 encodes n as an 8-byte big-endian number. It cannot fail: n is a
// uint64, and block numbers beyond 64 bits are rejected before conversion
// (chain.putItem returns errs.ErrOutOfRange for them).
func BufBE8(n uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, n)
	return enc
}

// HeaderKey = headerPrefix + num(8 bytes big endian) + hash.
func HeaderKey(number uint64, hash common.Hash) []byte {
	return append(append(headerPrefix, BufBE8(number)...), hash.Bytes()...)
}

// HeaderTDKey = headerPrefix + num(8 bytes big endian) + hash + headerTDSuffix.
func HeaderTDKey(number uint64, hash common.Hash) []byte {
	return append(HeaderKey(number, hash), headerTDSuffix...)
}

// HeaderHashKey = headerPrefix + num(8 bytes big endian) + headerHashSuffix.
func HeaderHashKey(number uint64) []byte {
	return append(append(headerPrefix, BufBE8(number)...), headerHashSuffix...)
}

// BodyKey = bodyPrefix + num(8 bytes big endian) + hash.
func BodyKey(number uint64, hash common.Hash) []byte {
	return append(append(bodyPrefix, BufBE8(number)...), hash.Bytes()...)
}

// HeaderNumberKey = blockHashPrefix + hash -> (hashToNumber).
func HeaderNumberKey(hash common.Hash) []byte {
	return append(blockHashPrefix, hash.Bytes()...)
}

// NumberToHashKey is an alias of HeaderHashKey; kept distinct so call sites
// can name their intent (number -> canonical hash) without reaching into the
// header family directly.
func NumberToHashKey(number uint64) []byte {
	return HeaderHashKey(number)
}
