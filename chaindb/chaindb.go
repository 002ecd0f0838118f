// Package chaindb is the typed access layer over the key-value store:
// encoded reads for headers/bodies/TD/lookups, and atomic batch writes. It
// wraps schema (key layout) and cache (write-through LRUs), and is the only
// package that knows the on-disk byte encoding of a chain entity.
//
// Modeled on the corpus's core/chaindb.ChainDB: a thin Wrap(ethdb.Database)
// constructor, typed Read*/Has* accessors, and a Batch that stages writes
// atomically.
package chaindb

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/chainstore-db/chainstore/cache"
	"github.com/chainstore-db/chainstore/errs"
	"github.com/chainstore-db/chainstore/schema"
)

// DB is the typed access layer consumed by ChainCore.
type DB struct {
	kv    ethdb.Database
	cache *cache.Cache
}

// Wrap builds a DB over an existing key-value store, with a fresh write-cache
// of the given per-family capacity (0 selects cache.DefaultCapacity).
func Wrap(kv ethdb.Database, cacheCapacity int) *DB {
	return &DB{kv: kv, cache: cache.New(cacheCapacity)}
}

// ---- headers ----

// GetHeaderRLP returns the RLP-encoded header at (number, hash), or nil if
// absent. If number is nil it is resolved via HashToNumber first.
func (db *DB) GetHeaderRLP(hash common.Hash, number *uint64) ([]byte, error) {
	n, err := db.resolveNumber(hash, number)
	if err != nil {
		return nil, err
	}
	key := schema.HeaderKey(n, hash)
	if v, ok := db.cache.Get(cache.Header, string(key)); ok {
		return v, nil
	}
	data, err := db.kv.Get(key)
	if err != nil || len(data) == 0 {
		return nil, nil
	}
	db.cache.Put(cache.Header, string(key), data)
	return data, nil
}

// GetHeader returns the decoded header at (number, hash), or errs.ErrNotFound.
func (db *DB) GetHeader(hash common.Hash, number *uint64) (*types.Header, error) {
	data, err := db.GetHeaderRLP(hash, number)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errs.ErrNotFound
	}
	header := new(types.Header)
	if err := rlp.DecodeBytes(data, header); err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", errs.ErrStoreError, err)
	}
	return header, nil
}

// ---- bodies ----

// GetBodyRLP returns the RLP-encoded body at (number, hash), or nil if
// absent (including when the block legitimately has no stored body, e.g. a
// header-only put).
func (db *DB) GetBodyRLP(hash common.Hash, number *uint64) ([]byte, error) {
	n, err := db.resolveNumber(hash, number)
	if err != nil {
		return nil, err
	}
	key := schema.BodyKey(n, hash)
	if v, ok := db.cache.Get(cache.Body, string(key)); ok {
		return v, nil
	}
	data, err := db.kv.Get(key)
	if err != nil || len(data) == 0 {
		return nil, nil
	}
	db.cache.Put(cache.Body, string(key), data)
	return data, nil
}

// GetBody returns the decoded body at (number, hash). It returns
// errs.ErrBodyMissing (not ErrNotFound) when no body key is present, so
// callers composing a full block can distinguish "block unknown" from
// "header known, body not yet received".
func (db *DB) GetBody(hash common.Hash, number *uint64) (*types.Body, error) {
	data, err := db.GetBodyRLP(hash, number)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errs.ErrBodyMissing
	}
	body := new(types.Body)
	if err := rlp.DecodeBytes(data, body); err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", errs.ErrStoreError, err)
	}
	return body, nil
}

// ---- block composition ----

// GetBlock composes a header and a body into a block, by hash or by number.
// If the header is unknown it returns errs.ErrNotFound; if the header is
// known but the body is not (and the block is not genesis) it returns
// errs.ErrBodyMissing.
func (db *DB) GetBlock(hash common.Hash, number *uint64) (*types.Block, error) {
	header, err := db.GetHeader(hash, number)
	if err != nil {
		return nil, err
	}
	n := header.Number.Uint64()
	body, err := db.GetBody(hash, &n)
	if err != nil {
		if err == errs.ErrBodyMissing && n == 0 {
			// Genesis is permitted to have an empty, unstored body.
			return types.NewBlockWithHeader(header), nil
		}
		return nil, err
	}
	return types.NewBlockWithHeader(header).WithBody(body.Transactions, body.Uncles), nil
}

// GetBlockByNumber resolves number to its canonical hash, then composes the
// block.
func (db *DB) GetBlockByNumber(number uint64) (*types.Block, error) {
	hash, err := db.NumberToHash(number)
	if err != nil {
		return nil, err
	}
	return db.GetBlock(hash, &number)
}

// ---- total difficulty ----

// GetTd returns the total difficulty recorded at (number, hash).
func (db *DB) GetTd(hash common.Hash, number *uint64) (*big.Int, error) {
	n, err := db.resolveNumber(hash, number)
	if err != nil {
		return nil, err
	}
	key := schema.HeaderTDKey(n, hash)
	if v, ok := db.cache.Get(cache.TotalDifficulty, string(key)); ok {
		td := new(big.Int)
		if err := rlp.DecodeBytes(v, td); err != nil {
			return nil, fmt.Errorf("%w: decoding cached td: %v", errs.ErrStoreError, err)
		}
		return td, nil
	}
	data, err := db.kv.Get(key)
	if err != nil || len(data) == 0 {
		return nil, errs.ErrNotFound
	}
	td := new(big.Int)
	if err := rlp.DecodeBytes(data, td); err != nil {
		return nil, fmt.Errorf("%w: decoding td: %v", errs.ErrStoreError, err)
	}
	db.cache.Put(cache.TotalDifficulty, string(key), data)
	return td, nil
}

// ---- number <-> hash lookups ----

// HashToNumber returns the block number of a persisted header, or
// errs.ErrNotFound.
func (db *DB) HashToNumber(hash common.Hash) (uint64, error) {
	key := schema.HeaderNumberKey(hash)
	if v, ok := db.cache.Get(cache.HashToNumber, string(key)); ok {
		return decodeBE8(v), nil
	}
	data, err := db.kv.Get(key)
	if err != nil || len(data) != 8 {
		return 0, errs.ErrNotFound
	}
	db.cache.Put(cache.HashToNumber, string(key), data)
	return decodeBE8(data), nil
}

// NumberToHash returns the canonical hash at number, or errs.ErrNotFound.
func (db *DB) NumberToHash(number uint64) (common.Hash, error) {
	key := schema.NumberToHashKey(number)
	if v, ok := db.cache.Get(cache.NumberToHash, string(key)); ok {
		return common.BytesToHash(v), nil
	}
	data, err := db.kv.Get(key)
	if err != nil || len(data) == 0 {
		return common.Hash{}, errs.ErrNotFound
	}
	db.cache.Put(cache.NumberToHash, string(key), data)
	return common.BytesToHash(data), nil
}

// ---- heads ----

// GetHeads returns the name -> hash iterator-head mapping, or an empty
// mapping if none has ever been persisted.
func (db *DB) GetHeads() (map[string]common.Hash, error) {
	data, err := db.kv.Get(schema.HeadsKey)
	if err != nil || len(data) == 0 {
		return map[string]common.Hash{}, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding heads: %v", errs.ErrStoreError, err)
	}
	heads := make(map[string]common.Hash, len(raw))
	for name, hex := range raw {
		heads[name] = common.HexToHash(hex)
	}
	return heads, nil
}

// GetHeadHeaderHash returns the persisted head-header hash, or
// errs.ErrNotFound.
func (db *DB) GetHeadHeaderHash() (common.Hash, error) {
	data, err := db.kv.Get(schema.HeadHeaderKey)
	if err != nil || len(data) == 0 {
		return common.Hash{}, errs.ErrNotFound
	}
	return common.BytesToHash(data), nil
}

// GetHeadBlockHash returns the persisted head-block hash, or
// errs.ErrNotFound.
func (db *DB) GetHeadBlockHash() (common.Hash, error) {
	data, err := db.kv.Get(schema.HeadBlockKey)
	if err != nil || len(data) == 0 {
		return common.Hash{}, errs.ErrNotFound
	}
	return common.BytesToHash(data), nil
}

func (db *DB) resolveNumber(hash common.Hash, number *uint64) (uint64, error) {
	if number != nil {
		return *number, nil
	}
	return db.HashToNumber(hash)
}

func decodeBE8(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}
