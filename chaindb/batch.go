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

// stagedCacheOp records a cache mutation to apply only once the underlying
// batch has committed, so a reader never observes a cache hit for data that
// turned out not to be durable.
type stagedCacheOp struct {
	family cache.Family
	key    string
	value  []byte // nil means delete
}

// Batch accumulates a sequence of put/del operations and commits them to the
// key-value store atomically. Cache updates are staged alongside batch
// preparation and applied only after a successful commit.
type Batch struct {
	db     *DB
	eth    ethdb.Batch
	staged []stagedCacheOp
}

// NewBatch starts a new atomic batch over db.
func (db *DB) NewBatch() *Batch {
	return &Batch{db: db, eth: db.kv.NewBatch()}
}

func (b *Batch) stage(family cache.Family, key string, value []byte) {
	b.staged = append(b.staged, stagedCacheOp{family, key, value})
}

// PutHeader appends a header write to the batch.
func (b *Batch) PutHeader(header *types.Header) error {
	data, err := rlp.EncodeToBytes(header)
	if err != nil {
		return fmt.Errorf("%w: encoding header: %v", errs.ErrStoreError, err)
	}
	key := schema.HeaderKey(header.Number.Uint64(), header.Hash())
	if err := b.eth.Put(key, data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.Header, string(key), data)
	return nil
}

// PutBody appends a body write to the batch.
func (b *Batch) PutBody(hash common.Hash, number uint64, body *types.Body) error {
	data, err := rlp.EncodeToBytes(body)
	if err != nil {
		return fmt.Errorf("%w: encoding body: %v", errs.ErrStoreError, err)
	}
	key := schema.BodyKey(number, hash)
	if err := b.eth.Put(key, data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.Body, string(key), data)
	return nil
}

// PutTd appends a total-difficulty write to the batch.
func (b *Batch) PutTd(hash common.Hash, number uint64, td *big.Int) error {
	data, err := rlp.EncodeToBytes(td)
	if err != nil {
		return fmt.Errorf("%w: encoding td: %v", errs.ErrStoreError, err)
	}
	key := schema.HeaderTDKey(number, hash)
	if err := b.eth.Put(key, data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.TotalDifficulty, string(key), data)
	return nil
}

// PutCanonicalHash records number as canonically mapping to hash.
func (b *Batch) PutCanonicalHash(hash common.Hash, number uint64) error {
	key := schema.NumberToHashKey(number)
	if err := b.eth.Put(key, hash.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.NumberToHash, string(key), hash.Bytes())
	return nil
}

// DeleteCanonicalHash removes the numberToHash entry at number.
func (b *Batch) DeleteCanonicalHash(number uint64) error {
	key := schema.NumberToHashKey(number)
	if err := b.eth.Delete(key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.NumberToHash, string(key), nil)
	return nil
}

// PutHeaderNumber records the hashToNumber lookup for hash.
func (b *Batch) PutHeaderNumber(hash common.Hash, number uint64) error {
	key := schema.HeaderNumberKey(hash)
	enc := schema.BufBE8(number)
	if err := b.eth.Put(key, enc); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.HashToNumber, string(key), enc)
	return nil
}

// DeleteHeader removes the header entry at (number, hash).
func (b *Batch) DeleteHeader(hash common.Hash, number uint64) error {
	key := schema.HeaderKey(number, hash)
	if err := b.eth.Delete(key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.Header, string(key), nil)
	return nil
}

// DeleteBody removes the body entry at (number, hash).
func (b *Batch) DeleteBody(hash common.Hash, number uint64) error {
	key := schema.BodyKey(number, hash)
	if err := b.eth.Delete(key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.Body, string(key), nil)
	return nil
}

// DeleteTd removes the total-difficulty entry at (number, hash).
func (b *Batch) DeleteTd(hash common.Hash, number uint64) error {
	key := schema.HeaderTDKey(number, hash)
	if err := b.eth.Delete(key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.TotalDifficulty, string(key), nil)
	return nil
}

// DeleteHeaderNumber removes the hashToNumber entry for hash.
func (b *Batch) DeleteHeaderNumber(hash common.Hash) error {
	key := schema.HeaderNumberKey(hash)
	if err := b.eth.Delete(key); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.stage(cache.HashToNumber, string(key), nil)
	return nil
}

// PutHeads persists the full name -> hash iterator-head mapping as JSON.
func (b *Batch) PutHeads(heads map[string]common.Hash) error {
	raw := make(map[string]string, len(heads))
	for name, hash := range heads {
		raw[name] = hash.Hex()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: encoding heads: %v", errs.ErrStoreError, err)
	}
	if err := b.eth.Put(schema.HeadsKey, data); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	return nil
}

// PutHeadHeaderHash persists the head-header pointer.
func (b *Batch) PutHeadHeaderHash(hash common.Hash) error {
	if err := b.eth.Put(schema.HeadHeaderKey, hash.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	return nil
}

// PutHeadBlockHash persists the head-block pointer.
func (b *Batch) PutHeadBlockHash(hash common.Hash) error {
	if err := b.eth.Put(schema.HeadBlockKey, hash.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	return nil
}

// Commit writes every staged operation to the store atomically. On success,
// the cache mutations staged during batch preparation are applied; on
// failure the cache is left untouched and the store is unchanged (assuming
// the underlying ethdb.Batch is itself atomic).
func (b *Batch) Commit() error {
	if err := b.eth.Write(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStoreError, err)
	}
	for _, op := range b.staged {
		if op.value == nil {
			b.db.cache.Del(op.family, op.key)
		} else {
			b.db.cache.Put(op.family, op.key, op.value)
		}
	}
	return nil
}

// ValueSize reports the accumulated size of the batch, useful for callers
// that want to flush large inserts (putBlocks/putHeaders) in chunks.
func (b *Batch) ValueSize() int {
	return b.eth.ValueSize()
}
