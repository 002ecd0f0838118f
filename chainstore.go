// Package chainstore is the PublicAPI surface: putBlock, putHeader,
// putBlocks, putHeaders, getBlock, getBlocks, getHead, getLatestHeader,
// getLatestBlock, delBlock, iterator and selectNeededHashes, fronted by the
// InitGate readiness latch described in SPEC_FULL.md §4.5.
//
// Modeled on the corpus's top-level BlockChain/HeaderChain constructors: a
// single entry point that wraps a KV store, starts background
// initialisation, and exposes a narrow set of exported methods that all
// suspend on readiness before touching chain state.
package chainstore

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/chainstore-db/chainstore/chain"
	"github.com/chainstore-db/chainstore/chaindb"
	"github.com/chainstore-db/chainstore/errs"
	"github.com/chainstore-db/chainstore/gate"
)

// Config configures a Store.
type Config struct {
	ChainID uint64
	Genesis *types.Block

	// Validate enables structural validation and PoW verification on every
	// put. The zero value leaves validation off; set true for anything but
	// a trusted bulk import from a source that already validated.
	Validate bool

	Validator chain.Validator
	PoW       chain.PoWVerifier

	// CacheCapacity is the per-family write-cache size; 0 selects the
	// package default.
	CacheCapacity int
}

// Store is the persistent blockchain store's public entry point. Every
// exported method suspends on the readiness gate before proceeding, and
// mutating methods additionally suspend on the core's write serializer.
type Store struct {
	core *chain.Core
	gate *gate.Gate
}

// Open wraps kv (a fresh in-memory database when kv is nil) and starts
// background initialisation: loading existing
// chain state, or constructing and persisting cfg.Genesis if the store is
// empty. Open returns immediately; callers do not need to wait for
// initialisation themselves — every method call suspends on it internally.
func Open(kv ethdb.Database, cfg Config) *Store {
	if cfg.Genesis == nil {
		panic("chainstore: Config.Genesis is required")
	}
	if kv == nil {
		kv = rawdb.NewMemoryDatabase()
	}
	validate := cfg.Validate
	db := chaindb.Wrap(kv, cfg.CacheCapacity)
	core := chain.New(db, chain.Config{
		ChainID:   cfg.ChainID,
		Validate:  validate,
		Validator: cfg.Validator,
		PoW:       cfg.PoW,
	})

	s := &Store{core: core}
	s.gate = gate.New(func() error {
		return bootstrap(core, cfg.Genesis, cfg.ChainID)
	})
	return s
}

// bootstrap implements InitGate's three-step init (SPEC_FULL.md §4.5): if
// genesis already exists on disk, nothing is written; otherwise the
// supplied genesis block is persisted through the normal put path with
// isGenesis = true.
func bootstrap(core *chain.Core, genesis *types.Block, chainID uint64) error {
	_, err := core.DB().NumberToHash(0)
	if err == nil {
		return nil
	}
	if err != errs.ErrNotFound {
		return fmt.Errorf("%w: checking for existing genesis: %v", errs.ErrInitFailed, err)
	}

	status, err := core.PutBlock(genesis, chainID, true)
	if err != nil {
		return fmt.Errorf("%w: persisting genesis: %v", errs.ErrInitFailed, err)
	}
	log.Info("Persisted genesis block", "hash", genesis.Hash(), "status", status)
	return nil
}

func (s *Store) await() error {
	if err := s.gate.Await(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInitFailed, err)
	}
	return nil
}

// PutBlock inserts a full block.
func (s *Store) PutBlock(block *types.Block, chainID uint64) (chain.WriteStatus, error) {
	if err := s.await(); err != nil {
		return chain.NonStatTy, err
	}
	return s.core.PutBlock(block, chainID, false)
}

// PutHeader inserts a standalone header.
func (s *Store) PutHeader(header *types.Header, chainID uint64) (chain.WriteStatus, error) {
	if err := s.await(); err != nil {
		return chain.NonStatTy, err
	}
	return s.core.PutHeader(header, chainID, false)
}

// PutBlocks inserts a batch of full blocks.
func (s *Store) PutBlocks(blocks []*types.Block, chainID uint64) ([]chain.WriteStatus, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	return s.core.PutBlocks(blocks, chainID)
}

// PutHeaders inserts a batch of standalone headers.
func (s *Store) PutHeaders(headers []*types.Header, chainID uint64) ([]chain.WriteStatus, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	return s.core.PutHeaders(headers, chainID)
}

// GetBlock composes a block from its header and body by hash, resolving the
// number via hashToNumber when not supplied.
func (s *Store) GetBlock(hash common.Hash, number *uint64) (*types.Block, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	return s.core.DB().GetBlock(hash, number)
}

// GetBlocks walks the chain by number, per SPEC_FULL.md §4.12.
func (s *Store) GetBlocks(hash common.Hash, number uint64, reverse bool, skip, maxBlocks int) ([]*types.Block, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	return s.core.GetBlocks(hash, number, reverse, skip, maxBlocks)
}

// GetHead returns the current (headHeader, headBlock) pair.
func (s *Store) GetHead() (headHeader, headBlock common.Hash, err error) {
	if err := s.await(); err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	headHeader, err = s.core.DB().GetHeadHeaderHash()
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	headBlock, err = s.core.DB().GetHeadBlockHash()
	if err != nil {
		return common.Hash{}, common.Hash{}, err
	}
	return headHeader, headBlock, nil
}

// GetLatestHeader returns the header at headHeader.
func (s *Store) GetLatestHeader() (*types.Header, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	hash, err := s.core.DB().GetHeadHeaderHash()
	if err != nil {
		return nil, err
	}
	return s.core.DB().GetHeader(hash, nil)
}

// GetLatestBlock returns the block at headBlock.
func (s *Store) GetLatestBlock() (*types.Block, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	hash, err := s.core.DB().GetHeadBlockHash()
	if err != nil {
		return nil, err
	}
	return s.core.DB().GetBlock(hash, nil)
}

// DelBlock removes a block, cascading through canonical descendants if it
// was canonical.
func (s *Store) DelBlock(hash common.Hash) error {
	if err := s.await(); err != nil {
		return err
	}
	return s.core.DelBlock(hash)
}

// Iterate advances the named iterator head over the canonical chain.
func (s *Store) Iterate(name string, onBlock chain.OnBlock) error {
	if err := s.await(); err != nil {
		return err
	}
	return s.core.Iterate(name, onBlock)
}

// SelectNeededHashes returns the suffix of hashes (ordered oldest-first)
// this store does not already know.
func (s *Store) SelectNeededHashes(hashes []common.Hash) ([]common.Hash, error) {
	if err := s.await(); err != nil {
		return nil, err
	}
	return s.core.SelectNeededHashes(hashes), nil
}

// TotalDifficulty is an alias of big.Int for total-difficulty values. No
// Store method returns one.
type TotalDifficulty = big.Int
