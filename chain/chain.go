// Package chain is the algorithmic heart of the store: canonical-chain
// selection, reorganisation, iterator-head bookkeeping, and deletion
// cascades. It consumes a chaindb.DB for persistence and owns a
// serializer.Serializer so that, regardless of how many goroutines call its
// mutating methods concurrently, at most one put/delete pipeline is ever
// in flight.
//
// Modeled on the corpus's core.HeaderChain (InsertHeaderChain, WriteStatus,
// SetCurrentHeader) fused with the older core.ChainManager's
// total-difficulty comparison put path, generalised so a single type handles
// both standalone headers and full blocks.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/chainstore-db/chainstore/chaindb"
	"github.com/chainstore-db/chainstore/serializer"
)

// Validator structurally validates a candidate block or header-only item
// against its declared parent. It is an external collaborator: RLP framing,
// transaction/uncle well-formedness and timestamp monotonicity are the
// caller's concern, not this package's.
type Validator interface {
	ValidateBlock(block *types.Block, parent *types.Header) error
}

// PoWVerifier checks a header's proof of work. Production wiring adapts a
// real consensus.Engine (e.g. consensus/ethash) behind this narrow
// interface; the chain core never depends on the wider
// consensus.Engine/ChainHeaderReader contract.
type PoWVerifier interface {
	VerifyPoW(header *types.Header) error
}

// Config configures a Core.
type Config struct {
	ChainID uint64

	// Validate, when true, runs structural validation and PoW verification
	// on every put. The zero value leaves it off; set true for anything but
	// a trusted bulk import.
	Validate bool

	Validator Validator
	PoW       PoWVerifier
}

var (
	metricInserted = metrics.NewRegisteredCounter("chainstore/chain/inserted", nil)
	metricReorgs   = metrics.NewRegisteredCounter("chainstore/chain/reorgs", nil)
)

// Core is the canonical-chain engine. The zero value is not usable; build
// one with New.
type Core struct {
	db  *chaindb.DB
	cfg Config
	ser *serializer.Serializer
}

// New builds a Core over db with the given configuration. It does not touch
// the store: genesis bootstrap and readiness gating are the caller's
// responsibility (see the root chainstore package's InitGate wiring).
func New(db *chaindb.DB, cfg Config) *Core {
	return &Core{db: db, cfg: cfg, ser: serializer.New()}
}

// DB exposes the underlying typed store, for callers (e.g. the root
// package's genesis bootstrap) that need direct access before the chain has
// any canonical state.
func (c *Core) DB() *chaindb.DB { return c.db }

func totalDifficultyOf(header *types.Header, parentTd *big.Int) *big.Int {
	if parentTd == nil {
		return new(big.Int).Set(header.Difficulty)
	}
	return new(big.Int).Add(parentTd, header.Difficulty)
}

func logHash(h common.Hash) string { return h.Hex()[:10] }
