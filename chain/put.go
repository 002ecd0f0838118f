package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/chainstore-db/chainstore/errs"
)

// item is the tagged variant ChainCore branches on internally: either a
// standalone header, or a full block (header plus body). Only a full block
// or a genesis item gets a body key written, and only a full block is made
// headBlock directly; reorg fix-up (deleteStaleAssignments and
// rebuildCanonical) can still move headBlock onto a header-only item.
type item struct {
	header *types.Header
	body   *types.Body
}

func (it item) hash() common.Hash { return it.header.Hash() }
func (it item) hasBody() bool     { return it.body != nil }

func (it item) bodyOrEmpty() *types.Body {
	if it.body != nil {
		return it.body
	}
	return &types.Body{}
}

func bodyIsEmpty(b *types.Body) bool {
	return len(b.Transactions) == 0 && len(b.Uncles) == 0
}

// PutHeader inserts a standalone header. No body key is written unless
// isGenesis is set. headBlock is never set to the header directly, but if the
// header wins and headBlock named a hash it displaces from the canonical
// chain, headBlock is rewritten to this header's hash.
func (c *Core) PutHeader(header *types.Header, chainID uint64, isGenesis bool) (WriteStatus, error) {
	var status WriteStatus
	err := c.ser.LockedMutation(func() error {
		var err error
		status, err = c.putItem(item{header: header}, chainID, isGenesis)
		return err
	})
	return status, err
}

// PutBlock inserts a full block: header, body, and (if it wins) headBlock.
func (c *Core) PutBlock(block *types.Block, chainID uint64, isGenesis bool) (WriteStatus, error) {
	var status WriteStatus
	err := c.ser.LockedMutation(func() error {
		var err error
		status, err = c.putItem(item{header: block.Header(), body: block.Body()}, chainID, isGenesis)
		return err
	})
	return status, err
}

// PutHeaders inserts headers one at a time, holding the write serializer for
// the whole sequence so the batch of puts admits as a single mutation.
func (c *Core) PutHeaders(headers []*types.Header, chainID uint64) ([]WriteStatus, error) {
	statuses := make([]WriteStatus, len(headers))
	err := c.ser.LockedMutation(func() error {
		for i, h := range headers {
			st, err := c.putItem(item{header: h}, chainID, false)
			if err != nil {
				return fmt.Errorf("header %d (%s): %w", i, logHash(h.Hash()), err)
			}
			statuses[i] = st
		}
		return nil
	})
	return statuses, err
}

// PutBlocks inserts blocks one at a time under a single admitted mutation.
func (c *Core) PutBlocks(blocks []*types.Block, chainID uint64) ([]WriteStatus, error) {
	statuses := make([]WriteStatus, len(blocks))
	err := c.ser.LockedMutation(func() error {
		for i, b := range blocks {
			st, err := c.putItem(item{header: b.Header(), body: b.Body()}, chainID, false)
			if err != nil {
				return fmt.Errorf("block %d (%s): %w", i, logHash(b.Hash()), err)
			}
			statuses[i] = st
		}
		return nil
	})
	return statuses, err
}

// putItem runs the full put pipeline described in SPEC_FULL.md §4.6. The
// caller must already hold the write-serializer token.
func (c *Core) putItem(it item, chainID uint64, isGenesis bool) (WriteStatus, error) {
	// 1. Chain check.
	if chainID != c.cfg.ChainID {
		return NonStatTy, errs.ErrChainMismatch
	}
	if !it.header.Number.IsUint64() {
		return NonStatTy, errs.ErrOutOfRange
	}
	hash, number := it.hash(), it.header.Number.Uint64()

	// 2. Validation.
	if c.cfg.Validate {
		if number == 0 && !isGenesis {
			return NonStatTy, errs.ErrAlreadyHaveGenesis
		}
		if !isGenesis && c.cfg.Validator != nil {
			parentNumber := number - 1
			parent, err := c.db.GetHeader(it.header.ParentHash, &parentNumber)
			if err != nil {
				return NonStatTy, fmt.Errorf("%w: missing parent for validation: %v", errs.ErrInvalidBlock, err)
			}
			body := it.bodyOrEmpty()
			block := types.NewBlockWithHeader(it.header).WithBody(body.Transactions, body.Uncles)
			if err := c.cfg.Validator.ValidateBlock(block, parent); err != nil {
				return NonStatTy, fmt.Errorf("%w: %v", errs.ErrInvalidBlock, err)
			}
		}
	}

	// 3. PoW verification. Genesis is trusted and never mined against these
	// rules, so it is never PoW-checked regardless of cfg.Validate.
	if c.cfg.Validate && !isGenesis && c.cfg.PoW != nil {
		if err := c.cfg.PoW.VerifyPoW(it.header); err != nil {
			return NonStatTy, fmt.Errorf("%w: %v", errs.ErrInvalidPoW, err)
		}
	}

	alreadyExisted := c.headerExists(hash, number)

	// 4. Current TDs.
	var currentHeaderTd, currentBlockTd *big.Int
	var headHeaderHash, headBlockHash common.Hash
	if isGenesis {
		currentHeaderTd = new(big.Int)
		currentBlockTd = new(big.Int)
	} else {
		var err error
		headHeaderHash, err = c.db.GetHeadHeaderHash()
		if err != nil {
			return NonStatTy, fmt.Errorf("reading head header: %w", err)
		}
		headBlockHash, err = c.db.GetHeadBlockHash()
		if err != nil {
			return NonStatTy, fmt.Errorf("reading head block: %w", err)
		}
		var g errgroup.Group
		g.Go(func() error {
			td, err := c.db.GetTd(headHeaderHash, nil)
			if err != nil {
				return err
			}
			currentHeaderTd = td
			return nil
		})
		g.Go(func() error {
			td, err := c.db.GetTd(headBlockHash, nil)
			if err != nil {
				return err
			}
			currentBlockTd = td
			return nil
		})
		if err := g.Wait(); err != nil {
			return NonStatTy, fmt.Errorf("%w: reading current total difficulty: %v", errs.ErrStoreError, err)
		}
	}

	// 5. Block TD.
	var blockTd *big.Int
	if isGenesis {
		blockTd = new(big.Int).Set(it.header.Difficulty)
	} else {
		parentNumber := number - 1
		parentTd, err := c.db.GetTd(it.header.ParentHash, &parentNumber)
		if err != nil {
			return NonStatTy, errs.ErrParentMissing
		}
		blockTd = new(big.Int).Add(parentTd, it.header.Difficulty)
	}

	// 6. Batch construction.
	batch := c.db.NewBatch()
	if err := batch.PutTd(hash, number, blockTd); err != nil {
		return NonStatTy, err
	}
	if err := batch.PutHeader(it.header); err != nil {
		return NonStatTy, err
	}
	if isGenesis || (it.hasBody() && !bodyIsEmpty(it.body)) {
		if err := batch.PutBody(hash, number, it.bodyOrEmpty()); err != nil {
			return NonStatTy, err
		}
	}

	heads, err := c.db.GetHeads()
	if err != nil {
		return NonStatTy, err
	}

	// 7. Canonical decision.
	winsHeader := isGenesis || blockTd.Cmp(currentHeaderTd) > 0

	var status WriteStatus
	newHeadHeaderHash := headHeaderHash
	newHeadBlockHash := headBlockHash

	if winsHeader {
		newHeadHeaderHash = hash
		if it.hasBody() {
			newHeadBlockHash = hash
		}

		if err := c.deleteStaleAssignments(batch, number+1, hash, nil, &newHeadBlockHash); err != nil {
			return NonStatTy, err
		}
		if err := c.rebuildCanonical(batch, it.header, &newHeadBlockHash); err != nil {
			return NonStatTy, err
		}

		if alreadyExisted && headHeaderHash == hash {
			status = NonStatTy
		} else {
			status = CanonStatTy
			if !isGenesis && it.header.ParentHash != headHeaderHash {
				metricReorgs.Inc(1)
			}
		}
	} else {
		if it.hasBody() && blockTd.Cmp(currentBlockTd) > 0 {
			newHeadBlockHash = hash
		}
		if err := batch.PutHeaderNumber(hash, number); err != nil {
			return NonStatTy, err
		}
		if alreadyExisted {
			status = NonStatTy
		} else {
			status = SideStatTy
		}
	}

	// 8. Persist head pointers.
	if err := batch.PutHeads(heads); err != nil {
		return NonStatTy, err
	}
	if err := batch.PutHeadHeaderHash(newHeadHeaderHash); err != nil {
		return NonStatTy, err
	}
	if err := batch.PutHeadBlockHash(newHeadBlockHash); err != nil {
		return NonStatTy, err
	}

	// 9. Atomic commit.
	if err := batch.Commit(); err != nil {
		return NonStatTy, err
	}

	metricInserted.Inc(1)
	log.Debug("Inserted chain item", "number", number, "hash", logHash(hash), "status", status)

	return status, nil
}

func (c *Core) headerExists(hash common.Hash, number uint64) bool {
	_, err := c.db.GetHeader(hash, &number)
	return err == nil
}
