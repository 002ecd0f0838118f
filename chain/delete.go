package chain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainstore-db/chainstore/chaindb"
	"github.com/chainstore-db/chainstore/errs"
)

// DelBlock removes a block and, if it was canonical, cascades the deletion
// forward through every canonical descendant. Non-canonical blocks are
// removed alone: a side-chain sibling may still anchor data another caller
// depends on, so only the block named is touched.
func (c *Core) DelBlock(blockHash common.Hash) error {
	return c.ser.LockedMutation(func() error {
		return c.delBlock(blockHash)
	})
}

func (c *Core) delBlock(blockHash common.Hash) error {
	header, err := c.db.GetHeader(blockHash, nil)
	if err != nil {
		return errs.ErrNotFound
	}
	number := header.Number.Uint64()

	inCanonical := false
	if canonHash, err := c.db.NumberToHash(number); err == nil && canonHash == blockHash {
		inCanonical = true
	}

	batch := c.db.NewBatch()

	var headHash common.Hash
	var hasHeadHash bool
	if inCanonical {
		headHash = header.ParentHash
		hasHeadHash = true
	}

	if err := c.delChild(batch, blockHash, number, headHash, hasHeadHash); err != nil {
		return err
	}

	if inCanonical {
		heads, err := c.db.GetHeads()
		if err != nil {
			return err
		}
		// headBlock rewriting is already delChild's job (it compares
		// against the live stored value as it cascades); deleteStaleAssignments
		// is invoked here only for its numberToHash cleanup and iterator-head
		// fix-up, so its own headBlock output is discarded by reusing headHash
		// as a throwaway pointer.
		if err := c.deleteStaleAssignments(batch, number, headHash, heads, &headHash); err != nil {
			return err
		}
		if err := batch.PutHeads(heads); err != nil {
			return err
		}
	}

	return batch.Commit()
}

// delChild removes (hash, number) and, when headHash is set (the block being
// deleted was canonical), cascades forward into its canonical child,
// rewriting headHeader/headBlock away from any hash being removed. Iterative
// rather than recursive, walking forward by number.
func (c *Core) delChild(batch *chaindb.Batch, hash common.Hash, number uint64, headHash common.Hash, hasHeadHash bool) error {
	for {
		if err := batch.DeleteHeader(hash, number); err != nil {
			return err
		}
		if err := batch.DeleteBody(hash, number); err != nil {
			return err
		}
		if err := batch.DeleteHeaderNumber(hash); err != nil {
			return err
		}
		if err := batch.DeleteTd(hash, number); err != nil {
			return err
		}

		if !hasHeadHash {
			return nil
		}

		if headHeaderHash, err := c.db.GetHeadHeaderHash(); err == nil && headHeaderHash == hash {
			if err := batch.PutHeadHeaderHash(headHash); err != nil {
				return err
			}
		}
		if headBlockHash, err := c.db.GetHeadBlockHash(); err == nil && headBlockHash == hash {
			if err := batch.PutHeadBlockHash(headHash); err != nil {
				return err
			}
		}

		childNumber := number + 1
		childHash, err := c.db.NumberToHash(childNumber)
		if err != nil {
			return nil
		}
		hash, number = childHash, childNumber
	}
}
