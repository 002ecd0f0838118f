package chain

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// OnBlock is the integration point for a downstream consumer (e.g. a VM
// replaying canonical blocks). reorg is true when the previous block handed
// to this callback is no longer the parent of block, signalling that the
// consumer should unwind whatever state it derived from the old suffix.
// A returned error aborts the iterator; heads are still persisted for
// whatever progress was made before the failing call.
type OnBlock func(block *types.Block, reorg bool) error

// Iterate advances the named iterator head over the canonical chain,
// invoking onBlock for each newly available block. It acquires the write
// serializer only to persist the updated heads/headHeader/headBlock once
// iteration stops, not for the duration of onBlock: the iterator is
// single-consumer per name, so no other writer contends for its head.
func (c *Core) Iterate(name string, onBlock OnBlock) error {
	heads, err := c.db.GetHeads()
	if err != nil {
		return err
	}

	startHash, ok := heads[name]
	if !ok {
		startHash, err = c.db.NumberToHash(0)
		if err != nil {
			return err
		}
	}

	startNumber, err := c.db.HashToNumber(startHash)
	if err != nil {
		return err
	}
	number := startNumber + 1

	// lastBlock is looked up by the iterator's own recorded hash, not by
	// the number's current canonical mapping: a reorg may since have
	// replaced that number with a different block, and comparing against
	// the iterator's actual last delivery is what lets it detect the reorg
	// below instead of silently following the new chain's parent linkage.
	var lastBlock *types.Block
	if b, err := c.db.GetBlock(startHash, &startNumber); err == nil {
		lastBlock = b
	}

	var cbErr error
	for {
		block, err := c.db.GetBlockByNumber(number)
		if err != nil {
			break
		}

		reorg := lastBlock != nil && lastBlock.Hash() != block.ParentHash()
		if err := onBlock(block, reorg); err != nil {
			cbErr = err
			break
		}

		heads[name] = block.Hash()
		lastBlock = block
		number++
	}

	err = c.ser.LockedMutation(func() error {
		batch := c.db.NewBatch()
		if err := batch.PutHeads(heads); err != nil {
			return err
		}
		headHeaderHash, err := c.db.GetHeadHeaderHash()
		if err == nil {
			if err := batch.PutHeadHeaderHash(headHeaderHash); err != nil {
				return err
			}
		}
		headBlockHash, err := c.db.GetHeadBlockHash()
		if err == nil {
			if err := batch.PutHeadBlockHash(headBlockHash); err != nil {
				return err
			}
		}
		return batch.Commit()
	})
	if err != nil {
		return err
	}
	return cbErr
}
