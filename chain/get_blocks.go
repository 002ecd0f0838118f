package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GetBlocks walks the chain by number starting at the block identified by
// hash (if non-zero) or number, yielding up to maxBlocks blocks. reverse
// walks toward genesis; otherwise it walks toward higher numbers. skip
// intermediate blocks are traversed, but not collected, between each
// yielded block. Traversal stops early (without error) on the first missing
// block, returning whatever was gathered so far.
func (c *Core) GetBlocks(hash common.Hash, number uint64, reverse bool, skip, maxBlocks int) ([]*types.Block, error) {
	var current uint64
	if hash != (common.Hash{}) {
		n, err := c.db.HashToNumber(hash)
		if err != nil {
			return nil, nil
		}
		current = n
	} else {
		current = number
	}

	blocks := make([]*types.Block, 0, maxBlocks)
	for len(blocks) < maxBlocks {
		block, err := c.db.GetBlockByNumber(current)
		if err != nil {
			break
		}
		blocks = append(blocks, block)

		step := uint64(skip) + 1
		if reverse {
			if current < step {
				break
			}
			current -= step
		} else {
			current += step
		}
	}
	return blocks, nil
}
