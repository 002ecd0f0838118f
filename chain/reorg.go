package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainstore-db/chainstore/chaindb"
	"github.com/chainstore-db/chainstore/errs"
)

// deleteStaleAssignments walks forward from n while numberToHash(n) still
// resolves, erasing each entry: those numbers used to belong to a canonical
// chain that no longer holds. headBlock, the singleton pointer, is rewritten
// to headHash if it was aimed at one of the now-stale hashes.
//
// heads (the named iterator-head mapping) is only rewritten when non-nil.
// The delete cascade passes the real map, because there the stale hashes are
// also being destroyed: a head still pointing at a deleted hash could never
// be resolved again. A put-time reorg, by contrast, only decanonicalizes the
// stale chain — its headers, bodies and hashToNumber entries survive — so
// put callers pass nil here and leave named heads untouched. A head that
// still thinks it's sitting on the orphaned chain will notice the mismatch
// and report reorg=true the next time it's iterated, instead of having been
// silently fast-forwarded past the fork point.
func (c *Core) deleteStaleAssignments(batch *chaindb.Batch, n uint64, headHash common.Hash, heads map[string]common.Hash, headBlock *common.Hash) error {
	for {
		staleHash, err := c.db.NumberToHash(n)
		if err != nil {
			if err == errs.ErrNotFound {
				return nil
			}
			return err
		}
		if err := batch.DeleteCanonicalHash(n); err != nil {
			return err
		}
		if heads != nil {
			for name, h := range heads {
				if h == staleHash {
					heads[name] = headHash
				}
			}
		}
		if *headBlock == staleHash {
			*headBlock = headHash
		}
		n++
	}
}

// rebuildCanonical walks backward from the just-accepted header, rewriting
// numberToHash/hashToNumber at each ancestor until it reaches a number whose
// existing canonical hash already matches (the old and new chains share that
// ancestor, so everything below it is already correct). Iterative rather
// than recursive, walking backward one ancestor at a time.
//
// headBlock, the singleton pointer, is flagged if a hash it names is
// displaced during the walk, and rewritten to the accepted tip hash once the
// walk finds the shared ancestor. Named iterator heads are never touched
// here — see deleteStaleAssignments for why the put path leaves them alone.
// If the walk instead runs all the way back to genesis without ever finding
// a shared ancestor (a full chain replacement from genesis), a flagged
// headBlock is left untouched; that degenerate case has no unambiguous old
// tip to diff against.
func (c *Core) rebuildCanonical(batch *chaindb.Batch, header *types.Header, headBlock *common.Hash) error {
	topHash := header.Hash()
	current := header
	headBlockStale := false

	for {
		hash := current.Hash()
		number := current.Number.Uint64()

		staleHash, err := c.db.NumberToHash(number)
		switch {
		case err == nil && staleHash == hash:
			if headBlockStale {
				*headBlock = topHash
			}
			return nil
		case err != nil && err != errs.ErrNotFound:
			return err
		}

		if err := batch.PutCanonicalHash(hash, number); err != nil {
			return err
		}
		if err := batch.PutHeaderNumber(hash, number); err != nil {
			return err
		}

		if err == nil && *headBlock == staleHash {
			headBlockStale = true
		}

		if number == 0 {
			return nil
		}

		parentNumber := number - 1
		parent, err := c.db.GetHeader(current.ParentHash, &parentNumber)
		if err != nil {
			return fmt.Errorf("%w: loading ancestor %d: %v", errs.ErrBrokenChain, parentNumber, err)
		}
		current = parent
	}
}
