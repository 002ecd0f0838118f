package chain

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// SelectNeededHashes takes hashes presumed to be ordered oldest-first along
// some chain and returns the suffix starting at the first hash this store
// does not already know, via binary search on hashToNumber existence. If
// every hash is already known it returns an empty slice; if none are known
// it returns the whole input.
func (c *Core) SelectNeededHashes(hashes []common.Hash) []common.Hash {
	if len(hashes) == 0 {
		return nil
	}
	known := func(i int) bool {
		_, err := c.db.HashToNumber(hashes[i])
		return err == nil
	}
	// The input is ordered oldest-first, so known-ness is monotone
	// decreasing: sort.Search finds the first index that is not known.
	idx := sort.Search(len(hashes), func(i int) bool { return !known(i) })
	return hashes[idx:]
}
