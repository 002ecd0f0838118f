package chain

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainstore-db/chainstore/chaindb"
	"github.com/chainstore-db/chainstore/errs"
)

const testChainID = 1

func newHeader(parent common.Hash, number uint64, difficulty int64, extra string) *types.Header {
	return &types.Header{
		ParentHash: parent,
		Number:     big.NewInt(int64(number)),
		Difficulty: big.NewInt(difficulty),
		Extra:      []byte(extra),
	}
}

// newNonEmptyBlock attaches a synthetic uncle so the body is never empty,
// exercising the same body-persisted path real blocks take.
func newNonEmptyBlock(header *types.Header) *types.Block {
	uncle := &types.Header{ParentHash: header.ParentHash, Extra: append([]byte("uncle-"), header.Extra...)}
	return types.NewBlockWithHeader(header).WithBody(nil, []*types.Header{uncle})
}

func newTestCore(t *testing.T) (*Core, *types.Block) {
	t.Helper()
	db := chaindb.Wrap(rawdb.NewMemoryDatabase(), 0)
	core := New(db, Config{ChainID: testChainID})

	genesis := newNonEmptyBlock(newHeader(common.Hash{}, 0, 1, "genesis"))
	if _, err := core.PutBlock(genesis, testChainID, true); err != nil {
		t.Fatalf("genesis put: %v", err)
	}
	return core, genesis
}

// extendChain puts n blocks on top of parent, each with the given per-block
// difficulty, returning them in oldest-first order.
func extendChain(t *testing.T, core *Core, parent *types.Header, n int, difficulty int64, tag string) []*types.Block {
	t.Helper()
	blocks := make([]*types.Block, 0, n)
	parentHash, parentNumber := parent.Hash(), parent.Number.Uint64()
	for i := 1; i <= n; i++ {
		h := newHeader(parentHash, parentNumber+uint64(i), difficulty, fmt.Sprintf("%s-%d", tag, i))
		b := newNonEmptyBlock(h)
		status, err := core.PutBlock(b, testChainID, false)
		if err != nil {
			t.Fatalf("put block %d: %v", i, err)
		}
		if status == NonStatTy {
			t.Fatalf("put block %d: unexpected NonStatTy for a fresh insert", i)
		}
		blocks = append(blocks, b)
		parentHash = h.Hash()
	}
	return blocks
}

func TestPutBlockExtendsCanonicalChain(t *testing.T) {
	core, genesis := newTestCore(t)
	blocks := extendChain(t, core, genesis.Header(), 5, 10, "main")

	head := blocks[len(blocks)-1]
	headHeaderHash, err := core.DB().GetHeadHeaderHash()
	if err != nil || headHeaderHash != head.Hash() {
		t.Fatalf("headHeader = %v, %v, want %v", headHeaderHash, err, head.Hash())
	}
	headBlockHash, err := core.DB().GetHeadBlockHash()
	if err != nil || headBlockHash != head.Hash() {
		t.Fatalf("headBlock = %v, %v, want %v", headBlockHash, err, head.Hash())
	}

	for i, b := range blocks {
		number := uint64(i + 1)
		gotHash, err := core.DB().NumberToHash(number)
		if err != nil || gotHash != b.Hash() {
			t.Fatalf("numberToHash(%d) = %v, %v, want %v", number, gotHash, err, b.Hash())
		}
	}
}

func TestReorgSwitchesCanonical(t *testing.T) {
	core, genesis := newTestCore(t)
	main := extendChain(t, core, genesis.Header(), 5, 10, "main")

	// Alt chain forking after block 2, with far higher per-block difficulty
	// so its first block's cumulative TD (21+100=121) already overtakes the
	// mainline head's (51).
	alt := extendChain(t, core, main[1].Header(), 4, 100, "alt")
	altHead := alt[len(alt)-1]

	headHeaderHash, err := core.DB().GetHeadHeaderHash()
	if err != nil || headHeaderHash != altHead.Hash() {
		t.Fatalf("headHeader after reorg = %v, %v, want %v", headHeaderHash, err, altHead.Hash())
	}

	if got, err := core.DB().NumberToHash(3); err != nil || got != alt[0].Hash() {
		t.Fatalf("numberToHash(3) = %v, %v, want alt[0] %v", got, err, alt[0].Hash())
	}
	if got, err := core.DB().NumberToHash(6); err != nil || got != altHead.Hash() {
		t.Fatalf("numberToHash(6) = %v, %v, want %v", got, err, altHead.Hash())
	}

	// Orphaned mainline blocks remain retrievable by hash...
	for _, b := range main[2:] {
		n := b.NumberU64()
		if _, err := core.DB().GetHeader(b.Hash(), &n); err != nil {
			t.Fatalf("orphaned header %d missing: %v", n, err)
		}
	}
	// ...but are no longer canonical.
	if got, _ := core.DB().NumberToHash(4); got == main[3].Hash() {
		t.Fatalf("numberToHash(4) still points at orphaned mainline block")
	}
}

func TestIteratorObservesReorg(t *testing.T) {
	core, genesis := newTestCore(t)
	main := extendChain(t, core, genesis.Header(), 5, 10, "main")

	var seen []*types.Block
	var reorgs []bool
	walk := func(b *types.Block, reorg bool) error {
		seen = append(seen, b)
		reorgs = append(reorgs, reorg)
		return nil
	}
	if err := core.Iterate("vm", walk); err != nil {
		t.Fatalf("first iterate: %v", err)
	}
	if len(seen) != 5 || seen[4].Hash() != main[4].Hash() {
		t.Fatalf("first iterate did not walk the mainline: %d blocks", len(seen))
	}

	alt := extendChain(t, core, main[1].Header(), 4, 100, "alt")
	altHead := alt[len(alt)-1]

	// The reorg above does not fast-forward the "vm" head: a put-time reorg
	// only decanonicalizes main[2..4], it doesn't delete them, so heads["vm"]
	// is left pointing at main[4] (number 5) exactly as the first iterate
	// left it. The second iterate resumes from number 6, sees altHead there,
	// and must notice that altHead's parent (alt[2], not main[4]) doesn't
	// match the block it last delivered.
	seen, reorgs = nil, nil
	if err := core.Iterate("vm", walk); err != nil {
		t.Fatalf("second iterate: %v", err)
	}
	if len(seen) != 1 || seen[0].Hash() != altHead.Hash() {
		t.Fatalf("second iterate saw %v, want exactly [altHead]", seen)
	}
	if !reorgs[0] {
		t.Fatalf("first block after reorg: reorg = false, want true")
	}
}

func TestDeleteCanonicalMiddleCascades(t *testing.T) {
	core, genesis := newTestCore(t)
	main := extendChain(t, core, genesis.Header(), 5, 10, "main")

	if err := core.DelBlock(main[2].Hash()); err != nil {
		t.Fatalf("DelBlock: %v", err)
	}

	for _, b := range main[2:] {
		n := b.NumberU64()
		if _, err := core.DB().GetHeader(b.Hash(), &n); err != errs.ErrNotFound {
			t.Fatalf("header for deleted descendant %d = %v, want ErrNotFound", n, err)
		}
	}

	headHeaderHash, err := core.DB().GetHeadHeaderHash()
	if err != nil || headHeaderHash != main[1].Hash() {
		t.Fatalf("headHeader after cascade delete = %v, %v, want %v", headHeaderHash, err, main[1].Hash())
	}
}

type rejectingPoW struct{}

func (rejectingPoW) VerifyPoW(*types.Header) error { return fmt.Errorf("bad nonce") }

func TestInvalidPoWRejected(t *testing.T) {
	db := chaindb.Wrap(rawdb.NewMemoryDatabase(), 0)
	core := New(db, Config{ChainID: testChainID, Validate: true, PoW: rejectingPoW{}})

	genesis := newNonEmptyBlock(newHeader(common.Hash{}, 0, 1, "genesis"))
	if _, err := core.PutBlock(genesis, testChainID, true); err != nil {
		t.Fatalf("genesis put: %v", err)
	}

	bad := newNonEmptyBlock(newHeader(genesis.Hash(), 1, 10, "bad"))
	if _, err := core.PutBlock(bad, testChainID, false); !errors.Is(err, errs.ErrInvalidPoW) {
		t.Fatalf("PutBlock with bad PoW = %v, want ErrInvalidPoW", err)
	}

	n := uint64(1)
	if _, err := core.DB().GetHeader(bad.Hash(), &n); err != errs.ErrNotFound {
		t.Fatalf("rejected block's header present: %v", err)
	}
}

func TestSelectNeededHashes(t *testing.T) {
	core, genesis := newTestCore(t)
	main := extendChain(t, core, genesis.Header(), 3, 10, "main")

	known := []common.Hash{genesis.Hash(), main[0].Hash(), main[1].Hash()}
	unknown := []common.Hash{common.HexToHash("0xdead"), common.HexToHash("0xbeef")}
	all := append(append([]common.Hash{}, known...), unknown...)

	got := core.SelectNeededHashes(all)
	if len(got) != len(unknown) {
		t.Fatalf("SelectNeededHashes returned %d hashes, want %d", len(got), len(unknown))
	}
	for i, h := range unknown {
		if got[i] != h {
			t.Fatalf("SelectNeededHashes[%d] = %v, want %v", i, got[i], h)
		}
	}
}

func TestGetBlocksReverseTraversal(t *testing.T) {
	core, genesis := newTestCore(t)
	main := extendChain(t, core, genesis.Header(), 5, 10, "main")

	got, err := core.GetBlocks(main[4].Hash(), 0, true, 0, 3)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetBlocks returned %d blocks, want 3", len(got))
	}
	want := []*types.Block{main[4], main[3], main[2]}
	for i, b := range want {
		if got[i].Hash() != b.Hash() {
			t.Fatalf("GetBlocks[%d] = %v, want %v", i, got[i].Hash(), b.Hash())
		}
	}
}

