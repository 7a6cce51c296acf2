package merkle

import (
	"testing"
)

func pieceHashes(n int) []Hash {
	h := make([]Hash, n)
	for i := range h {
		h[i] = Sum([]byte{byte(i), byte(i >> 8), 0xAB})
	}
	return h
}

// roundTrip checks P1: every piece verifies against a fresh tree built only
// from N and the published root hash.
func roundTrip(t *testing.T, n int) {
	t.Helper()
	leaves := pieceHashes(n)
	built := Build(leaves)

	for i := 0; i < n; i++ {
		path := built.GetPath(i)
		fresh := New(n, built.RootHash())
		if ok := fresh.TryAdd(i, leaves[i], path); !ok {
			t.Fatalf("n=%d: TryAdd(%d) failed, expected success", n, i)
		}
		if got := fresh.GetPieceHash(i); !got.Equal(leaves[i]) {
			t.Fatalf("n=%d: GetPieceHash(%d) = %x, want %x", n, i, got, leaves[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 16, 17, 31} {
		roundTrip(t, n)
	}
}

// TestTamperRejection covers P2: feeding the wrong leaf hash must fail
// verification and must not mutate the tree.
func TestTamperRejection(t *testing.T) {
	n := 5
	leaves := pieceHashes(n)
	built := Build(leaves)

	for i := 0; i < n; i++ {
		path := built.GetPath(i)
		fresh := New(n, built.RootHash())

		wrong := Sum([]byte("definitely not the right piece"))
		if ok := fresh.TryAdd(i, wrong, path); ok {
			t.Fatalf("index %d: TryAdd with wrong hash unexpectedly succeeded", i)
		}
		if got := fresh.GetPieceHash(i); !got.IsEmpty() {
			t.Fatalf("index %d: tree mutated after failed TryAdd, pieces[%d] = %x", i, i, got)
		}
		states := fresh.GetLeafStates()
		if states.Count() != 0 {
			t.Fatalf("index %d: leaf states non-empty after failed TryAdd", i)
		}
	}
}

// TestTryAddWrongPathLength covers the "wrong path length" failure case.
func TestTryAddWrongPathLength(t *testing.T) {
	n := 5
	leaves := pieceHashes(n)
	built := Build(leaves)
	path := built.GetPath(4)

	fresh := New(n, built.RootHash())
	if ok := fresh.TryAdd(4, leaves[4], path[:len(path)-1]); ok {
		t.Fatalf("TryAdd with short path unexpectedly succeeded")
	}
	fresh2 := New(n, built.RootHash())
	if ok := fresh2.TryAdd(4, leaves[4], append(append([]Hash{}, path...), Sum([]byte("extra")))); ok {
		t.Fatalf("TryAdd with long path unexpectedly succeeded")
	}
}

// TestLeafStates covers P3: after k successful TryAdd calls, exactly those k
// bits are set.
func TestLeafStates(t *testing.T) {
	n := 9
	leaves := pieceHashes(n)
	built := Build(leaves)
	fresh := New(n, built.RootHash())

	added := []int{0, 3, 8}
	for _, i := range added {
		if ok := fresh.TryAdd(i, leaves[i], built.GetPath(i)); !ok {
			t.Fatalf("TryAdd(%d) failed", i)
		}
	}

	states := fresh.GetLeafStates()
	if states.Count() != uint(len(added)) {
		t.Fatalf("leaf states count = %d, want %d", states.Count(), len(added))
	}
	want := map[int]bool{0: true, 3: true, 8: true}
	for i := 0; i < n; i++ {
		if states.Test(uint(i)) != want[i] {
			t.Fatalf("leaf state[%d] = %v, want %v", i, states.Test(uint(i)), want[i])
		}
	}
}

// TestScenarioSinglePiece covers end-to-end scenario 1 (N=1).
func TestScenarioSinglePiece(t *testing.T) {
	leaves := pieceHashes(1)
	built := Build(leaves)

	if got := len(built.trees); got != 1 {
		t.Fatalf("len(trees) = %d, want 1", got)
	}
	if got := len(built.trees[0]); got != 1 {
		t.Fatalf("len(trees[0]) = %d, want 1", got)
	}
	if got := len(built.rootTree); got != 1 {
		t.Fatalf("len(rootTree) = %d, want 1", got)
	}
	if !built.RootHash().Equal(leaves[0]) {
		t.Fatalf("RootHash() = %x, want H(piece) = %x", built.RootHash(), leaves[0])
	}

	path := built.GetPath(0)
	if len(path) != 0 {
		t.Fatalf("GetPath(0) length = %d, want 0", len(path))
	}

	fresh := New(1, built.RootHash())
	if ok := fresh.TryAdd(0, leaves[0], path); !ok {
		t.Fatalf("TryAdd(0, H(piece), []) failed, want success")
	}
}

// TestScenarioPowerOfTwo covers end-to-end scenario 2 (N=4).
func TestScenarioPowerOfTwo(t *testing.T) {
	leaves := pieceHashes(4)
	built := Build(leaves)

	if got := built.leafCounts; len(got) != 1 || got[0] != 4 {
		t.Fatalf("leafCounts = %v, want [4]", got)
	}
	for i := 0; i < 4; i++ {
		if got := len(built.GetPath(i)); got != 2 {
			t.Fatalf("GetPath(%d) length = %d, want 2", i, got)
		}
	}
}

// TestScenarioThreePieces covers end-to-end scenario 3 (N=3).
func TestScenarioThreePieces(t *testing.T) {
	leaves := pieceHashes(3)
	built := Build(leaves)

	if got := built.leafCounts; len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("leafCounts = %v, want [2 1]", got)
	}
	if got := len(built.rootTree); got != 3 {
		t.Fatalf("len(rootTree) = %d, want 3", got)
	}

	path := built.GetPath(2)
	if len(path) != 1 {
		t.Fatalf("GetPath(2) length = %d, want 1", len(path))
	}
	if want := built.trees[0][0]; !path[0].Equal(want) {
		t.Fatalf("GetPath(2)[0] = %x, want subtree-0 root %x", path[0], want)
	}
}

// TestScenarioFivePieces covers end-to-end scenario 4 (N=5).
func TestScenarioFivePieces(t *testing.T) {
	leaves := pieceHashes(5)
	built := Build(leaves)

	if got := built.leafCounts; len(got) != 2 || got[0] != 4 || got[1] != 1 {
		t.Fatalf("leafCounts = %v, want [4 1]", got)
	}

	path := built.GetPath(4)
	if len(path) != 1 {
		t.Fatalf("GetPath(4) length = %d, want 1", len(path))
	}
	if want := built.trees[0][0]; !path[0].Equal(want) {
		t.Fatalf("GetPath(4)[0] = %x, want subtree-0 root %x", path[0], want)
	}
}

func TestHashEmptySentinel(t *testing.T) {
	var h Hash
	if !h.IsEmpty() {
		t.Fatalf("zero value Hash should be empty")
	}
	if got := Sum([]byte("x")); got.IsEmpty() {
		t.Fatalf("Sum result unexpectedly empty")
	}
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))
	if a.Concat(b).IsEmpty() {
		t.Fatalf("Concat of two real hashes unexpectedly empty")
	}
	if a.Concat(b).Equal(b.Concat(a)) {
		t.Fatalf("Concat should not be order independent")
	}
}
