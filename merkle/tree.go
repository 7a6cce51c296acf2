// Copyright 2026 The litetorrent Authors
// This file is part of the litetorrent library.
//
// The litetorrent library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The litetorrent library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the litetorrent library. If not, see <http://www.gnu.org/licenses/>.

package merkle

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Tree is a two-level Merkle commitment over N pieces, N >= 1, not
// necessarily a power of two. N is decomposed into decreasing powers of two;
// each power gets its own complete subtree, and the per-subtree roots are
// combined by rootTree into the single published rootHash.
//
// A Tree is owned by a single peer session at a time: callers must not
// mutate a Tree from more than one goroutine concurrently.
type Tree struct {
	n int

	// leafCounts[k] is the leaf count of subtree k, decreasing powers of two
	// that sum to n. offsets[k] is the global piece index of leaf 0 of
	// subtree k.
	leafCounts []int
	offsets    []int

	// trees[k] is subtree k stored level-order, root at index 0, leaves at
	// [leafCounts[k]-1, 2*leafCounts[k]-1).
	trees [][]Hash

	// rootTree combines the per-subtree roots. Subtree k's root lives at
	// rootLeafIndex(k, len(rootTree)); the remaining even-numbered slots are
	// the internal nodes of the right-leaning chain that folds the subtree
	// roots into a single value.
	rootTree []Hash

	rootHash Hash
	pieces   []Hash
}

// decompose returns n's decomposition into decreasing powers of two, e.g.
// decompose(5) = [4, 1], decompose(3) = [2, 1].
func decompose(n int) []int {
	var counts []int
	remaining := n
	for remaining > 0 {
		p := 1
		for p<<1 <= remaining {
			p <<= 1
		}
		counts = append(counts, p)
		remaining -= p
	}
	return counts
}

// rootLeafIndex places subtree k's root in a rootTree of the given length:
// f(k) = 2k + (1 if 2k != length-1 else 0).
func rootLeafIndex(k, rootTreeLen int) int {
	idx := 2 * k
	if idx != rootTreeLen-1 {
		idx++
	}
	return idx
}

func newShape(n int) (leafCounts, offsets []int, trees [][]Hash, rootTree []Hash) {
	leafCounts = decompose(n)
	offsets = make([]int, len(leafCounts))
	off := 0
	for k, c := range leafCounts {
		offsets[k] = off
		off += c
	}
	trees = make([][]Hash, len(leafCounts))
	for k, c := range leafCounts {
		trees[k] = make([]Hash, 2*c-1)
	}
	rootTree = make([]Hash, 2*len(leafCounts)-1)
	return
}

// New creates an empty tree for a file of n pieces whose commitment is
// already known as rootHash (the downloader side: nothing has been
// verified-and-added yet).
func New(n int, rootHash Hash) *Tree {
	if n <= 0 {
		panic("merkle: n must be positive")
	}
	leafCounts, offsets, trees, rootTree := newShape(n)
	return &Tree{
		n:          n,
		leafCounts: leafCounts,
		offsets:    offsets,
		trees:      trees,
		rootTree:   rootTree,
		rootHash:   rootHash,
		pieces:     make([]Hash, n),
	}
}

// Build constructs a fully populated tree from the leaf hashes of all n
// pieces (the seeder side) and fixes rootHash.
func Build(leafHashes []Hash) *Tree {
	n := len(leafHashes)
	if n == 0 {
		panic("merkle: cannot build a tree over zero pieces")
	}
	leafCounts, offsets, trees, rootTree := newShape(n)

	for k, c := range leafCounts {
		arr := trees[k]
		leafBase := c - 1
		for l := 0; l < c; l++ {
			arr[leafBase+l] = leafHashes[offsets[k]+l]
		}
		for p := leafBase - 1; p >= 0; p-- {
			arr[p] = arr[2*p+1].Concat(arr[2*p+2])
		}
	}

	for k := range leafCounts {
		rootTree[rootLeafIndex(k, len(rootTree))] = trees[k][0]
	}
	for p := len(rootTree) - 3; p >= 0; p -= 2 {
		rootTree[p] = rootTree[p+1].Concat(rootTree[p+2])
	}

	pieces := make([]Hash, n)
	copy(pieces, leafHashes)

	return &Tree{
		n:          n,
		leafCounts: leafCounts,
		offsets:    offsets,
		trees:      trees,
		rootTree:   rootTree,
		rootHash:   rootTree[0],
		pieces:     pieces,
	}
}

// N returns the piece count.
func (t *Tree) N() int {
	return t.n
}

// RootHash returns the tree's published commitment.
func (t *Tree) RootHash() Hash {
	return t.rootHash
}

func (t *Tree) locate(i int) (k, leafOffset int) {
	if i < 0 || i >= t.n {
		panic(fmt.Sprintf("merkle: piece index %d out of range [0,%d)", i, t.n))
	}
	for k, off := range t.offsets {
		if i < off+t.leafCounts[k] {
			return k, i - off
		}
	}
	panic("merkle: unreachable: locate failed to place a valid index")
}

// GetPieceHash returns pieces[i], the empty sentinel if the piece has not
// been verified-and-added yet.
func (t *Tree) GetPieceHash(i int) Hash {
	if i < 0 || i >= t.n {
		panic(fmt.Sprintf("merkle: piece index %d out of range [0,%d)", i, t.n))
	}
	return t.pieces[i]
}

// GetLeafStates returns a bitset of length N, bit i set iff piece i has been
// verified-and-added.
func (t *Tree) GetLeafStates() *bitset.BitSet {
	bs := bitset.New(uint(t.n))
	for i, h := range t.pieces {
		if !h.IsEmpty() {
			bs.Set(uint(i))
		}
	}
	return bs
}

// GetPath returns the sibling hashes from leaf i up to the root, in order.
func (t *Tree) GetPath(i int) []Hash {
	k, leafOffset := t.locate(i)
	idx := leafOffset + t.leafCounts[k] - 1

	var path []Hash
	for idx != 0 {
		siblingIdx, parentIdx := subtreeStep(idx)
		path = append(path, t.trees[k][siblingIdx])
		idx = parentIdx
	}

	ridx := rootLeafIndex(k, len(t.rootTree))
	for ridx != 0 {
		siblingIdx, parentIdx := rootTreeStep(ridx)
		path = append(path, t.rootTree[siblingIdx])
		ridx = parentIdx
	}
	return path
}

// subtreeStep returns the sibling index and parent index of idx inside a
// subtree's level-order array, following the standard complete-binary-tree
// layout: odd indices are left children, even indices are right children.
func subtreeStep(idx int) (siblingIdx, parentIdx int) {
	if idx%2 == 1 {
		return idx + 1, (idx - 1) / 2
	}
	return idx - 1, (idx - 2) / 2
}

// rootTreeStep returns the sibling index and parent index of idx inside
// rootTree's right-leaning chain layout: odd indices are left children of
// idx-1, even indices are right children of idx-2 (no halving, unlike
// subtreeStep — this is the "minus 2 then minus 1" pairing dictated by
// rootLeafIndex).
func rootTreeStep(idx int) (siblingIdx, parentIdx int) {
	if idx%2 == 1 {
		return idx + 1, idx - 1
	}
	return idx - 1, idx - 2
}

type writeTarget int

const (
	writeSubtree writeTarget = iota
	writeRootTree
)

type pendingWrite struct {
	target writeTarget
	k      int
	idx    int
	val    Hash
}

// TryAdd verifies that itemHash combined in order with path reproduces
// rootHash for piece i, and if so commits itemHash into pieces[i] and every
// internal node visited along the way. On failure no storage slot is
// mutated: all writes are staged and applied only after the final
// comparison succeeds.
func (t *Tree) TryAdd(i int, itemHash Hash, path []Hash) bool {
	k, leafOffset := t.locate(i)
	idx := leafOffset + t.leafCounts[k] - 1

	var writes []pendingWrite
	pi := 0
	current := itemHash
	writes = append(writes, pendingWrite{target: writeSubtree, k: k, idx: idx, val: current})

	for idx != 0 {
		if pi >= len(path) {
			return false
		}
		sibling := path[pi]
		pi++

		siblingIdx, parentIdx := subtreeStep(idx)
		var combined Hash
		if idx%2 == 1 {
			combined = current.Concat(sibling)
		} else {
			combined = sibling.Concat(current)
		}
		writes = append(writes, pendingWrite{target: writeSubtree, k: k, idx: siblingIdx, val: sibling})
		idx = parentIdx
		current = combined
		writes = append(writes, pendingWrite{target: writeSubtree, k: k, idx: idx, val: current})
	}

	ridx := rootLeafIndex(k, len(t.rootTree))
	writes = append(writes, pendingWrite{target: writeRootTree, idx: ridx, val: current})

	for ridx != 0 {
		if pi >= len(path) {
			return false
		}
		sibling := path[pi]
		pi++

		siblingIdx, parentIdx := rootTreeStep(ridx)
		var combined Hash
		if ridx%2 == 1 {
			combined = current.Concat(sibling)
		} else {
			combined = sibling.Concat(current)
		}
		writes = append(writes, pendingWrite{target: writeRootTree, idx: siblingIdx, val: sibling})
		ridx = parentIdx
		current = combined
		writes = append(writes, pendingWrite{target: writeRootTree, idx: ridx, val: current})
	}

	if pi != len(path) {
		return false
	}
	if !current.Equal(t.rootHash) {
		return false
	}

	for _, w := range writes {
		switch w.target {
		case writeSubtree:
			t.trees[w.k][w.idx] = w.val
		case writeRootTree:
			t.rootTree[w.idx] = w.val
		}
	}
	t.pieces[i] = itemHash
	return true
}
