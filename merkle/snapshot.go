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

// Snapshot is a tree's raw internal state, sufficient to reconstruct it
// exactly without re-verifying any path. The hash-tree repository uses this
// to persist and restore a session's progress between restarts.
type Snapshot struct {
	N          int
	RootHash   Hash
	LeafCounts []int
	Trees      [][]Hash
	RootTree   []Hash
	Pieces     []Hash
}

// Snapshot captures t's current raw state.
func (t *Tree) Snapshot() Snapshot {
	trees := make([][]Hash, len(t.trees))
	for k, arr := range t.trees {
		cp := make([]Hash, len(arr))
		copy(cp, arr)
		trees[k] = cp
	}
	rootTree := make([]Hash, len(t.rootTree))
	copy(rootTree, t.rootTree)
	pieces := make([]Hash, len(t.pieces))
	copy(pieces, t.pieces)
	leafCounts := make([]int, len(t.leafCounts))
	copy(leafCounts, t.leafCounts)

	return Snapshot{
		N:          t.n,
		RootHash:   t.rootHash,
		LeafCounts: leafCounts,
		Trees:      trees,
		RootTree:   rootTree,
		Pieces:     pieces,
	}
}

// FromSnapshot reconstructs a Tree from a previously captured Snapshot
// without re-verifying anything; the snapshot is trusted to have come from
// a Tree that satisfied the invariants at capture time.
func FromSnapshot(s Snapshot) *Tree {
	offsets := make([]int, len(s.LeafCounts))
	off := 0
	for k, c := range s.LeafCounts {
		offsets[k] = off
		off += c
	}
	return &Tree{
		n:          s.N,
		leafCounts: s.LeafCounts,
		offsets:    offsets,
		trees:      s.Trees,
		rootTree:   s.RootTree,
		rootHash:   s.RootHash,
		pieces:     s.Pieces,
	}
}
