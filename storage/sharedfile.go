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

// Package storage holds the file identity and the durable hash-tree
// repository: everything the exchanger needs to know about a shared file
// other than the piece bytes themselves, which remain an external concern.
package storage

import "github.com/decentralized-hse/litetorrent/merkle"

// SharedFile is the opaque identity of a file being distributed: its root
// hash, used as the file's identity on the wire and as the repository key,
// and the Merkle tree committing to its pieces.
type SharedFile struct {
	Hash     merkle.Hash
	HashTree *merkle.Tree
}

// NewSharedFile wraps an existing tree as a SharedFile, using the tree's own
// root hash as the file identity.
func NewSharedFile(tree *merkle.Tree) *SharedFile {
	return &SharedFile{
		Hash:     tree.RootHash(),
		HashTree: tree,
	}
}
