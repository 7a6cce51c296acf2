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

package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/sync/singleflight"

	"github.com/decentralized-hse/litetorrent/merkle"
)

// defaultCacheSize mirrors the order of magnitude of holisticode/swarm's own
// fetchers LRU; a repository rarely needs to hold more than a few hundred
// in-flight trees at once.
const defaultCacheSize = 256

// hashTreeRecord is the RLP-encodable form of a merkle.Snapshot. RLP encodes
// only unsigned integers, so counts travel as uint64; hashes travel as
// [][]byte.
type hashTreeRecord struct {
	N          uint64
	RootHash   []byte
	LeafCounts []uint64
	Trees      [][][]byte
	RootTree   [][]byte
	Pieces     [][]byte
}

func snapshotToRecord(s merkle.Snapshot) hashTreeRecord {
	rec := hashTreeRecord{
		N:          uint64(s.N),
		RootHash:   s.RootHash.Bytes(),
		LeafCounts: make([]uint64, len(s.LeafCounts)),
		Trees:      make([][][]byte, len(s.Trees)),
		RootTree:   hashesToBytes(s.RootTree),
		Pieces:     hashesToBytes(s.Pieces),
	}
	for k, c := range s.LeafCounts {
		rec.LeafCounts[k] = uint64(c)
	}
	for k, arr := range s.Trees {
		rec.Trees[k] = hashesToBytes(arr)
	}
	return rec
}

func recordToSnapshot(rec hashTreeRecord) merkle.Snapshot {
	s := merkle.Snapshot{
		N:          int(rec.N),
		RootHash:   merkle.BytesToHash(rec.RootHash),
		LeafCounts: make([]int, len(rec.LeafCounts)),
		Trees:      make([][]merkle.Hash, len(rec.Trees)),
		RootTree:   bytesToHashes(rec.RootTree),
		Pieces:     bytesToHashes(rec.Pieces),
	}
	for k, c := range rec.LeafCounts {
		s.LeafCounts[k] = int(c)
	}
	for k, arr := range rec.Trees {
		s.Trees[k] = bytesToHashes(arr)
	}
	return s
}

func hashesToBytes(hs []merkle.Hash) [][]byte {
	out := make([][]byte, len(hs))
	for i, h := range hs {
		out[i] = h.Bytes()
	}
	return out
}

func bytesToHashes(bs [][]byte) []merkle.Hash {
	out := make([]merkle.Hash, len(bs))
	for i, b := range bs {
		out[i] = merkle.BytesToHash(b)
	}
	return out
}

// HashTreeRepository is the durable, concurrency-safe create-or-replace
// store for Merkle trees keyed by their root hash (C3). It write-throughs an
// in-process LRU of live *merkle.Tree values backed by a goleveldb database,
// the same two-tier shape as holisticode/swarm's NetStore over its fetchers
// cache and chunk.Store.
type HashTreeRepository struct {
	db    *leveldb.DB
	cache *lru.Cache

	writeMu   sync.Mutex
	loadGroup singleflight.Group
}

// NewHashTreeRepository opens (or creates) a goleveldb database at dbPath
// and wraps it with an in-process cache of cacheSize entries. cacheSize <= 0
// selects defaultCacheSize.
func NewHashTreeRepository(dbPath string, cacheSize int) (*HashTreeRepository, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &HashTreeRepository{db: db, cache: cache}, nil
}

// Close releases the underlying database handle.
func (r *HashTreeRepository) Close() error {
	return r.db.Close()
}

// CreateOrReplace atomically persists tree keyed by its root hash.
// Concurrent calls for the same key serialize on writeMu; the last writer
// to acquire it wins.
func (r *HashTreeRepository) CreateOrReplace(tree *merkle.Tree) error {
	key := tree.RootHash().Bytes()
	rec := snapshotToRecord(tree.Snapshot())
	encoded, err := rlp.EncodeToBytes(rec)
	if err != nil {
		log.Error("hash tree encode failed", "root", tree.RootHash(), "err", err)
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.db.Put(key, encoded, nil); err != nil {
		metrics.GetOrRegisterCounter("storage/repository/write_errors", nil).Inc(1)
		return err
	}
	r.cache.Add(tree.RootHash(), tree)
	metrics.GetOrRegisterCounter("storage/repository/writes", nil).Inc(1)
	log.Trace("persisted hash tree", "root", tree.RootHash())
	return nil
}

// Load returns the tree persisted under rootHash, or ErrTreeNotFound.
// Concurrent loads for the same rootHash are deduplicated so only one of
// them hits goleveldb.
func (r *HashTreeRepository) Load(rootHash merkle.Hash) (*merkle.Tree, error) {
	if cached, ok := r.cache.Get(rootHash); ok {
		metrics.GetOrRegisterCounter("storage/repository/cache_hits", nil).Inc(1)
		return cached.(*merkle.Tree), nil
	}

	v, err, _ := r.loadGroup.Do(rootHash.String(), func() (interface{}, error) {
		raw, err := r.db.Get(rootHash.Bytes(), nil)
		if err == leveldb.ErrNotFound {
			return nil, ErrTreeNotFound
		}
		if err != nil {
			return nil, err
		}
		var rec hashTreeRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			log.Error("hash tree record failed to decode", "root", rootHash, "err", err)
			return nil, ErrCorruptRecord
		}
		tree := merkle.FromSnapshot(recordToSnapshot(rec))
		r.cache.Add(rootHash, tree)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.GetOrRegisterCounter("storage/repository/cache_misses", nil).Inc(1)
	return v.(*merkle.Tree), nil
}
