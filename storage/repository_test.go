package storage

import (
	"testing"

	"github.com/decentralized-hse/litetorrent/merkle"
)

func buildTestTree(n int) *merkle.Tree {
	leaves := make([]merkle.Hash, n)
	for i := range leaves {
		leaves[i] = merkle.Sum([]byte{byte(i), 0xCD})
	}
	return merkle.Build(leaves)
}

func newTestRepository(t *testing.T) *HashTreeRepository {
	t.Helper()
	repo, err := NewHashTreeRepository(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewHashTreeRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateOrReplaceThenLoad(t *testing.T) {
	repo := newTestRepository(t)
	tree := buildTestTree(5)

	if err := repo.CreateOrReplace(tree); err != nil {
		t.Fatalf("CreateOrReplace failed: %v", err)
	}

	got, err := repo.Load(tree.RootHash())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.N() != tree.N() || !got.RootHash().Equal(tree.RootHash()) {
		t.Fatalf("loaded tree mismatch: N=%d root=%x, want N=%d root=%x",
			got.N(), got.RootHash(), tree.N(), tree.RootHash())
	}
	for i := 0; i < tree.N(); i++ {
		if !got.GetPieceHash(i).Equal(tree.GetPieceHash(i)) {
			t.Fatalf("piece %d mismatch after reload", i)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Load(merkle.Sum([]byte("never persisted")))
	if err != ErrTreeNotFound {
		t.Fatalf("Load of missing key = %v, want ErrTreeNotFound", err)
	}
}

func TestLoadBypassesCacheAfterRestart(t *testing.T) {
	dir := t.TempDir()
	tree := buildTestTree(9)

	repo, err := NewHashTreeRepository(dir, 4)
	if err != nil {
		t.Fatalf("NewHashTreeRepository failed: %v", err)
	}
	if err := repo.CreateOrReplace(tree); err != nil {
		t.Fatalf("CreateOrReplace failed: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewHashTreeRepository(dir, 4)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load(tree.RootHash())
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if !got.RootHash().Equal(tree.RootHash()) {
		t.Fatalf("reloaded root mismatch")
	}
}

func TestMemPieceStoreRoundTrip(t *testing.T) {
	store := NewMemPieceStore()
	if _, err := store.ReadPiece(0); err != ErrPieceNotFound {
		t.Fatalf("ReadPiece on empty store = %v, want ErrPieceNotFound", err)
	}
	if err := store.WritePiece(3, []byte("payload")); err != nil {
		t.Fatalf("WritePiece failed: %v", err)
	}
	got, err := store.ReadPiece(3)
	if err != nil {
		t.Fatalf("ReadPiece failed: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("ReadPiece = %q, want %q", got, "payload")
	}
}
