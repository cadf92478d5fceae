package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertVoteNewThenOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pools := []PoolWeight{{Pool: "0xa", Weight: 10000}}
	isNew, err := s.UpsertVote(ctx, "voter1", pools, "sig", "msg", 100, 10000)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !isNew {
		t.Fatalf("expected first upsert to be new")
	}

	pools2 := []PoolWeight{{Pool: "0xb", Weight: 10000}}
	isNew, err = s.UpsertVote(ctx, "voter1", pools2, "sig2", "msg2", 101, 10000)
	if err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	if isNew {
		t.Fatalf("expected second upsert to not be new")
	}

	got, err := s.GetVote(ctx, "voter1")
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if got.BlockNumber != 101 || got.Pools[0].Pool != "0xb" {
		t.Fatalf("unexpected vote state: %+v", got)
	}
}

func TestUpsertVoteStaleBlockRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pools := []PoolWeight{{Pool: "0xa", Weight: 10000}}
	if _, err := s.UpsertVote(ctx, "voter1", pools, "sig", "msg", 100, 10000); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, err := s.UpsertVote(ctx, "voter1", pools, "sig", "msg", 100, 10000)
	if !errors.Is(err, ErrStaleBlock) {
		t.Fatalf("expected ErrStaleBlock, got %v", err)
	}
	_, err = s.UpsertVote(ctx, "voter1", pools, "sig", "msg", 99, 10000)
	if !errors.Is(err, ErrStaleBlock) {
		t.Fatalf("expected ErrStaleBlock for older block, got %v", err)
	}
}

func TestHasPoolsChanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pools := []PoolWeight{{Pool: "0xa", Weight: 10000}}
	changed, current, err := s.HasPoolsChanged(ctx, "voter1", pools)
	if err != nil {
		t.Fatalf("has changed: %v", err)
	}
	if !changed || current != nil {
		t.Fatalf("expected changed=true and nil current for fresh voter")
	}

	if _, err := s.UpsertVote(ctx, "voter1", pools, "sig", "msg", 100, 10000); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	changed, current, err = s.HasPoolsChanged(ctx, "voter1", pools)
	if err != nil {
		t.Fatalf("has changed: %v", err)
	}
	if changed || current == nil {
		t.Fatalf("expected changed=false for identical pools")
	}

	changed, _, err = s.HasPoolsChanged(ctx, "voter1", []PoolWeight{{Pool: "0xb", Weight: 10000}})
	if err != nil {
		t.Fatalf("has changed: %v", err)
	}
	if !changed {
		t.Fatalf("expected changed=true for different pools")
	}
}

func TestVoteChangeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	old := []PoolWeight{{Pool: "0xa", Weight: 10000}}
	nw := []PoolWeight{{Pool: "0xb", Weight: 10000}}

	if err := s.RecordVoteChange(ctx, "voter1", old, nw, 1, time.Now().Add(72*time.Minute)); err != nil {
		t.Fatalf("record: %v", err)
	}

	latest, err := s.LatestVoteChange(ctx, "voter1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ChangeCount != 1 {
		t.Fatalf("expected change_count=1, got %d", latest.ChangeCount)
	}

	if err := s.RecordVoteChange(ctx, "voter1", nw, old, 2, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("record expired: %v", err)
	}

	n, err := s.CleanupExpiredCooldowns(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired row removed, got %d", n)
	}

	hist, err := s.VoteHistory(ctx, "voter1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 remaining history row, got %d", len(hist))
	}
}

func TestBindingUpsertAndAlreadyExists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.UpsertBinding(ctx, "voter1", "0xexternal"); err != nil {
		t.Fatalf("upsert binding: %v", err)
	}
	if err := s.UpsertBinding(ctx, "voter1", "0xexternal"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	b, err := s.GetBindingByVoter(ctx, "voter1")
	if err != nil {
		t.Fatalf("get by voter: %v", err)
	}
	if b.External != "0xexternal" {
		t.Fatalf("unexpected binding: %+v", b)
	}

	b2, err := s.GetBindingByExternal(ctx, "0xexternal")
	if err != nil {
		t.Fatalf("get by external: %v", err)
	}
	if b2.Voter != "voter1" {
		t.Fatalf("unexpected binding: %+v", b2)
	}
}

func TestPoolUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := Pool{Address: "0xpool", Token0: "0xa", Token1: "0xb", Fee: 3000, Symbol0: "WETH", Symbol1: "USDC"}
	if err := s.UpsertPool(ctx, p); err != nil {
		t.Fatalf("upsert pool: %v", err)
	}
	got, err := s.GetPool(ctx, "0xpool")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if got.Fee != 3000 || got.Symbol0 != "WETH" {
		t.Fatalf("unexpected pool: %+v", got)
	}

	if _, err := s.GetPool(ctx, "0xmissing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
