package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CreativeBuilds/sn77-server/internal/chainrpc"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

type fakeSnapshot struct {
	refreshCalls int
	err          error
	stale        bool
}

func (f *fakeSnapshot) Refresh(ctx context.Context) error {
	f.refreshCalls++
	return f.err
}

func (f *fakeSnapshot) Stale() bool { return f.stale }

type fakeChain struct {
	pools      map[string]chainrpc.PoolInfo
	closeCalls int
}

func (f *fakeChain) ReadPool(ctx context.Context, poolAddr string) (chainrpc.PoolInfo, error) {
	info, ok := f.pools[poolAddr]
	if !ok {
		return chainrpc.PoolInfo{}, errors.New("unknown pool")
	}
	return info, nil
}

func (f *fakeChain) FactoryPoolAddress(ctx context.Context, token0, token1 string, fee int) (string, error) {
	return "", nil
}

func (f *fakeChain) Close() { f.closeCalls++ }

type fakeStore struct {
	votes        []store.Vote
	pools        []store.Pool
	upserted     []store.Pool
	cleanupCalls int
}

func (f *fakeStore) ListVotes(ctx context.Context) ([]store.Vote, error) { return f.votes, nil }
func (f *fakeStore) ListPools(ctx context.Context) ([]store.Pool, error) { return f.pools, nil }
func (f *fakeStore) UpsertPool(ctx context.Context, p store.Pool) error {
	f.upserted = append(f.upserted, p)
	return nil
}
func (f *fakeStore) CleanupExpiredCooldowns(ctx context.Context) (int64, error) {
	f.cleanupCalls++
	return 0, nil
}

type fakePruner struct{ calls int }

func (f *fakePruner) Prune() int { f.calls++; return 0 }

func TestStartFailsFatallyOnHSError(t *testing.T) {
	hs := &fakeSnapshot{err: errors.New("rpc down")}
	sr := &fakeSnapshot{}
	s := New(hs, sr, &fakeStore{}, &fakeChain{}, nil, nil, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected HS refresh failure to be fatal")
	}
}

func TestStartWarnsOnSRError(t *testing.T) {
	hs := &fakeSnapshot{}
	sr := &fakeSnapshot{err: errors.New("rpc down")}
	s := New(hs, sr, &fakeStore{}, &fakeChain{}, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("expected SR refresh failure to be non-fatal, got %v", err)
	}
}

func TestStartBackfillsMissingPools(t *testing.T) {
	hs := &fakeSnapshot{}
	sr := &fakeSnapshot{}
	st := &fakeStore{
		votes: []store.Vote{{Voter: "v1", Pools: []store.PoolWeight{{Pool: "0xaaa", Weight: 10000}}}},
		pools: nil,
	}
	chain := &fakeChain{pools: map[string]chainrpc.PoolInfo{"0xaaa": {Token0: "0x1", Token1: "0x2", Fee: 3000}}}
	s := New(hs, sr, st, chain, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(st.upserted) != 1 || st.upserted[0].Address != "0xaaa" {
		t.Fatalf("expected pool 0xaaa to be backfilled, got %v", st.upserted)
	}
}

func TestStartSkipsAlreadyCachedPools(t *testing.T) {
	hs := &fakeSnapshot{}
	sr := &fakeSnapshot{}
	st := &fakeStore{
		votes: []store.Vote{{Voter: "v1", Pools: []store.PoolWeight{{Pool: "0xaaa", Weight: 10000}}}},
		pools: []store.Pool{{Address: "0xaaa"}},
	}
	chain := &fakeChain{}
	s := New(hs, sr, st, chain, nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(st.upserted) != 0 {
		t.Fatalf("expected no backfill for an already-cached pool, got %v", st.upserted)
	}
}

func TestRunShutsDownCleanlyAndClosesChain(t *testing.T) {
	hs := &fakeSnapshot{stale: true}
	sr := &fakeSnapshot{stale: true}
	st := &fakeStore{}
	chain := &fakeChain{}
	pruner := &fakePruner{}
	s := New(hs, sr, st, chain, []Pruner{pruner}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return after context cancellation")
	}
	if chain.closeCalls != 1 {
		t.Fatalf("expected chain to be closed exactly once, got %d", chain.closeCalls)
	}
}
