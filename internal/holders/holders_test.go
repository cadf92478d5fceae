package holders

import (
	"context"
	"errors"
	"testing"
)

type fakeChain struct {
	balances map[string]Balance
	err      error
	calls    int
}

func (f *fakeChain) FetchHolders(ctx context.Context, subnetID uint16) (map[string]Balance, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	chain := &fakeChain{balances: map[string]Balance{"v1": {Alpha: 10, Tao: 1}}}
	s := New(chain, 77, nil, nil)
	if !s.Stale() {
		t.Fatalf("expected empty snapshot to be stale")
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.Stale() {
		t.Fatalf("expected fresh snapshot to not be stale")
	}
	raw, ok := s.Raw()
	if !ok || raw["v1"].Alpha != 10 {
		t.Fatalf("unexpected raw: %v ok=%v", raw, ok)
	}
}

func TestGetProjectsAlphaOnly(t *testing.T) {
	chain := &fakeChain{balances: map[string]Balance{"v1": {Alpha: 10, Tao: 99}}}
	s := New(chain, 77, nil, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	alphas, ok := s.Get()
	if !ok {
		t.Fatalf("expected ok")
	}
	if alphas["v1"] != 10 {
		t.Fatalf("expected alpha 10, got %v", alphas["v1"])
	}
}

func TestRefreshFailurePropagatesError(t *testing.T) {
	chain := &fakeChain{err: errors.New("rpc down")}
	s := New(chain, 77, nil, nil)
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("expected no snapshot after failed refresh")
	}
}
