package roster

import (
	"context"
	"errors"
	"testing"
)

type fakeChain struct {
	miners []string
	err    error
}

func (f *fakeChain) FetchRoster(ctx context.Context, subnetID uint16) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.miners, nil
}

func TestRefreshPopulatesMembership(t *testing.T) {
	chain := &fakeChain{miners: []string{"5abc", "5def"}}
	s := New(chain, 77, nil)
	if s.Contains("5abc") {
		t.Fatalf("expected no membership before refresh")
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !s.Contains("5abc") || !s.Contains("5def") {
		t.Fatalf("expected both miners registered")
	}
	if s.Contains("5zzz") {
		t.Fatalf("unexpected membership for unregistered voter")
	}
	members, ok := s.Members()
	if !ok || len(members) != 2 {
		t.Fatalf("unexpected members: %v ok=%v", members, ok)
	}
}

func TestRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	chain := &fakeChain{miners: []string{"5abc"}}
	s := New(chain, 77, nil)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	chain.err = errors.New("rpc down")
	if err := s.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if !s.Contains("5abc") {
		t.Fatalf("expected prior snapshot to remain readable after a failed refresh")
	}
}
