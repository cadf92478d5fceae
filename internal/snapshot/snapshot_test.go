package snapshot

import (
	"testing"
	"time"
)

func TestSnapshotStartsStaleAndEmpty(t *testing.T) {
	s := New[map[string]int](time.Minute)
	if !s.Stale() {
		t.Fatalf("expected a fresh snapshot to be stale before any build")
	}
	if _, ok := s.Get(); ok {
		t.Fatalf("expected ok=false before any Replace")
	}
}

func TestSnapshotReplaceAndGet(t *testing.T) {
	s := New[map[string]int](time.Minute)
	s.Replace(map[string]int{"a": 1})

	v, ok := s.Get()
	if !ok || v["a"] != 1 {
		t.Fatalf("expected {a:1}, got %v ok=%v", v, ok)
	}
	if s.Stale() {
		t.Fatalf("expected freshly replaced snapshot to not be stale")
	}
}

func TestSnapshotExpiresAfterTTL(t *testing.T) {
	s := New[int](10 * time.Millisecond)
	s.Replace(42)
	if s.Stale() {
		t.Fatalf("expected snapshot to be fresh immediately after replace")
	}
	time.Sleep(20 * time.Millisecond)
	if !s.Stale() {
		t.Fatalf("expected snapshot to be stale after TTL elapsed")
	}
	v, ok := s.Get()
	if !ok || v != 42 {
		t.Fatalf("expected stale snapshot to still return its last value, got %v ok=%v", v, ok)
	}
}

func TestSnapshotReplaceIsAtomicSwap(t *testing.T) {
	s := New[[]int](time.Minute)
	s.Replace([]int{1, 2, 3})
	first, _ := s.Get()
	s.Replace([]int{4, 5, 6})
	second, _ := s.Get()

	if len(first) != 3 || first[0] != 1 {
		t.Fatalf("expected first snapshot to remain [1 2 3] unmutated, got %v", first)
	}
	if len(second) != 3 || second[0] != 4 {
		t.Fatalf("expected second snapshot to be [4 5 6], got %v", second)
	}
}
