package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CreativeBuilds/sn77-server/internal/chainrpc"
	"github.com/CreativeBuilds/sn77-server/internal/claim"
	"github.com/CreativeBuilds/sn77-server/internal/holders"
	"github.com/CreativeBuilds/sn77-server/internal/positions"
	"github.com/CreativeBuilds/sn77-server/internal/roster"
	"github.com/CreativeBuilds/sn77-server/internal/store"
	"github.com/CreativeBuilds/sn77-server/internal/version"
	"github.com/CreativeBuilds/sn77-server/internal/votes"
)

type fakeHoldersChain struct {
	balances map[string]holders.Balance
}

func (f *fakeHoldersChain) FetchHolders(ctx context.Context, subnetID uint16) (map[string]holders.Balance, error) {
	return f.balances, nil
}

type fakeRosterChain struct {
	miners []string
}

func (f *fakeRosterChain) FetchRoster(ctx context.Context, subnetID uint16) ([]string, error) {
	return f.miners, nil
}

type fakeVotesChain struct{}

func (f *fakeVotesChain) BlockNumber(ctx context.Context) (uint64, error) { return 1000, nil }
func (f *fakeVotesChain) ReadPool(ctx context.Context, poolAddr string) (chainrpc.PoolInfo, error) {
	return chainrpc.PoolInfo{}, nil
}
func (f *fakeVotesChain) FactoryPoolAddress(ctx context.Context, token0, token1 string, fee int) (string, error) {
	return "", nil
}

type fakeClaimChain struct{}

func (f *fakeClaimChain) BlockNumber(ctx context.Context) (uint64, error) { return 1000, nil }

type fakeSubgraph struct{}

func (f *fakeSubgraph) FetchPositions(ctx context.Context, owners []string, targetPools []string) ([]positions.Position, error) {
	return nil, nil
}

// buildTestDeps wires a real, temp-file-backed store and fake chain
// collaborators, mirroring internal/store's own t.TempDir()-backed test
// setup.
func buildTestDeps(t *testing.T) Deps {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hs := holders.New(&fakeHoldersChain{balances: map[string]holders.Balance{"5voter": {Alpha: 100, Tao: 10}}}, 77, nil, nil)
	if err := hs.Refresh(context.Background()); err != nil {
		t.Fatalf("holders refresh: %v", err)
	}
	sr := roster.New(&fakeRosterChain{miners: []string{"5voter"}}, 77, nil)
	if err := sr.Refresh(context.Background()); err != nil {
		t.Fatalf("roster refresh: %v", err)
	}

	vi := votes.New(st, &fakeVotesChain{}, hs, nil)
	ac := claim.New(st, &fakeClaimChain{}, sr, nil)
	pf := positions.NewFetcher(&fakeSubgraph{}, st, nil, nil)

	return Deps{
		Store:     st,
		Votes:     vi,
		Claim:     ac,
		Holders:   hs,
		Roster:    sr,
		Positions: pf,
		Version:   version.Version{Major: 1, Minor: 0, Patch: 0},
	}
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response body: %v, raw=%s", err, rec.Body.String())
	}
	return out
}

func TestHealthzReportsSnapshotAges(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hs_built"] != true || body["sr_built"] != true {
		t.Fatalf("expected both snapshots built, got %v", body)
	}
	if body["version"] != "1.0.0" {
		t.Fatalf("unexpected version: %v", body["version"])
	}
}

func TestAllHoldersReturnsCurrentSnapshot(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodGet, "/allHolders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	holdersOut, ok := body["holders"].(map[string]any)
	if !ok || len(holdersOut) != 1 {
		t.Fatalf("expected one holder, got %v", body["holders"])
	}
}

func TestVoteCooldownUnknownVoterIsInactive(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodGet, "/voteCooldown/5unknown", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["active"] != false {
		t.Fatalf("expected inactive cooldown for unseen voter, got %v", body)
	}
}

func TestPingCompatibleVersion(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodPost, "/ping", `{"voter":"5voter","message":"1000|1.0.0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success, got %v", body)
	}
}

func TestPingIncompatibleVersionIsRejected(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodPost, "/ping", `{"voter":"5voter","message":"1000|2.0.0"}`)
	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPingNonMasterBranchPatch(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodPost, "/ping", `{"voter":"5voter","message":"1000|1.0.5"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] == nil {
		t.Fatalf("expected a non-master-branch message, got %v", body)
	}
}

func TestUpdateVotesMalformedBodyIsBadRequest(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodPost, "/updateVotes", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPoolsEmptyWhenNoVotes(t *testing.T) {
	r := NewRouter(buildTestDeps(t))
	rec := doRequest(r, http.MethodGet, "/pools", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	pools, ok := body["pools"].([]any)
	if !ok || len(pools) != 0 {
		t.Fatalf("expected empty pools list, got %v", body["pools"])
	}
}
