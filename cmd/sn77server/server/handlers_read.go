package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
	"github.com/CreativeBuilds/sn77-server/internal/cooldown"
	"github.com/CreativeBuilds/sn77-server/internal/emission"
	"github.com/CreativeBuilds/sn77-server/internal/holders"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

func nowUTC() time.Time { return time.Now().UTC() }

// toCooldownLatest adapts a store.VoteChange row to cooldown.Latest, the
// same conversion internal/votes performs for VI; voteCooldown needs its
// own copy since that function is unexported there.
func toCooldownLatest(vc *store.VoteChange) *cooldown.Latest {
	if vc == nil {
		return nil
	}
	return &cooldown.Latest{
		ChangeTimestamp: time.Unix(vc.ChangeTimestamp, 0),
		CooldownUntil:   time.Unix(vc.CooldownUntil, 0),
		ChangeCount:     vc.ChangeCount,
	}
}

func (h *handlers) userVotes(w http.ResponseWriter, r *http.Request) {
	voter := mux.Vars(r)["voter"]
	vote, err := h.deps.Store.GetVote(r.Context(), voter)
	if err != nil {
		writeError(w, storeReadErr(err))
		return
	}
	writeSuccess(w, map[string]any{"vote": vote})
}

// allVotes returns every current vote annotated with its voter's
// alpha-weighted multiplier, cached for 30 seconds per spec.md §6.
func (h *handlers) allVotes(w http.ResponseWriter, r *http.Request) {
	var buildErr error
	payload := h.allVotesCache.get(func() map[string]any {
		votes, err := h.deps.Store.ListVotes(r.Context())
		if err != nil {
			buildErr = apierr.Wrap(apierr.DatabaseError, "failed to list votes", err)
			return nil
		}
		balances, _ := h.deps.Holders.Raw()
		multipliers := emission.Multipliers(balancesToEmission(balances))

		type voteView struct {
			Voter      string             `json:"voter"`
			Pools      []store.PoolWeight `json:"pools"`
			Multiplier float64            `json:"multiplier"`
		}
		out := make([]voteView, 0, len(votes))
		for _, v := range votes {
			out = append(out, voteView{Voter: v.Voter, Pools: v.Pools, Multiplier: multipliers[v.Voter]})
		}
		return map[string]any{"votes": out}
	})
	if buildErr != nil {
		writeError(w, buildErr)
		return
	}
	writeSuccess(w, payload)
}

func (h *handlers) allHolders(w http.ResponseWriter, r *http.Request) {
	balances, ok := h.deps.Holders.Raw()
	if !ok {
		writeError(w, apierr.New(apierr.UpstreamError, "holder snapshot not yet built"))
		return
	}
	writeSuccess(w, map[string]any{"holders": balances})
}

// allAddresses returns linked bindings restricted to the current SR, per
// spec.md §6.
func (h *handlers) allAddresses(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.deps.Store.ListBindings(r.Context())
	if err != nil {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to list bindings", err))
		return
	}
	out := make([]store.Binding, 0, len(bindings))
	for _, b := range bindings {
		if h.deps.Roster.Contains(b.Voter) {
			out = append(out, b)
		}
	}
	writeSuccess(w, map[string]any{"addresses": out})
}

// allMiners returns the current SR with each miner's binding, if any.
func (h *handlers) allMiners(w http.ResponseWriter, r *http.Request) {
	members, ok := h.deps.Roster.Members()
	if !ok {
		writeError(w, apierr.New(apierr.UpstreamError, "roster snapshot not yet built"))
		return
	}
	bindings, err := h.deps.Store.ListBindings(r.Context())
	if err != nil {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to list bindings", err))
		return
	}
	byVoter := make(map[string]string, len(bindings))
	for _, b := range bindings {
		byVoter[b.Voter] = b.External
	}

	type minerView struct {
		Voter    string `json:"voter"`
		External string `json:"external,omitempty"`
	}
	out := make([]minerView, 0, len(members))
	for _, m := range members {
		out = append(out, minerView{Voter: m, External: byVoter[m]})
	}
	writeSuccess(w, map[string]any{"miners": out})
}

// pools returns aggregated voted pools: pool metadata plus the list of
// voters (and their weight) currently voting for it.
func (h *handlers) pools(w http.ResponseWriter, r *http.Request) {
	votes, err := h.deps.Store.ListVotes(r.Context())
	if err != nil {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to list votes", err))
		return
	}
	poolRows, err := h.deps.Store.ListPools(r.Context())
	if err != nil {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to list pools", err))
		return
	}
	metaByAddr := make(map[string]store.Pool, len(poolRows))
	for _, p := range poolRows {
		metaByAddr[p.Address] = p
	}

	type voterWeight struct {
		Voter  string `json:"voter"`
		Weight int    `json:"weight"`
	}
	type poolView struct {
		Pool   store.Pool    `json:"pool"`
		Voters []voterWeight `json:"voters"`
	}
	byPool := make(map[string]*poolView)
	var order []string
	for _, v := range votes {
		for _, pw := range v.Pools {
			pv, ok := byPool[pw.Pool]
			if !ok {
				pv = &poolView{Pool: metaByAddr[pw.Pool]}
				if pv.Pool.Address == "" {
					pv.Pool.Address = pw.Pool
				}
				byPool[pw.Pool] = pv
				order = append(order, pw.Pool)
			}
			pv.Voters = append(pv.Voters, voterWeight{Voter: v.Voter, Weight: pw.Weight})
		}
	}
	out := make([]poolView, 0, len(order))
	for _, addr := range order {
		out = append(out, *byPool[addr])
	}
	writeSuccess(w, map[string]any{"pools": out})
}

// minerPositionView is one miner's position annotated with its resolved
// pool emission weight, per spec.md §6's "computed emissions".
type minerPositionView struct {
	Miner      string   `json:"miner"`
	PositionID string   `json:"position_id"`
	Pool       string   `json:"pool"`
	Liquidity  float64  `json:"liquidity"`
	TickLower  int      `json:"tick_lower"`
	TickUpper  int      `json:"tick_upper"`
	Weight     float64  `json:"weight"`
	USDValue   *float64 `json:"usd_value,omitempty"`
}

func (h *handlers) computeMinerPositions(r *http.Request) ([]minerPositionView, error) {
	votes, err := h.deps.Store.ListVotes(r.Context())
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to list votes", err)
	}
	poolSet := make(map[string]bool)
	for _, v := range votes {
		for _, pw := range v.Pools {
			poolSet[pw.Pool] = true
		}
	}
	poolRows, err := h.deps.Store.ListPools(r.Context())
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to list pools", err)
	}
	for _, p := range poolRows {
		poolSet[p.Address] = true
	}
	targetPools := make([]string, 0, len(poolSet))
	for p := range poolSet {
		targetPools = append(targetPools, p)
	}

	minerPositions, err := h.deps.Positions.Positions(r.Context(), targetPools)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamError, "failed to fetch positions", err)
	}

	balances, _ := h.deps.Holders.Raw()
	emissionVotes := make([]emission.Vote, 0, len(votes))
	for _, v := range votes {
		pools := make([]emission.PoolWeight, 0, len(v.Pools))
		for _, pw := range v.Pools {
			pools = append(pools, emission.PoolWeight{Pool: pw.Pool, Weight: pw.Weight})
		}
		emissionVotes = append(emissionVotes, emission.Vote{Voter: v.Voter, Pools: pools})
	}
	weights := emission.Compute(emissionVotes, balancesToEmission(balances), minerPositions)

	out := make([]minerPositionView, 0, len(minerPositions))
	for _, mp := range minerPositions {
		view := minerPositionView{
			Miner:      mp.Miner,
			PositionID: mp.Position.ID,
			Pool:       mp.Position.Pool,
			Liquidity:  mp.Position.Liquidity,
			TickLower:  mp.Position.TickLower,
			TickUpper:  mp.Position.TickUpper,
			Weight:     weights[mp.Miner],
		}
		if mp.HasUSD {
			usd := mp.USDValue
			view.USDValue = &usd
		}
		out = append(out, view)
	}
	return out, nil
}

// positionsList implements GET /positions[?hotkey=&pool=]: per-miner
// positions with computed emission weights, per spec.md §6/§4.8.
func (h *handlers) positionsList(w http.ResponseWriter, r *http.Request) {
	weighted, err := h.computeMinerPositions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hotkey := r.URL.Query().Get("hotkey")
	pool := r.URL.Query().Get("pool")
	out := make([]minerPositionView, 0, len(weighted))
	for _, mp := range weighted {
		if hotkey != "" && mp.Miner != hotkey {
			continue
		}
		if pool != "" && mp.Pool != pool {
			continue
		}
		out = append(out, mp)
	}
	writeSuccess(w, map[string]any{"positions": out})
}

func (h *handlers) positionsForMiner(w http.ResponseWriter, r *http.Request) {
	miner := mux.Vars(r)["miner"]
	weighted, err := h.computeMinerPositions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]minerPositionView, 0)
	for _, mp := range weighted {
		if mp.Miner == miner {
			out = append(out, mp)
		}
	}
	writeSuccess(w, map[string]any{"positions": out})
}

// weights returns the final per-miner weight vector, per spec.md §4.8.
func (h *handlers) weights(w http.ResponseWriter, r *http.Request) {
	weighted, err := h.computeMinerPositions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]float64, len(weighted))
	for _, mp := range weighted {
		out[mp.Miner] = mp.Weight
	}
	writeSuccess(w, map[string]any{"weights": out})
}

func (h *handlers) voteCooldown(w http.ResponseWriter, r *http.Request) {
	voter := mux.Vars(r)["voter"]
	latest, err := h.deps.Store.LatestVoteChange(r.Context(), voter)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to read cooldown state", err))
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		latest = nil
	}
	status := cooldown.StatusFor(toCooldownLatest(latest), nowUTC())
	writeSuccess(w, map[string]any{
		"active":        status.Active,
		"remaining_s":   int(status.Remaining.Seconds()),
		"change_count":  status.ChangeCount,
		"next_duration": int(status.NextDuration.Seconds()),
	})
}

func (h *handlers) voteHistory(w http.ResponseWriter, r *http.Request) {
	voter := mux.Vars(r)["voter"]
	history, err := h.deps.Store.VoteHistory(r.Context(), voter)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to read vote history", err))
		return
	}
	current, err := h.deps.Store.GetVote(r.Context(), voter)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, apierr.Wrap(apierr.DatabaseError, "failed to read current vote", err))
		return
	}
	writeSuccess(w, map[string]any{"history": history, "current": current})
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	hsAge, hsOK := h.deps.Holders.Age()
	srAge, srOK := h.deps.Roster.Age()
	writeSuccess(w, map[string]any{
		"uptime_s": int(nowUTC().Sub(h.deps.StartedAt).Seconds()),
		"version":  h.deps.Version.String(),
		"hs_built": hsOK,
		"hs_age_s": int(hsAge.Seconds()),
		"sr_built": srOK,
		"sr_age_s": int(srAge.Seconds()),
	})
}

func storeReadErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apierr.New(apierr.InvalidInput, "voter not found")
	}
	return apierr.Wrap(apierr.DatabaseError, "failed to read store", err)
}

func balancesToEmission(balances map[string]holders.Balance) []emission.VoterBalance {
	out := make([]emission.VoterBalance, 0, len(balances))
	for voter, b := range balances {
		out = append(out, emission.VoterBalance{Voter: voter, Alpha: b.Alpha})
	}
	return out
}
