// Package votes implements vote intake (VI), the orchestrator of spec.md
// §4.5: input validation, rate limiting, signature verification, pool
// validation against the Uniswap V3 factory, holder eligibility, the
// cooldown engine, and the persistent-store write.
package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
	"github.com/CreativeBuilds/sn77-server/internal/chainrpc"
	"github.com/CreativeBuilds/sn77-server/internal/cooldown"
	"github.com/CreativeBuilds/sn77-server/internal/keylock"
	"github.com/CreativeBuilds/sn77-server/internal/ratelimit"
	"github.com/CreativeBuilds/sn77-server/internal/sigverify"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

// BlockWindow is the maximum staleness, in blocks, spec.md §4.5 step 8
// tolerates between a submitted block and the current chain head.
const BlockWindow = 10

// IPLimit and VoterLimit are the two rate-limit ceilings of spec.md §4.5
// step 2 / §5.
const (
	IPLimit    = 30
	VoterLimit = 5
	rateWindow = time.Minute
)

// Chain is the subset of chainrpc.Client that Intake needs.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ReadPool(ctx context.Context, poolAddr string) (chainrpc.PoolInfo, error)
	FactoryPoolAddress(ctx context.Context, token0, token1 string, fee int) (string, error)
}

// Store is the subset of internal/store.Store that Intake needs.
type Store interface {
	HasPoolsChanged(ctx context.Context, voter string, newPools []store.PoolWeight) (bool, *store.Vote, error)
	LatestVoteChange(ctx context.Context, voter string) (*store.VoteChange, error)
	UpsertVote(ctx context.Context, voter string, pools []store.PoolWeight, sig, msg string, blockNumber int64, totalWeight int) (bool, error)
	RecordVoteChange(ctx context.Context, voter string, oldPools, newPools []store.PoolWeight, changeCount int, cooldownUntil time.Time) error
	GetPool(ctx context.Context, address string) (*store.Pool, error)
	UpsertPool(ctx context.Context, p store.Pool) error
}

// Holders exposes the current holder snapshot (HS): voter -> alpha balance.
type Holders interface {
	Get() (map[string]float64, bool)
}

// Intake is the vote-intake orchestrator.
type Intake struct {
	store       Store
	chain       Chain
	holders     Holders
	locks       *keylock.Pool
	ipLimiter   *ratelimit.Limiter
	voteLimiter *ratelimit.Limiter
	log         *logrus.Logger
}

// New creates an Intake. main.go backs holders with *holders.Snapshot, whose
// Get projects each voter's alpha balance.
func New(s Store, chain Chain, holders Holders, log *logrus.Logger) *Intake {
	if log == nil {
		log = logrus.New()
	}
	return &Intake{
		store:       s,
		chain:       chain,
		holders:     holders,
		locks:       keylock.New(),
		ipLimiter:   ratelimit.New(IPLimit, rateWindow),
		voteLimiter: ratelimit.New(VoterLimit, rateWindow),
		log:         log,
	}
}

// Limiters returns the rate limiters backing Submit, for the scheduler's
// periodic prune tick.
func (in *Intake) Limiters() []*ratelimit.Limiter {
	return []*ratelimit.Limiter{in.ipLimiter, in.voteLimiter}
}

// Result is the outcome of a successful Submit.
type Result struct {
	Pools []store.PoolWeight
}

// Submit implements spec.md §4.5's full VI sequence.
func (in *Intake) Submit(ctx context.Context, clientIP, signature, message, address string) (*Result, error) {
	if !in.ipLimiter.Allow("ip_" + clientIP) {
		return nil, apierr.New(apierr.RateLimited, "too many requests from this client")
	}
	if !in.voteLimiter.Allow("vote_" + address) {
		return nil, apierr.New(apierr.RateLimited, "too many vote submissions for this address")
	}

	pools, block, err := parseMessage(message)
	if err != nil {
		return nil, err
	}

	if err := sigverify.VerifySubstrate(message, signature, address); err != nil {
		return nil, apierr.Wrap(apierr.AuthError, "signature verification failed", err)
	}

	normalized := normalizeWeights(pools)

	if err := in.validatePools(ctx, normalized); err != nil {
		return nil, err
	}

	current, err := in.chain.BlockNumber(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamError, "failed to read current block", err)
	}
	block64 := int64(current)
	if block < block64-BlockWindow || block > block64 {
		return nil, blockWindowError(block, block64)
	}

	balances, _ := in.holders.Get()
	alpha, ok := balances[address]
	if !ok || alpha <= 0 {
		return nil, apierr.New(apierr.NotAHolder, "address does not hold alpha tokens")
	}

	unlock := in.locks.Lock(address)
	defer unlock()

	hasChange, currentVote, err := in.store.HasPoolsChanged(ctx, address, normalized)
	if err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to read current vote", err)
	}

	var cooldownUntil time.Time
	var changeCount int
	if hasChange {
		latest, err := in.store.LatestVoteChange(ctx, address)
		if err != nil {
			in.log.WithError(err).Warn("votes: failed to read latest vote change, treating as absent")
			latest = nil
		}

		decision := cooldown.Evaluate(currentVote != nil, false, toCooldownLatest(latest), time.Now())
		if !decision.Admit {
			return nil, apierr.New(apierr.CooldownActive, fmt.Sprintf("%s (resumes at %s)", decision.RemainingMessage, decision.ResumesAt.UTC().Format(time.RFC3339)))
		}
		cooldownUntil = time.Now().Add(decision.NextCooldown)
		changeCount = cooldown.NextChangeCount(toCooldownLatest(latest), time.Now())
	}

	totalWeight := 0
	for _, p := range normalized {
		totalWeight += p.Weight
	}

	if _, err := in.store.UpsertVote(ctx, address, normalized, signature, message, block, totalWeight); err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to store vote", err)
	}

	if hasChange && currentVote != nil {
		if err := in.store.RecordVoteChange(ctx, address, currentVote.Pools, normalized, changeCount, cooldownUntil); err != nil {
			in.log.WithError(err).WithField("voter", address).Error("votes: failed to record vote change")
		}
	}

	return &Result{Pools: normalized}, nil
}

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

// validatePools implements spec.md §4.5 steps 6-7: validate each pool
// against the factory, then fetch-and-cache its metadata if missing.
func (in *Intake) validatePools(ctx context.Context, pools []store.PoolWeight) error {
	for _, pw := range pools {
		cached, err := in.store.GetPool(ctx, pw.Pool)
		if err == nil && cached != nil {
			continue
		}

		info, err := in.chain.ReadPool(ctx, pw.Pool)
		if err != nil {
			return apierr.Wrap(apierr.InvalidPool, "failed to read pool from chain", err)
		}
		canonical, err := in.chain.FactoryPoolAddress(ctx, info.Token0, info.Token1, info.Fee)
		if err != nil {
			return apierr.Wrap(apierr.InvalidPool, "failed to validate pool against factory", err)
		}
		if canonical != pw.Pool {
			return apierr.New(apierr.InvalidPool, "pool address does not match factory-derived address")
		}

		if err := in.store.UpsertPool(ctx, store.Pool{
			Address: pw.Pool,
			Token0:  info.Token0,
			Token1:  info.Token1,
			Fee:     info.Fee,
		}); err != nil {
			in.log.WithError(err).WithField("pool", pw.Pool).Warn("votes: failed to cache pool metadata")
		}
	}
	return nil
}
