// Package scheduler implements the Scheduler (S) of spec.md §4.9: the
// sequential startup sequence plus the independent background tickers
// that keep HS, SR, the cooldown table, and the rate-limit maps fresh,
// directly mirroring the teacher's RunMetricsCollector ticker-plus-select
// pattern in core/system_health_logging.go.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/chainrpc"
	"github.com/CreativeBuilds/sn77-server/internal/metrics"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

const (
	hsCheckInterval   = 60 * time.Second
	srCheckInterval   = 60 * time.Second
	ceCleanupInterval = 60 * time.Minute
	rlPruneInterval   = 5 * time.Minute

	backfillBatchSize = 5
	backfillGap       = time.Second
)

// Snapshot is satisfied by both internal/holders.Snapshot and
// internal/roster.Snapshot.
type Snapshot interface {
	Refresh(ctx context.Context) error
	Stale() bool
}

// Pruner is satisfied by *internal/ratelimit.Limiter.
type Pruner interface {
	Prune() int
}

// Chain is the subset of internal/chainrpc.Client the scheduler needs for
// pool metadata backfill and graceful shutdown.
type Chain interface {
	ReadPool(ctx context.Context, poolAddr string) (chainrpc.PoolInfo, error)
	FactoryPoolAddress(ctx context.Context, token0, token1 string, fee int) (string, error)
	Close()
}

// Store is the subset of internal/store.Store the scheduler needs.
type Store interface {
	ListVotes(ctx context.Context) ([]store.Vote, error)
	ListPools(ctx context.Context) ([]store.Pool, error)
	UpsertPool(ctx context.Context, p store.Pool) error
	CleanupExpiredCooldowns(ctx context.Context) (int64, error)
}

// Scheduler owns the startup sequence and background tickers.
type Scheduler struct {
	hs      Snapshot
	sr      Snapshot
	store   Store
	chain   Chain
	pruners []Pruner
	metrics *metrics.Registry
	log     *logrus.Logger

	done chan struct{}
}

// New creates a Scheduler. pruners are the rate limiters to prune on the
// 5-minute tick (one per internal/ratelimit.Limiter in use across VI/AC).
// reg may be nil, in which case refresh outcomes are simply not recorded.
func New(hs, sr Snapshot, s Store, chain Chain, pruners []Pruner, reg *metrics.Registry, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		hs:      hs,
		sr:      sr,
		store:   s,
		chain:   chain,
		pruners: pruners,
		metrics: reg,
		log:     log,
		done:    make(chan struct{}),
	}
}

// recordRefresh reports a scheduler job outcome to the metrics registry,
// a no-op when no registry was configured.
func (s *Scheduler) recordRefresh(job string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.SchedulerRefresh.WithLabelValues(job, outcome).Inc()
}

// sized is satisfied by both internal/holders.Snapshot and
// internal/roster.Snapshot, letting the scheduler report gauge sizes
// without importing either concrete package.
type sized interface {
	Len() int
}

func (s *Scheduler) recordSizes() {
	if s.metrics == nil {
		return
	}
	if hs, ok := s.hs.(sized); ok {
		s.metrics.HolderCount.Set(float64(hs.Len()))
	}
	if sr, ok := s.sr.(sized); ok {
		s.metrics.MinerCount.Set(float64(sr.Len()))
	}
}

// Start runs the sequential startup sequence of spec.md §4.9: HS
// (fatal on failure), SR (warn on failure), then pool-metadata backfill.
// It returns only after startup completes or fails fatally.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.hs.Refresh(ctx)
	s.recordRefresh("hs", err)
	if err != nil {
		return err
	}
	srErr := s.sr.Refresh(ctx)
	s.recordRefresh("sr", srErr)
	if srErr != nil {
		s.log.WithError(srErr).Warn("scheduler: initial SR refresh failed, continuing with empty roster")
	}
	s.recordSizes()
	s.backfillPools(ctx)
	return nil
}

// backfillPools fetches metadata for every pool referenced by a current
// vote but missing from the pool cache, in batches of backfillBatchSize
// with a backfillGap pause between batches, per spec.md §4.9.
func (s *Scheduler) backfillPools(ctx context.Context) {
	votes, err := s.store.ListVotes(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scheduler: failed to list votes for pool backfill")
		return
	}
	cached, err := s.store.ListPools(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scheduler: failed to list cached pools for backfill")
		return
	}
	have := make(map[string]bool, len(cached))
	for _, p := range cached {
		have[p.Address] = true
	}

	var missing []string
	seen := make(map[string]bool)
	for _, v := range votes {
		for _, pw := range v.Pools {
			if have[pw.Pool] || seen[pw.Pool] {
				continue
			}
			seen[pw.Pool] = true
			missing = append(missing, pw.Pool)
		}
	}

	for start := 0; start < len(missing); start += backfillBatchSize {
		end := start + backfillBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		for _, addr := range missing[start:end] {
			s.backfillOne(ctx, addr)
		}
		if end < len(missing) {
			time.Sleep(backfillGap)
		}
	}
}

func (s *Scheduler) backfillOne(ctx context.Context, addr string) {
	info, err := s.chain.ReadPool(ctx, addr)
	if err != nil {
		s.log.WithError(err).WithField("pool", addr).Warn("scheduler: failed to read pool during backfill")
		return
	}
	if err := s.store.UpsertPool(ctx, store.Pool{
		Address: addr,
		Token0:  info.Token0,
		Token1:  info.Token1,
		Fee:     info.Fee,
	}); err != nil {
		s.log.WithError(err).WithField("pool", addr).Warn("scheduler: failed to cache pool during backfill")
	}
}

// Run starts the four independent background tickers and blocks until
// ctx is cancelled, then performs graceful shutdown: close the chain
// connection and stop all timers.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	hsTicker := time.NewTicker(hsCheckInterval)
	srTicker := time.NewTicker(srCheckInterval)
	ceTicker := time.NewTicker(ceCleanupInterval)
	rlTicker := time.NewTicker(rlPruneInterval)
	defer hsTicker.Stop()
	defer srTicker.Stop()
	defer ceTicker.Stop()
	defer rlTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.chain.Close()
			return
		case <-hsTicker.C:
			if s.hs.Stale() {
				err := s.hs.Refresh(ctx)
				s.recordRefresh("hs", err)
				if err != nil {
					s.log.WithError(err).Warn("scheduler: HS refresh failed")
				} else {
					s.recordSizes()
				}
			}
		case <-srTicker.C:
			if s.sr.Stale() {
				err := s.sr.Refresh(ctx)
				s.recordRefresh("sr", err)
				if err != nil {
					s.log.WithError(err).Warn("scheduler: SR refresh failed")
				} else {
					s.recordSizes()
				}
			}
		case <-ceTicker.C:
			_, err := s.store.CleanupExpiredCooldowns(ctx)
			s.recordRefresh("cooldown_cleanup", err)
			if err != nil {
				s.log.WithError(err).Warn("scheduler: cooldown cleanup failed")
			}
		case <-rlTicker.C:
			for _, p := range s.pruners {
				p.Prune()
			}
		}
	}
}

// Done returns a channel closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} { return s.done }
