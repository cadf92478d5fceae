// Package holders implements the Holder Snapshot (HS) of spec.md §4.3: a
// process-global mapping of voter -> {alpha, tao} built by scanning the
// subnet's chain state, held in an atomically-swapped internal/snapshot
// container with a 60-second TTL.
package holders

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/csvlog"
	"github.com/CreativeBuilds/sn77-server/internal/snapshot"
)

// TTL is the staleness window for the holder snapshot (spec.md §4.3).
const TTL = 60 * time.Second

// Balance is one voter's stake on the target subnet.
type Balance struct {
	Alpha float64
	Tao   float64
}

// Chain is the subset of the subnet RPC collaborator HS needs.
type Chain interface {
	FetchHolders(ctx context.Context, subnetID uint16) (map[string]Balance, error)
}

// Snapshot holds the current holder map, atomically swapped on refresh.
type Snapshot struct {
	chain    Chain
	subnetID uint16
	log      *logrus.Logger
	csv      *csvlog.Logger
	data     *snapshot.Snapshot[map[string]Balance]
}

// New creates a holder Snapshot for the given subnet id. csv may be nil;
// when non-nil, every successful Refresh appends a row-per-voter snapshot
// under its configured directory, per spec.md §6's LOG_CSV toggle.
func New(chain Chain, subnetID uint16, csv *csvlog.Logger, log *logrus.Logger) *Snapshot {
	if log == nil {
		log = logrus.New()
	}
	return &Snapshot{
		chain:    chain,
		subnetID: subnetID,
		log:      log,
		csv:      csv,
		data:     snapshot.New[map[string]Balance](TTL),
	}
}

// Refresh rebuilds the snapshot from chain state and replaces it
// atomically. Callers at startup must treat a Refresh failure as fatal
// per spec.md §4.3; background refreshes should log and retry instead.
func (s *Snapshot) Refresh(ctx context.Context) error {
	balances, err := s.chain.FetchHolders(ctx, s.subnetID)
	if err != nil {
		return fmt.Errorf("holders: refresh failed: %w", err)
	}
	s.data.Replace(balances)
	s.log.WithField("holders", len(balances)).Info("holders: snapshot refreshed")
	if s.csv != nil {
		entries := make([]csvlog.Entry, 0, len(balances))
		for voter, b := range balances {
			entries = append(entries, csvlog.Entry{Voter: voter, Alpha: b.Alpha, Tao: b.Tao})
		}
		if err := s.csv.WriteSnapshot(entries); err != nil {
			s.log.WithError(err).Warn("holders: failed to write CSV snapshot")
		}
	}
	return nil
}

// Stale reports whether the snapshot has exceeded its TTL.
func (s *Snapshot) Stale() bool { return s.data.Stale() }

// Len reports the number of voters in the current snapshot, for the
// sn77_holder_count gauge.
func (s *Snapshot) Len() int {
	balances, ok := s.data.Get()
	if !ok {
		return 0
	}
	return len(balances)
}

// Age returns how long ago the current snapshot was built, and false if
// none has been built yet.
func (s *Snapshot) Age() (time.Duration, bool) {
	builtAt, ok := s.data.BuiltAt()
	if !ok {
		return 0, false
	}
	return time.Since(builtAt), true
}

// Raw returns the full voter -> balance map.
func (s *Snapshot) Raw() (map[string]Balance, bool) { return s.data.Get() }

// Get implements the votes.Holders interface: voter -> alpha, used for
// the eligibility check in spec.md §4.5 step 9. Holders without a
// positive alpha balance are simply absent from real chain data, but the
// zero-value map also behaves correctly if present.
func (s *Snapshot) Get() (map[string]float64, bool) {
	balances, ok := s.data.Get()
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(balances))
	for voter, b := range balances {
		out[voter] = b.Alpha
	}
	return out, true
}
