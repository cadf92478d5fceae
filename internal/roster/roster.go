// Package roster implements the Subnet Roster (SR) of spec.md §4.3: the
// sequence of registered miner identities on the target subnet, held in
// an atomically-swapped internal/snapshot container.
package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/snapshot"
)

// TTL is the staleness window for the roster snapshot. spec.md §4.3
// leaves this implementation-chosen; registered-miner churn is far
// slower than stake churn, so a longer interval than HS's 60s is used.
const TTL = 5 * time.Minute

// Chain is the subset of the subnet RPC collaborator SR needs.
type Chain interface {
	FetchRoster(ctx context.Context, subnetID uint16) ([]string, error)
}

// Snapshot holds the current registered-miner set, atomically swapped on
// refresh. Membership is exposed as a set for O(1) lookups even though
// the wire format is an ordered sequence.
type Snapshot struct {
	chain    Chain
	subnetID uint16
	log      *logrus.Logger
	data     *snapshot.Snapshot[rosterData]
}

type rosterData struct {
	ordered []string
	set     map[string]bool
}

// New creates a roster Snapshot for the given subnet id.
func New(chain Chain, subnetID uint16, log *logrus.Logger) *Snapshot {
	if log == nil {
		log = logrus.New()
	}
	return &Snapshot{
		chain:    chain,
		subnetID: subnetID,
		log:      log,
		data:     snapshot.New[rosterData](TTL),
	}
}

// Refresh rebuilds the roster from chain state and replaces it
// atomically. Startup failure is fatal per spec.md §4.3's contract for
// HS; SR only warns, since a stale roster still serves membership
// checks using the last known set.
func (s *Snapshot) Refresh(ctx context.Context) error {
	miners, err := s.chain.FetchRoster(ctx, s.subnetID)
	if err != nil {
		return fmt.Errorf("roster: refresh failed: %w", err)
	}
	set := make(map[string]bool, len(miners))
	for _, m := range miners {
		set[m] = true
	}
	s.data.Replace(rosterData{ordered: miners, set: set})
	s.log.WithField("miners", len(miners)).Info("roster: snapshot refreshed")
	return nil
}

// Stale reports whether the current snapshot has exceeded its TTL.
func (s *Snapshot) Stale() bool { return s.data.Stale() }

// Len reports the number of registered miners in the current snapshot,
// for the sn77_miner_count gauge.
func (s *Snapshot) Len() int {
	d, ok := s.data.Get()
	if !ok {
		return 0
	}
	return len(d.ordered)
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

// Members returns the ordered registered-miner identities.
func (s *Snapshot) Members() ([]string, bool) {
	d, ok := s.data.Get()
	if !ok {
		return nil, false
	}
	return d.ordered, true
}

// Contains reports whether voter is a registered miner on the subnet, per
// the `voter ∈ SR` check in spec.md §4.6.
func (s *Snapshot) Contains(voter string) bool {
	d, ok := s.data.Get()
	if !ok {
		return false
	}
	return d.set[voter]
}
