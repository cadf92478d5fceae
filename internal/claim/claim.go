// Package claim implements Address Claim (AC), the orchestrator of
// spec.md §4.6: binding a Substrate voter identity to an external EVM
// account via a pair of cross-chain signatures.
package claim

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
	"github.com/CreativeBuilds/sn77-server/internal/keylock"
	"github.com/CreativeBuilds/sn77-server/internal/ratelimit"
	"github.com/CreativeBuilds/sn77-server/internal/sigverify"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

// BlockWindow mirrors internal/votes.BlockWindow: the maximum staleness,
// in blocks, tolerated between the claimed block and the current chain
// head (spec.md §4.6's "block in window").
const BlockWindow = 10

const (
	IPLimit    = 30
	ClaimLimit = 5
	rateWindow = time.Minute
)

// Chain is the subset of internal/chainrpc.Client that AC needs.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Store is the subset of internal/store.Store that AC needs.
type Store interface {
	GetBindingByVoter(ctx context.Context, voter string) (*store.Binding, error)
	UpsertBinding(ctx context.Context, voter, external string) error
}

// Roster exposes Subnet Roster membership, per spec.md §4.6's `voter ∈ SR`
// check.
type Roster interface {
	Contains(voter string) bool
}

// Claimer is the AC orchestrator.
type Claimer struct {
	store        Store
	chain        Chain
	roster       Roster
	locks        *keylock.Pool
	ipLimiter    *ratelimit.Limiter
	claimLimiter *ratelimit.Limiter
	log          *logrus.Logger
}

// New creates a Claimer.
func New(s Store, chain Chain, roster Roster, log *logrus.Logger) *Claimer {
	if log == nil {
		log = logrus.New()
	}
	return &Claimer{
		store:        s,
		chain:        chain,
		roster:       roster,
		locks:        keylock.New(),
		ipLimiter:    ratelimit.New(IPLimit, rateWindow),
		claimLimiter: ratelimit.New(ClaimLimit, rateWindow),
		log:          log,
	}
}

// Limiters returns the rate limiters backing Submit, for the scheduler's
// periodic prune tick.
func (c *Claimer) Limiters() []*ratelimit.Limiter {
	return []*ratelimit.Limiter{c.ipLimiter, c.claimLimiter}
}

// Result is the outcome of a successful Submit.
type Result struct {
	Voter    string
	External string
	// AlreadyExists is true when an identical binding already existed,
	// per spec.md §4.6's idempotence clause.
	AlreadyExists bool
}

// Submit implements spec.md §4.6's full AC sequence. message is the
// pipe-separated 5-field payload "ethSig|ethAddr|voter|block|ethSigner"
// and signature is the outer Substrate signature over message, produced
// by voter's Substrate key.
func (c *Claimer) Submit(ctx context.Context, clientIP, signature, message, voter string) (*Result, error) {
	if !c.ipLimiter.Allow("ip_" + clientIP) {
		return nil, apierr.New(apierr.RateLimited, "too many requests from this client")
	}
	if !c.claimLimiter.Allow("claim_" + voter) {
		return nil, apierr.New(apierr.RateLimited, "too many claim submissions for this address")
	}

	fields, err := parseMessage(message)
	if err != nil {
		return nil, err
	}
	if fields.voter != voter {
		return nil, apierr.New(apierr.InvalidInput, "message voter does not match claimed voter")
	}
	if !strings.EqualFold(fields.ethAddr, fields.ethSigner) {
		return nil, apierr.New(apierr.InvalidInput, "ethAddr does not match ethSigner")
	}
	if !common.IsHexAddress(fields.ethSigner) {
		return nil, apierr.New(apierr.InvalidInput, "ethSigner is not a well-formed EVM address")
	}

	if err := sigverify.VerifySubstrate(message, signature, voter); err != nil {
		return nil, apierr.Wrap(apierr.AuthError, "substrate signature verification failed", err)
	}

	innerMessage := innerMessage(fields.ethAddr, fields.voter, fields.block)
	if err := sigverify.VerifyEVM(innerMessage, fields.ethSig, fields.ethSigner); err != nil {
		return nil, apierr.Wrap(apierr.AuthError, "evm signature verification failed", err)
	}

	current, err := c.chain.BlockNumber(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.UpstreamError, "failed to read current block", err)
	}
	block64 := int64(current)
	if fields.block < block64-BlockWindow || fields.block > block64 {
		return nil, blockWindowError(fields.block, block64)
	}

	if !c.roster.Contains(voter) {
		return nil, apierr.New(apierr.NotRegisteredMiner, "voter is not a registered miner on this subnet")
	}

	unlock := c.locks.Lock(voter)
	defer unlock()

	external := strings.ToLower(fields.ethAddr)
	existing, err := c.store.GetBindingByVoter(ctx, voter)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to read existing binding", err)
	}
	if existing != nil && strings.EqualFold(existing.External, external) {
		return &Result{Voter: voter, External: external, AlreadyExists: true}, nil
	}

	if err := c.store.UpsertBinding(ctx, voter, external); err != nil {
		return nil, apierr.Wrap(apierr.DatabaseError, "failed to store binding", err)
	}
	return &Result{Voter: voter, External: external}, nil
}

func innerMessage(ethAddr, voter string, block int64) string {
	return ethAddr + "|" + voter + "|" + itoa(block)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
