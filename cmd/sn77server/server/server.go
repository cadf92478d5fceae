// Package server implements the HTTP surface of spec.md §6, directly
// mirroring cmd/xchainserver/server's mux.Router + middleware-chain
// shape and walletserver's controller/service split.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/claim"
	"github.com/CreativeBuilds/sn77-server/internal/holders"
	"github.com/CreativeBuilds/sn77-server/internal/metrics"
	"github.com/CreativeBuilds/sn77-server/internal/positions"
	"github.com/CreativeBuilds/sn77-server/internal/ratelimit"
	"github.com/CreativeBuilds/sn77-server/internal/roster"
	"github.com/CreativeBuilds/sn77-server/internal/store"
	"github.com/CreativeBuilds/sn77-server/internal/version"
	"github.com/CreativeBuilds/sn77-server/internal/votes"
)

// Deps bundles every collaborator the HTTP surface calls into.
type Deps struct {
	Store     *store.Store
	Votes     *votes.Intake
	Claim     *claim.Claimer
	Holders   *holders.Snapshot
	Roster    *roster.Snapshot
	Positions *positions.Fetcher
	Metrics   *metrics.Registry
	Version   version.Version
	StartedAt time.Time
	Log       *logrus.Logger
}

type handlers struct {
	deps          Deps
	allVotesCache *cachedPayload
	pingLimiter   *ratelimit.Limiter
}

// NewRouter builds the full mux.Router for the incentive service.
func NewRouter(deps Deps) *mux.Router {
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	h := &handlers{
		deps:          deps,
		allVotesCache: newCachedPayload(30 * time.Second),
		pingLimiter:   ratelimit.New(60, time.Minute),
	}

	ipLimiter := ratelimit.New(60, time.Minute)

	r := mux.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestLogger)
	r.Use(JSONHeaders)
	r.Use(RateLimitByIP(ipLimiter, deps.Metrics))
	r.Use(MetricsMiddleware(deps.Metrics))

	r.HandleFunc("/updateVotes", h.updateVotes).Methods(http.MethodPost)
	r.HandleFunc("/claimAddress", h.claimAddress).Methods(http.MethodPost)
	r.HandleFunc("/ping", h.ping).Methods(http.MethodPost)

	r.HandleFunc("/userVotes/{voter}", h.userVotes).Methods(http.MethodGet)
	r.HandleFunc("/allVotes", h.allVotes).Methods(http.MethodGet)
	r.HandleFunc("/allHolders", h.allHolders).Methods(http.MethodGet)
	r.HandleFunc("/allAddresses", h.allAddresses).Methods(http.MethodGet)
	r.HandleFunc("/allMiners", h.allMiners).Methods(http.MethodGet)
	r.HandleFunc("/pools", h.pools).Methods(http.MethodGet)
	r.HandleFunc("/positions", h.positionsList).Methods(http.MethodGet)
	r.HandleFunc("/positions/{miner}", h.positionsForMiner).Methods(http.MethodGet)
	r.HandleFunc("/weights", h.weights).Methods(http.MethodGet)
	r.HandleFunc("/voteCooldown/{voter}", h.voteCooldown).Methods(http.MethodGet)
	r.HandleFunc("/voteHistory/{voter}", h.voteHistory).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

// cachedPayload is a tiny single-value TTL cache used for /allVotes's
// spec.md §6 "30-s cache" requirement, grounded on the same
// atomically-swapped-snapshot idiom as internal/snapshot but scoped to a
// single cached HTTP response body rather than a shared domain type.
type cachedPayload struct {
	mu    sync.Mutex
	ttl   time.Duration
	built time.Time
	value map[string]any
}

func newCachedPayload(ttl time.Duration) *cachedPayload {
	return &cachedPayload{ttl: ttl}
}

func (c *cachedPayload) get(build func() map[string]any) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != nil && time.Since(c.built) < c.ttl {
		return c.value
	}
	c.value = build()
	c.built = time.Now()
	return c.value
}
