package positions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/store"
)

// MinerPosition pairs a position with the miner identity it was resolved
// to via an identity binding (spec.md §4.7: "resolve owner->miner via PS
// bindings"). USDValue is only meaningful when HasUSD is true, since price
// enrichment is best-effort and optional (spec.md §4.7, §1).
type MinerPosition struct {
	Miner    string
	Position Position
	USDValue float64
	HasUSD   bool
}

// SubgraphClient is the subset of subgraph.Client that Fetcher needs,
// declared here so this package does not import internal/subgraph and the
// two can be tested independently.
type SubgraphClient interface {
	FetchPositions(ctx context.Context, owners []string, targetPools []string) ([]Position, error)
}

// Bindings is the subset of internal/store.Store that Fetcher needs to
// resolve an owning EVM address to a miner identity.
type Bindings interface {
	ListBindings(ctx context.Context) ([]store.Binding, error)
}

// PriceOracle is the subset of oracle.Client that Fetcher needs. A nil
// PriceOracle disables USD enrichment entirely; Fetcher never requires one.
type PriceOracle interface {
	Price(ctx context.Context, tokenAddress string) (price float64, ok bool)
}

// Fetcher implements the position fetcher (PF) of spec.md §4.7: batched
// subgraph reads, a 60-second in-memory cache, inactive-position
// filtering, owner->miner resolution, and optional USD price enrichment.
type Fetcher struct {
	subgraph SubgraphClient
	bindings Bindings
	oracle   PriceOracle
	log      *logrus.Logger

	cacheTTL time.Duration
	mu       sync.Mutex
	cached   []MinerPosition
	cachedAt time.Time
}

// NewFetcher creates a Fetcher with a 60-second cache, per spec.md §4.7. A
// nil oracle disables USD enrichment of returned positions.
func NewFetcher(subgraph SubgraphClient, bindings Bindings, oracle PriceOracle, log *logrus.Logger) *Fetcher {
	if log == nil {
		log = logrus.New()
	}
	return &Fetcher{
		subgraph: subgraph,
		bindings: bindings,
		oracle:   oracle,
		log:      log,
		cacheTTL: 60 * time.Second,
	}
}

// quoteUSD prices a position's current token0/token1 amounts against the
// oracle, summing whichever legs the oracle could price. ok is false only
// when neither leg could be priced (no oracle, or both lookups failed).
func (f *Fetcher) quoteUSD(ctx context.Context, p Position) (usd float64, ok bool) {
	if f.oracle == nil {
		return 0, false
	}
	amount0, amount1 := p.Amounts()
	price0, ok0 := f.oracle.Price(ctx, p.Token0)
	price1, ok1 := f.oracle.Price(ctx, p.Token1)
	if !ok0 && !ok1 {
		return 0, false
	}
	if ok0 {
		usd += ScaleForDisplay(amount0, p.Decimals0) * price0
	}
	if ok1 {
		usd += ScaleForDisplay(amount1, p.Decimals1) * price1
	}
	return usd, true
}

// Refresh takes the target pool set (votedPools union with pools already
// known to PS, computed by the caller), fetches positions for every bound
// owner, resolves owner->miner, filters inactive positions, and replaces
// the cache. Call sites that only need a possibly-stale view should prefer
// Positions, which only calls Refresh on a cache miss.
func (f *Fetcher) Refresh(ctx context.Context, targetPools []string) ([]MinerPosition, error) {
	bindings, err := f.bindings.ListBindings(ctx)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		f.store(nil)
		return nil, nil
	}

	ownerToMiner := make(map[string]string, len(bindings))
	owners := make([]string, 0, len(bindings))
	for _, b := range bindings {
		external := strings.ToLower(b.External)
		ownerToMiner[external] = b.Voter
		owners = append(owners, external)
	}

	raw, err := f.subgraph.FetchPositions(ctx, owners, targetPools)
	if err != nil {
		return nil, err
	}

	out := make([]MinerPosition, 0, len(raw))
	for _, p := range raw {
		if !p.Active() {
			continue
		}
		miner, ok := ownerToMiner[strings.ToLower(p.Owner)]
		if !ok {
			continue
		}
		usd, hasUSD := f.quoteUSD(ctx, p)
		out = append(out, MinerPosition{Miner: miner, Position: p, USDValue: usd, HasUSD: hasUSD})
	}

	f.store(out)
	return out, nil
}

// Positions returns the cached positions, refreshing first if the cache has
// never been filled or is older than cacheTTL. A fresh cache is returned
// as-is even when it is empty, and targetPools is only used on a refresh.
func (f *Fetcher) Positions(ctx context.Context, targetPools []string) ([]MinerPosition, error) {
	f.mu.Lock()
	stale := time.Since(f.cachedAt) >= f.cacheTTL
	cached := f.cached
	f.mu.Unlock()

	if !stale {
		return cached, nil
	}
	return f.Refresh(ctx, targetPools)
}

func (f *Fetcher) store(positions []MinerPosition) {
	f.mu.Lock()
	f.cached = positions
	f.cachedAt = time.Now()
	f.mu.Unlock()
}
