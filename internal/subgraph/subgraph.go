// Package subgraph implements a batched GraphQL client against the
// Uniswap-V3 subgraph, the position-fetching half of PF (spec.md §4.7). No
// repository in the corpus imports a dedicated GraphQL client library (the
// only GraphQL-related dependency anywhere in the retrieval pack is a
// server-side library), so this follows the teacher's own
// net/http-plus-encoding/json idiom for outbound HTTP collaborators
// (core/ipfs.go's IPFSService).
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CreativeBuilds/sn77-server/internal/positions"
)

// BatchSize is the number of owners queried per GraphQL request.
const BatchSize = 100

// PageCap is the maximum number of positions fetched for a single owner
// batch, per spec.md §4.7.
const PageCap = 1000

// MinLiquidity is the subgraph-side liquidity filter floor.
const MinLiquidity = 1

// Client queries the Uniswap-V3 subgraph for positions owned by a set of
// addresses, filtered to a target pool set.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	log        *logrus.Logger
}

// New creates a Client against endpoint, authenticating with apiKey if
// non-empty.
func New(endpoint, apiKey string, timeout time.Duration, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		log:        log,
	}
}

const positionsQuery = `
query Positions($owners: [Bytes!]!, $pools: [String!]!, $first: Int!) {
  positions(
    first: $first
    where: { owner_in: $owners, liquidity_gt: "%d", pool_in: $pools }
  ) {
    id
    owner
    liquidity
    tickLower { tickIdx }
    tickUpper { tickIdx }
    pool {
      id
      feeTier
      tick
      token0 { id symbol decimals }
      token1 { id symbol decimals }
    }
  }
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		Positions []rawPosition `json:"positions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type rawPosition struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Liquidity string `json:"liquidity"`
	TickLower struct {
		TickIdx string `json:"tickIdx"`
	} `json:"tickLower"`
	TickUpper struct {
		TickIdx string `json:"tickIdx"`
	} `json:"tickUpper"`
	Pool struct {
		ID      string `json:"id"`
		FeeTier string `json:"feeTier"`
		Tick    string `json:"tick"`
		Token0  struct {
			ID       string `json:"id"`
			Symbol   string `json:"symbol"`
			Decimals string `json:"decimals"`
		} `json:"token0"`
		Token1 struct {
			ID       string `json:"id"`
			Symbol   string `json:"symbol"`
			Decimals string `json:"decimals"`
		} `json:"token1"`
	} `json:"pool"`
}

// FetchPositions queries positions owned by any of owners, restricted to
// targetPools, in batches of BatchSize owners per request (spec.md §4.7).
func (c *Client) FetchPositions(ctx context.Context, owners []string, targetPools []string) ([]positions.Position, error) {
	var out []positions.Position
	for start := 0; start < len(owners); start += BatchSize {
		end := start + BatchSize
		if end > len(owners) {
			end = len(owners)
		}
		batch, err := c.fetchBatch(ctx, owners[start:end], targetPools)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, owners []string, targetPools []string) ([]positions.Position, error) {
	query := fmt.Sprintf(positionsQuery, MinLiquidity)
	body := gqlRequest{
		Query: query,
		Variables: map[string]any{
			"owners": owners,
			"pools":  targetPools,
			"first":  PageCap,
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("subgraph %d: %s", resp.StatusCode, string(b))
	}

	var parsed gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", parsed.Errors[0].Message)
	}

	out := make([]positions.Position, 0, len(parsed.Data.Positions))
	for _, rp := range parsed.Data.Positions {
		p, err := convertPosition(rp)
		if err != nil {
			c.log.WithError(err).WithField("position_id", rp.ID).Warn("subgraph: skipping malformed position")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func convertPosition(rp rawPosition) (positions.Position, error) {
	liquidity, err := parseFloat(rp.Liquidity)
	if err != nil {
		return positions.Position{}, err
	}
	tickLower, err := parseInt(rp.TickLower.TickIdx)
	if err != nil {
		return positions.Position{}, err
	}
	tickUpper, err := parseInt(rp.TickUpper.TickIdx)
	if err != nil {
		return positions.Position{}, err
	}
	currentTick, err := parseInt(rp.Pool.Tick)
	if err != nil {
		return positions.Position{}, err
	}
	fee, err := parseInt(rp.Pool.FeeTier)
	if err != nil {
		return positions.Position{}, err
	}
	decimals0, _ := parseInt(rp.Pool.Token0.Decimals)
	decimals1, _ := parseInt(rp.Pool.Token1.Decimals)

	return positions.Position{
		ID:          rp.ID,
		Owner:       rp.Owner,
		Liquidity:   liquidity,
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Pool:        rp.Pool.ID,
		FeeTier:     fee,
		CurrentTick: currentTick,
		Token0:      rp.Pool.Token0.ID,
		Token1:      rp.Pool.Token1.ID,
		Decimals0:   decimals0,
		Decimals1:   decimals1,
	}, nil
}
