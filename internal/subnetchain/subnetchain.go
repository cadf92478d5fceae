// Package subnetchain adapts the generic internal/substraterpc JSON-RPC
// client to the domain-specific Chain interfaces that internal/holders
// (HS) and internal/roster (SR) need, per spec.md §4.3: "HS is built by
// scanning chain storage for the target subnet"; "SR is built by reading
// the subnet's registered-miner list", both via the same RPC collaborator.
package subnetchain

import (
	"context"
	"fmt"

	"github.com/CreativeBuilds/sn77-server/internal/holders"
	"github.com/CreativeBuilds/sn77-server/internal/roster"
	"github.com/CreativeBuilds/sn77-server/internal/substraterpc"
)

// Client implements both holders.Chain and roster.Chain over a single
// Substrate RPC endpoint.
type Client struct {
	rpc *substraterpc.Client
}

// New wraps an already-constructed substraterpc.Client.
func New(rpc *substraterpc.Client) *Client {
	return &Client{rpc: rpc}
}

type rawHolder struct {
	Hotkey string  `json:"hotkey"`
	Alpha  float64 `json:"alpha"`
	Tao    float64 `json:"tao"`
}

// FetchHolders implements holders.Chain by calling the subnet's custom
// "subnet_holders" RPC method, returning every hotkey's stake on
// subnetID.
func (c *Client) FetchHolders(ctx context.Context, subnetID uint16) (map[string]holders.Balance, error) {
	var raw []rawHolder
	if err := c.rpc.Call(ctx, "subnet_holders", []any{subnetID}, &raw); err != nil {
		return nil, fmt.Errorf("subnetchain: fetch holders: %w", err)
	}
	out := make(map[string]holders.Balance, len(raw))
	for _, h := range raw {
		out[h.Hotkey] = holders.Balance{Alpha: h.Alpha, Tao: h.Tao}
	}
	return out, nil
}

// FetchRoster implements roster.Chain by calling the subnet's custom
// "subnet_roster" RPC method, returning the registered-miner hotkeys for
// subnetID in registration order.
func (c *Client) FetchRoster(ctx context.Context, subnetID uint16) ([]string, error) {
	var miners []string
	if err := c.rpc.Call(ctx, "subnet_roster", []any{subnetID}, &miners); err != nil {
		return nil, fmt.Errorf("subnetchain: fetch roster: %w", err)
	}
	return miners, nil
}
