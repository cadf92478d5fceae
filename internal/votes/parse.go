package votes

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/CreativeBuilds/sn77-server/internal/apierr"
	"github.com/CreativeBuilds/sn77-server/internal/store"
)

// MaxMessageLen bounds the raw "<pools>|<block>" message length.
const MaxMessageLen = 2048

// MaxPools is the maximum number of pool entries a vote may carry.
const MaxPools = 10

var poolAddrRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// parseMessage splits "<pools>|<block>" and parses both halves, per
// spec.md §4.5 steps 1 and 4.
func parseMessage(message string) (pools []store.PoolWeight, block int64, err error) {
	if len(message) == 0 || len(message) > MaxMessageLen {
		return nil, 0, apierr.New(apierr.InvalidInput, "message length out of bounds")
	}

	idx := strings.LastIndex(message, "|")
	if idx < 0 {
		return nil, 0, apierr.New(apierr.InvalidInput, "malformed message: missing block separator")
	}
	poolsPart, blockPart := message[:idx], message[idx+1:]

	block, convErr := strconv.ParseInt(blockPart, 10, 64)
	if convErr != nil || block < 0 {
		return nil, 0, apierr.New(apierr.InvalidInput, "malformed block number")
	}

	pools, err = parsePools(poolsPart)
	if err != nil {
		return nil, 0, err
	}
	return pools, block, nil
}

func parsePools(poolsPart string) ([]store.PoolWeight, error) {
	entries := strings.Split(poolsPart, ";")
	if len(entries) == 0 || len(entries) > MaxPools {
		return nil, apierr.New(apierr.InvalidInput, "pools list exceeds bound")
	}

	seen := make(map[string]bool, len(entries))
	pools := make([]store.PoolWeight, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ",")
		if len(parts) != 2 {
			return nil, apierr.New(apierr.InvalidInput, "malformed pool entry")
		}
		addr := strings.ToLower(strings.TrimSpace(parts[0]))
		if !poolAddrRe.MatchString(addr) {
			return nil, apierr.New(apierr.InvalidInput, "malformed pool address")
		}
		if seen[addr] {
			return nil, apierr.New(apierr.InvalidInput, "duplicate pool address")
		}
		seen[addr] = true

		weight, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || weight <= 0 {
			return nil, apierr.New(apierr.InvalidInput, "pool weight must be a positive integer")
		}
		pools = append(pools, store.PoolWeight{Pool: addr, Weight: weight})
	}
	return pools, nil
}

// normalizeWeights implements spec.md §4.5 step 5: scale weights to sum to
// exactly 10000, nudging the last entry to absorb rounding error.
func normalizeWeights(pools []store.PoolWeight) []store.PoolWeight {
	sum := 0
	for _, p := range pools {
		sum += p.Weight
	}
	if sum == 0 {
		return pools
	}

	out := make([]store.PoolWeight, len(pools))
	total := 0
	for i, p := range pools {
		w := int(math.Round(float64(p.Weight) * 10000 / float64(sum)))
		out[i] = store.PoolWeight{Pool: p.Pool, Weight: w}
		total += w
	}
	out[len(out)-1].Weight += 10000 - total
	return out
}

func blockWindowError(block, current int64) error {
	if block > current {
		return apierr.New(apierr.InvalidBlock, fmt.Sprintf("block %d is ahead of current block %d", block, current))
	}
	return apierr.New(apierr.StaleBlock, fmt.Sprintf("block %d is more than %d blocks behind current block %d", block, BlockWindow, current))
}
