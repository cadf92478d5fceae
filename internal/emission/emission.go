// Package emission implements the emission engine (EE) of spec.md §4.8: a
// set of pure functions turning token-weighted votes and concentrated-
// liquidity positions into a per-miner weight vector. Nothing here touches
// PS, HS, or PF directly; callers assemble the inputs from those snapshots.
package emission

import (
	"math"

	"github.com/CreativeBuilds/sn77-server/internal/positions"
)

// sigmaByFeeTier holds the Gaussian standard deviation per Uniswap V3 fee
// tier, per spec.md §4.8 step C.
var sigmaByFeeTier = map[int]float64{
	100:   10,
	500:   50,
	3000:  200,
	10000: 500,
}

const defaultSigma = 200
const gaussianAmplitude = 10

// VoterBalance is a voter's alpha balance as of the current holder
// snapshot, used for step A's multiplier.
type VoterBalance struct {
	Voter string
	Alpha float64
}

// PoolWeight is one (pool, weight) entry of a voter's vote, weight in
// [0,10000] summing to 10000 across a vote (spec.md §3).
type PoolWeight struct {
	Pool   string
	Weight int
}

// Vote is the minimal shape EE needs from a voter's current vote.
type Vote struct {
	Voter string
	Pools []PoolWeight
}

// Multipliers implements spec.md §4.8 step A: drop non-positive-alpha
// voters, then compute each surviving voter's share of total alpha. A lone
// surviving voter gets multiplier 1.
func Multipliers(balances []VoterBalance) map[string]float64 {
	var total float64
	surviving := make([]VoterBalance, 0, len(balances))
	for _, b := range balances {
		if b.Alpha <= 0 {
			continue
		}
		surviving = append(surviving, b)
		total += b.Alpha
	}

	out := make(map[string]float64, len(surviving))
	if len(surviving) == 1 {
		out[surviving[0].Voter] = 1
		return out
	}
	if total <= 0 {
		return out
	}
	for _, b := range surviving {
		out[b.Voter] = b.Alpha / total
	}
	return out
}

// PoolEmissions implements spec.md §4.8 step B: accumulate each pool's
// token-weighted emission share across every voter's weighted pools.
func PoolEmissions(votes []Vote, multipliers map[string]float64) map[string]float64 {
	emissions := make(map[string]float64)
	for _, v := range votes {
		mu, ok := multipliers[v.Voter]
		if !ok {
			continue
		}
		for _, pw := range v.Pools {
			emissions[pw.Pool] += float64(pw.Weight) * mu / 10000
		}
	}
	return emissions
}

// gaussian is g(d) = a * exp(-d^2 / (2*sigma^2)), spec.md §4.8 step C.
func gaussian(d, sigma float64) float64 {
	return gaussianAmplitude * math.Exp(-(d*d)/(2*sigma*sigma))
}

// sigmaFor returns the Gaussian standard deviation for a fee tier, falling
// back to defaultSigma for unrecognized tiers.
func sigmaFor(feeTier int) float64 {
	if s, ok := sigmaByFeeTier[feeTier]; ok {
		return s
	}
	return defaultSigma
}

// PositionScore implements spec.md §4.8 step C: a tick-aware Gaussian
// score for an active position, via Simpson's rule over its lower bound,
// midpoint, and upper bound. Returns 0 for inactive or non-finite inputs.
func PositionScore(p positions.Position) float64 {
	if !p.Active() {
		return 0
	}
	tl := float64(p.TickLower)
	tu := float64(p.TickUpper)
	tc := float64(p.CurrentTick)
	l := p.Liquidity

	if !allFinite(tl, tu, tc, l) {
		return 0
	}

	sigma := sigmaFor(p.FeeTier)
	mid := (tl + tu) / 2

	gLower := gaussian(math.Abs(tc-tl), sigma)
	gMid := gaussian(math.Abs(tc-mid), sigma)
	gUpper := gaussian(math.Abs(tc-tu), sigma)

	mu := (gLower + 4*gMid + gUpper) / 6
	score := mu * l / 1e9
	if !allFinite(score) {
		return 0
	}
	return score
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NormalizedScores implements spec.md §4.8 step D: per pool, normalize raw
// position scores to sum to 1 (or all 0 if the pool's total is 0).
func NormalizedScores(scoresByPool map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(scoresByPool))
	for pool, scores := range scoresByPool {
		var total float64
		for _, s := range scores {
			total += s
		}
		normalized := make([]float64, len(scores))
		if total > 0 {
			for i, s := range scores {
				normalized[i] = s / total
			}
		}
		out[pool] = normalized
	}
	return out
}

// PositionWeight is a single active position with its pool, normalized
// score, and resolved miner identity, the shape MinerWeights consumes.
type PositionWeight struct {
	Miner            string
	Pool             string
	NormalizedScore  float64
}

const minWeight = 1e-9

// MinerWeights implements spec.md §4.8 step E: per miner, sum normalized
// score times pool emission across its active positions, zero anything
// below minWeight, then renormalize so the total sums to 1 (or leave all 0
// if the total is 0).
func MinerWeights(positionWeights []PositionWeight, poolEmissions map[string]float64) map[string]float64 {
	weights := make(map[string]float64)
	for _, pw := range positionWeights {
		e, ok := poolEmissions[pw.Pool]
		if !ok {
			continue
		}
		weights[pw.Miner] += pw.NormalizedScore * e
	}

	var total float64
	for m, w := range weights {
		if w < minWeight {
			weights[m] = 0
			continue
		}
		total += w
	}

	if total <= 0 {
		for m := range weights {
			weights[m] = 0
		}
		return weights
	}
	for m, w := range weights {
		weights[m] = w / total
	}
	return weights
}

// Compute runs the full EE pipeline (steps A-E) over a set of current
// votes, holder balances, and a miner's active positions, yielding the
// final per-miner weight vector, per spec.md §4.8.
func Compute(votes []Vote, balances []VoterBalance, minerPositions []positions.MinerPosition) map[string]float64 {
	multipliers := Multipliers(balances)
	poolEmissions := PoolEmissions(votes, multipliers)

	type scored struct {
		miner string
		pool  string
		score float64
	}
	rawByPool := make(map[string][]scored)
	for _, mp := range minerPositions {
		s := PositionScore(mp.Position)
		rawByPool[mp.Position.Pool] = append(rawByPool[mp.Position.Pool], scored{
			miner: mp.Miner,
			pool:  mp.Position.Pool,
			score: s,
		})
	}

	scoresByPool := make(map[string][]float64, len(rawByPool))
	for pool, entries := range rawByPool {
		scores := make([]float64, len(entries))
		for i, e := range entries {
			scores[i] = e.score
		}
		scoresByPool[pool] = scores
	}
	normalized := NormalizedScores(scoresByPool)

	var positionWeights []PositionWeight
	for pool, entries := range rawByPool {
		normScores := normalized[pool]
		for i, e := range entries {
			positionWeights = append(positionWeights, PositionWeight{
				Miner:           e.miner,
				Pool:            pool,
				NormalizedScore: normScores[i],
			})
		}
	}

	return MinerWeights(positionWeights, poolEmissions)
}
