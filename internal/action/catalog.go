// Package action defines the weighted catalog of simulated leaderboard actions
// and synthesizes their randomized request parameters.
package action

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"scoreload/internal/core"
)

// Parameter ranges for synthesized requests.
const (
	MinUserID = 1
	MaxUserID = 1_000_000
	MinScore  = 100
	MaxScore  = 10_000
)

// TopLimits are the page sizes requested by TopPlayers.
var TopLimits = []int{10, 20, 50}

// Weights maps each action kind to its relative selection weight.
type Weights map[core.ActionKind]int

// DefaultWeights is the 50/30/20 mix of submits, top queries and rank lookups.
func DefaultWeights() Weights {
	return Weights{
		core.Submit:     50,
		core.TopPlayers: 30,
		core.RankLookup: 20,
	}
}

// Catalog selects actions by weight and fills in their parameters.
// A Catalog is immutable and safe for concurrent use; randomness comes from
// the caller's rng.
type Catalog struct {
	kinds      []core.ActionKind
	cumulative []int
	total      int
	gameModes  []string
	users      UserSource
}

// UserSource supplies player ids in place of the synthetic id range.
// Implementations must be safe for concurrent use.
type UserSource interface {
	Next(rng *rand.Rand) int
}

// NewCatalog validates weights and game modes and builds the cumulative table.
func NewCatalog(weights Weights, gameModes []string) (*Catalog, error) {
	if len(weights) == 0 {
		return nil, errors.New("no action weights configured")
	}
	if len(gameModes) == 0 {
		return nil, errors.New("no game modes configured")
	}

	c := &Catalog{gameModes: append([]string(nil), gameModes...)}
	for _, kind := range core.AllActionKinds {
		w, ok := weights[kind]
		if !ok {
			continue
		}
		if w <= 0 {
			return nil, fmt.Errorf("weight for %s must be positive, got %d", kind, w)
		}
		c.total += w
		c.kinds = append(c.kinds, kind)
		c.cumulative = append(c.cumulative, c.total)
	}
	if len(c.kinds) != len(weights) {
		return nil, errors.New("weights contain an unknown action kind")
	}
	return c, nil
}

// Select draws one action kind with probability proportional to its weight.
func (c *Catalog) Select(rng *rand.Rand) core.ActionKind {
	r := rng.IntN(c.total)
	// first cumulative bound strictly greater than r
	i := sort.Search(len(c.cumulative), func(i int) bool { return c.cumulative[i] > r })
	return c.kinds[i]
}

// Params synthesizes randomized parameters for kind.
func (c *Catalog) Params(kind core.ActionKind, rng *rand.Rand) core.Params {
	p := core.Params{
		UserID:   c.userID(rng),
		GameMode: c.gameModes[rng.IntN(len(c.gameModes))],
	}
	switch kind {
	case core.Submit:
		p.Score = MinScore + rng.IntN(MaxScore-MinScore+1)
	case core.TopPlayers:
		p.Limit = TopLimits[rng.IntN(len(TopLimits))]
	}
	return p
}

// WithUsers returns a copy of c that draws user ids from src.
func (c *Catalog) WithUsers(src UserSource) *Catalog {
	cp := *c
	cp.users = src
	return &cp
}

func (c *Catalog) userID(rng *rand.Rand) int {
	if c.users != nil {
		return c.users.Next(rng)
	}
	return MinUserID + rng.IntN(MaxUserID-MinUserID+1)
}

// Plan implements core.Planner.
func (c *Catalog) Plan(rng *rand.Rand) core.Request {
	kind := c.Select(rng)
	return core.Request{Kind: kind, Params: c.Params(kind, rng)}
}

// Probability returns the configured selection probability of kind.
func (c *Catalog) Probability(kind core.ActionKind) float64 {
	prev := 0
	for i, k := range c.kinds {
		if k == kind {
			return float64(c.cumulative[i]-prev) / float64(c.total)
		}
		prev = c.cumulative[i]
	}
	return 0
}
