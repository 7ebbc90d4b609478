// Package core defines the fundamental types and interfaces shared by the
// scoreload traffic generator.
package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// ActionKind identifies one of the simulated user operations.
type ActionKind int

const (
	Submit ActionKind = iota
	TopPlayers
	RankLookup

	// NumActionKinds is the size of the fixed ActionKind set.
	NumActionKinds = 3
)

// AllActionKinds lists every ActionKind in report order.
var AllActionKinds = [NumActionKinds]ActionKind{Submit, TopPlayers, RankLookup}

var actionNames = [NumActionKinds]string{"submit", "top_players", "rank_lookup"}

func (k ActionKind) String() string {
	if k < 0 || int(k) >= NumActionKinds {
		return fmt.Sprintf("action(%d)", int(k))
	}
	return actionNames[k]
}

// Label is the upper-case name used in reports.
func (k ActionKind) Label() string {
	return strings.ToUpper(k.String())
}

// ParseActionKind maps a configuration name to its ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range actionNames {
		if n == name {
			return ActionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown action %q (valid: %s)", s, strings.Join(actionNames[:], ", "))
}

// Params holds the randomized request parameters for one action.
// Limit is only meaningful for TopPlayers.
type Params struct {
	UserID   int
	Score    int
	GameMode string
	Limit    int
}

// Request is a planned action ready to be invoked.
type Request struct {
	Kind   ActionKind
	Params Params
}

// Sample is one measured invocation outcome.
type Sample struct {
	Kind       ActionKind
	WorkerID   int
	Timestamp  time.Time
	Latency    time.Duration
	Succeeded  bool
	StatusCode int    // 0 when no response was received
	Error      string // transport error or non-success status text
}

// Planner chooses the next request for a worker.
type Planner interface {
	Plan(rng *rand.Rand) Request
}

// Invoker executes one request against the remote service.
// Implementations never return errors: failures are reported in the Sample.
type Invoker interface {
	Invoke(ctx context.Context, req Request) Sample
}

// Recorder accumulates samples. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(Sample)
}

// Limiter gates the start of each invocation.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NullRecorder discards all samples (used during warmup).
var NullRecorder Recorder = nullRecorder{}

type nullRecorder struct{}

func (nullRecorder) Record(Sample) {}

// Recorders fans a sample out to several recorders in order.
type Recorders []Recorder

func (rs Recorders) Record(s Sample) {
	for _, r := range rs {
		if r != nil {
			r.Record(s)
		}
	}
}
