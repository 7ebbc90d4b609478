// Package http invokes the leaderboard service operations and probes its
// health endpoint.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"scoreload/internal/core"
)

const (
	// maxDebugBodySize limits the response body kept for verbose logging.
	maxDebugBodySize = 4096
	// maxDrainSize bounds how much of a response body is discarded so the
	// connection can be reused.
	maxDrainSize = 1 << 20
)

type submitBody struct {
	UserID   int    `json:"user_id"`
	Score    int    `json:"score"`
	GameMode string `json:"game_mode"`
}

// NewClient returns an http.Client whose idle pool fits one connection per
// worker. Per-call deadlines come from the request context.
func NewClient(workers int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if workers > transport.MaxIdleConnsPerHost {
		transport.MaxIdleConnsPerHost = workers
	}
	if workers > transport.MaxIdleConns {
		transport.MaxIdleConns = workers
	}
	return &http.Client{Transport: transport}
}

// Invoker performs the three leaderboard operations. It is safe for
// concurrent use by many workers.
type Invoker struct {
	base    string
	client  *http.Client
	timeout time.Duration
	debug   *DebugLogger
}

func NewInvoker(baseURL string, client *http.Client, timeout time.Duration, debug *DebugLogger) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Invoker{
		base:    strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
		debug:   debug,
	}
}

// Invoke performs req and measures its latency. It never returns an error:
// any failure produces a Sample with Succeeded=false and the latency up to
// the point of failure. Only HTTP 200 counts as success.
func (v *Invoker) Invoke(ctx context.Context, req core.Request) core.Sample {
	start := time.Now()
	sample := core.Sample{Kind: req.Kind, Timestamp: start}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	httpReq, body, err := v.newRequest(ctx, req)
	if err != nil {
		sample.Latency = time.Since(start)
		sample.Error = err.Error()
		v.debug.LogError(req.Kind, sample.Error, sample.Latency)
		return sample
	}
	v.debug.LogRequest(req.Kind, httpReq, body)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		sample.Latency = time.Since(start)
		sample.Error = err.Error()
		v.debug.LogError(req.Kind, sample.Error, sample.Latency)
		return sample
	}
	defer resp.Body.Close()

	var respBody []byte
	if v.debug != nil {
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxDebugBodySize))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	sample.Latency = time.Since(start)

	sample.StatusCode = resp.StatusCode
	sample.Succeeded = resp.StatusCode == http.StatusOK
	if !sample.Succeeded {
		sample.Error = resp.Status
	}
	v.debug.LogResponse(req.Kind, resp, respBody, sample.Latency)
	return sample
}

func (v *Invoker) newRequest(ctx context.Context, req core.Request) (*http.Request, []byte, error) {
	p := req.Params

	switch req.Kind {
	case core.Submit:
		body, err := jsoniter.Marshal(submitBody{UserID: p.UserID, Score: p.Score, GameMode: p.GameMode})
		if err != nil {
			return nil, nil, fmt.Errorf("encoding submit body: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.base+"/submit", bytes.NewReader(body))
		if err != nil {
			return nil, nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, body, nil

	case core.TopPlayers:
		q := url.Values{}
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("game_mode", p.GameMode)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, v.base+"/top?"+q.Encode(), nil)
		return httpReq, nil, err

	case core.RankLookup:
		q := url.Values{}
		q.Set("game_mode", p.GameMode)
		target := v.base + "/rank/" + strconv.Itoa(p.UserID) + "?" + q.Encode()
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		return httpReq, nil, err
	}

	return nil, nil, fmt.Errorf("unsupported action %s", req.Kind)
}
