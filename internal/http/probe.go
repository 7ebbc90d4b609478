package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

var (
	// ErrUnreachable means the health endpoint could not be reached at all.
	ErrUnreachable = errors.New("service unreachable")
	// ErrUnhealthy means the health endpoint answered with a non-200 status
	// while strict health checking was enabled.
	ErrUnhealthy = errors.New("service unhealthy")
)

const maxHealthBodySize = 4096

// leaderboardPath is the mount point of the leaderboard API under the
// service root.
const leaderboardPath = "/api/leaderboard"

// HealthURL derives the health endpoint from baseURL. When the path ends in
// /api/leaderboard, the health check sits next to it under the same prefix;
// otherwise it is /health on the host.
func HealthURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}

	root := ""
	if p := strings.TrimRight(u.Path, "/"); strings.HasSuffix(p, leaderboardPath) {
		root = strings.TrimSuffix(p, leaderboardPath)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: root + "/health"}).String(), nil
}

// HealthProbe issues the single reachability check made before a run.
type HealthProbe struct {
	url     string
	client  *http.Client
	timeout time.Duration
	strict  bool
	log     *zap.Logger
}

func NewHealthProbe(healthURL string, client *http.Client, timeout time.Duration, strict bool, log *zap.Logger) *HealthProbe {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HealthProbe{url: healthURL, client: client, timeout: timeout, strict: strict, log: log}
}

// Probe returns an error wrapping ErrUnreachable when the request fails. A
// non-200 answer is only a warning unless the probe is strict, in which case
// it returns an error wrapping ErrUnhealthy.
func (p *HealthProbe) Probe(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, p.url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxHealthBodySize))
	_, _ = io.Copy(io.Discard, resp.Body)

	fields := []zap.Field{zap.String("url", p.url), zap.Int("status_code", resp.StatusCode)}
	if gjson.ValidBytes(body) {
		if status := gjson.GetBytes(body, "status"); status.Exists() {
			fields = append(fields, zap.String("status", status.String()))
		}
	}

	if resp.StatusCode != http.StatusOK {
		if p.strict {
			return fmt.Errorf("%w: %s returned %s", ErrUnhealthy, p.url, resp.Status)
		}
		p.log.Warn("health check returned non-200, continuing", fields...)
		return nil
	}

	p.log.Info("service is healthy", fields...)
	return nil
}
