// Package data loads player pools: fixed sets of user ids that the workers
// draw from instead of the synthetic id range, so rank lookups can target
// players that exist on the service.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
)

// Mode defines how ids are picked from the pool.
type Mode string

const (
	// ModeSequential walks the pool in order, wrapping around. The position is
	// shared by all workers.
	ModeSequential Mode = "sequential"
	// ModeRandom draws a uniformly random id on every call.
	ModeRandom Mode = "random"
)

// UserIDColumn is the CSV header and JSON field holding the id.
const UserIDColumn = "user_id"

// ParseMode accepts "", "sequential" and "random". Empty means random.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRandom:
		return ModeRandom, nil
	case ModeSequential:
		return ModeSequential, nil
	}
	return "", fmt.Errorf("unknown pool mode %q (use sequential or random)", s)
}

// Pool is an immutable list of user ids. Safe for concurrent use.
type Pool struct {
	ids     []int
	mode    Mode
	counter atomic.Uint64
}

func NewPool(ids []int, mode Mode) *Pool {
	if mode == "" {
		mode = ModeRandom
	}
	return &Pool{ids: ids, mode: mode}
}

func (p *Pool) Len() int { return len(p.ids) }

func (p *Pool) Mode() Mode { return p.mode }

// Next returns the next id. rng is the caller's own stream and is only used
// in random mode.
func (p *Pool) Next(rng *rand.Rand) int {
	if p.mode == ModeSequential {
		n := p.counter.Add(1) - 1
		return p.ids[n%uint64(len(p.ids))]
	}
	return p.ids[rng.IntN(len(p.ids))]
}

// LoadPool reads a .csv file with a user_id header or a .json file holding
// either an array of ids or an array of objects with a user_id field.
// Relative paths are resolved against baseDir.
func LoadPool(path string, mode Mode, baseDir string) (*Pool, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	var (
		ids []int
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		ids, err = loadCSV(path)
	case ".json":
		ids, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported player file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("player file %s is empty", path)
	}

	return NewPool(ids, mode), nil
}

func loadCSV(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), UserIDColumn) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("missing %s column", UserIDColumn)
	}

	var ids []int
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if col >= len(record) {
			return nil, fmt.Errorf("line %d: missing %s", line, UserIDColumn)
		}
		id, err := parseID(record[col])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func loadJSON(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var plain []int
	if err := jsoniter.Unmarshal(raw, &plain); err == nil {
		for i, id := range plain {
			if id < 1 {
				return nil, fmt.Errorf("entry %d: user id must be positive, got %d", i, id)
			}
		}
		return plain, nil
	}

	var rows []struct {
		UserID *int `json:"user_id"`
	}
	if err := jsoniter.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of ids or of objects with %s: %w", UserIDColumn, err)
	}
	ids := make([]int, 0, len(rows))
	for i, r := range rows {
		if r.UserID == nil {
			return nil, fmt.Errorf("entry %d: missing %s", i, UserIDColumn)
		}
		if *r.UserID < 1 {
			return nil, fmt.Errorf("entry %d: user id must be positive, got %d", i, *r.UserID)
		}
		ids = append(ids, *r.UserID)
	}
	return ids, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	if id < 1 {
		return 0, fmt.Errorf("user id must be positive, got %d", id)
	}
	return id, nil
}
