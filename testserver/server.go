// Package testserver provides an in-memory leaderboard service with the same
// routes, validation and status codes as the real one. It is used by the
// integration tests and by cmd/testserver for local runs.
package testserver

import (
	"math"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ScoreMin  = 0
	ScoreMax  = 1_000_000
	UserIDMin = 1
	UserIDMax = math.MaxInt32

	DefaultLimit = 10
	MaxLimit     = 100
)

// GameModes are the modes the service accepts.
var GameModes = []string{"story", "multiplayer"}

// Options tune the simulated service.
type Options struct {
	// FailRate is the fraction of leaderboard requests answered with 500.
	FailRate float64
	MinDelay time.Duration
	MaxDelay time.Duration
	// Seed fixes the random stream used for failures and delays. 0 seeds randomly.
	Seed   uint64
	Logger *zap.Logger
}

// Entry is one player's standing in a game mode.
type Entry struct {
	Rank       int   `json:"rank"`
	UserID     int64 `json:"userId"`
	TotalScore int64 `json:"totalScore"`
}

// Server is the stub leaderboard.
type Server struct {
	engine *gin.Engine
	opts   Options
	log    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu     sync.RWMutex
	scores map[string]map[int64]int64 // game mode -> user -> total score

	requests atomic.Int64
}

// New builds a server with every route registered.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	seed1, seed2 := opts.Seed, opts.Seed^0x9e3779b97f4a7c15
	if opts.Seed == 0 {
		seed1, seed2 = rand.Uint64(), rand.Uint64()
	}

	s := &Server{
		engine: gin.New(),
		opts:   opts,
		log:    log,
		rng:    rand.New(rand.NewPCG(seed1, seed2)),
		scores: make(map[string]map[int64]int64, len(GameModes)),
	}
	for _, m := range GameModes {
		s.scores[m] = make(map[int64]int64)
	}

	s.engine.Use(gin.Recovery(), s.logRequest)
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api/leaderboard", s.count, s.simulate)
	api.POST("/submit", s.handleSubmit)
	api.GET("/top", s.handleTop)
	api.GET("/rank/:user_id", s.handleRank)

	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Requests is the number of leaderboard requests received so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// SetScore stores a total score directly, bypassing validation.
func (s *Server) SetScore(gameMode string, userID, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scores[gameMode]; !ok {
		s.scores[gameMode] = make(map[int64]int64)
	}
	s.scores[gameMode][userID] = total
}

func (s *Server) logRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)),
	)
}

func (s *Server) count(c *gin.Context) {
	s.requests.Add(1)
	c.Next()
}

// simulate injects latency and random failures before the real handler runs.
func (s *Server) simulate(c *gin.Context) {
	delay, fail := s.roll()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request.Context().Done():
			c.Abort()
			return
		}
	}
	if fail {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
			"message": "simulated failure",
		})
		return
	}
	c.Next()
}

func (s *Server) roll() (time.Duration, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	delay := s.opts.MinDelay
	if span := s.opts.MaxDelay - s.opts.MinDelay; span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span) + 1))
	}
	fail := s.opts.FailRate > 0 && s.rng.Float64() < s.opts.FailRate
	return delay, fail
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  "connected",
		"redis":     "connected",
	})
}

type submitRequest struct {
	UserID   *float64 `json:"user_id"`
	Score    *float64 `json:"score"`
	GameMode string   `json:"game_mode"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	userID, msg := validateUserID(req.UserID)
	if msg != "" {
		badRequest(c, msg)
		return
	}
	score, msg := validateScore(req.Score)
	if msg != "" {
		badRequest(c, msg)
		return
	}
	if msg := validateGameMode(req.GameMode); msg != "" {
		badRequest(c, msg)
		return
	}

	s.mu.Lock()
	s.scores[req.GameMode][userID] += score
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Score submitted successfully",
	})
}

func (s *Server) handleTop(c *gin.Context) {
	limit := DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLimit {
			badRequest(c, "Limit must be between 1 and "+strconv.Itoa(MaxLimit))
			return
		}
		limit = n
	}

	gameMode := c.DefaultQuery("game_mode", "story")
	if msg := validateGameMode(gameMode); msg != "" {
		badRequest(c, msg)
		return
	}

	data := s.top(gameMode, limit)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     data,
		"gameMode": gameMode,
		"limit":    limit,
	})
}

func (s *Server) handleRank(c *gin.Context) {
	raw, err := strconv.ParseFloat(c.Param("user_id"), 64)
	if err != nil {
		badRequest(c, "User ID must be a number")
		return
	}
	userID, msg := validateUserID(&raw)
	if msg != "" {
		badRequest(c, msg)
		return
	}

	gameMode := c.DefaultQuery("game_mode", "story")
	if msg := validateGameMode(gameMode); msg != "" {
		badRequest(c, msg)
		return
	}

	entry, ok := s.rank(gameMode, userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success":  false,
			"error":    "Player not found in leaderboard",
			"userId":   userID,
			"gameMode": gameMode,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     entry,
		"gameMode": gameMode,
	})
}

// standings returns every entry of a mode ordered by score, highest first.
// Ties are broken by user id. Callers hold s.mu.
func (s *Server) standings(gameMode string) []Entry {
	board := s.scores[gameMode]
	entries := make([]Entry, 0, len(board))
	for id, total := range board {
		entries = append(entries, Entry{UserID: id, TotalScore: total})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.TotalScore != b.TotalScore {
			if a.TotalScore > b.TotalScore {
				return -1
			}
			return 1
		}
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *Server) top(gameMode string, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.standings(gameMode)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func (s *Server) rank(gameMode string, userID int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scores[gameMode][userID]; !ok {
		return Entry{}, false
	}
	for _, e := range s.standings(gameMode) {
		if e.UserID == userID {
			return e, true
		}
	}
	return Entry{}, false
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func validateUserID(v *float64) (int64, string) {
	switch {
	case v == nil:
		return 0, "User ID is required"
	case *v != math.Trunc(*v):
		return 0, "User ID must be an integer"
	case *v < UserIDMin:
		return 0, "User ID must be at least " + strconv.Itoa(UserIDMin)
	case *v > UserIDMax:
		return 0, "User ID exceeds maximum value: " + strconv.Itoa(UserIDMax)
	}
	return int64(*v), ""
}

func validateScore(v *float64) (int64, string) {
	switch {
	case v == nil:
		return 0, "Score is required"
	case math.IsInf(*v, 0) || math.IsNaN(*v):
		return 0, "Score must be a finite number"
	case *v < ScoreMin:
		return 0, "Score cannot be negative. Minimum: " + strconv.Itoa(ScoreMin)
	case *v > ScoreMax:
		return 0, "Score exceeds maximum allowed value: " + strconv.Itoa(ScoreMax)
	case *v != math.Trunc(*v):
		return 0, "Score must be an integer"
	}
	return int64(*v), ""
}

func validateGameMode(m string) string {
	if m == "" {
		return "Game mode is required"
	}
	if !slices.Contains(GameModes, m) {
		return "Game mode must be one of: story, multiplayer"
	}
	return ""
}
