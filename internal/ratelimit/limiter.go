// Package ratelimit provides per-tool token bucket limits for the tool
// server. Requests may cost more than one token, so an expensive sampler
// run drains its bucket faster than a cheap lookup.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Limiter is a per-key token bucket. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   float64          // bucket capacity, also the initial fill
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling at rate tokens per second with
// capacity burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		nowFunc: time.Now,
	}
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes cost tokens for key, or none if fewer are available. A
// cost above the capacity is clamped to it so that large requests remain
// possible on a full bucket.
func (l *Limiter) AllowN(key string, cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.refill(key, now)

	cost = math.Min(math.Max(cost, 0), l.burst)
	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

// Tokens reports the tokens currently available for key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refill(key, l.nowFunc()).tokens
}

func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastCheck: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, l.burst)
		b.lastCheck = now
	}
	return b
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// Tool names.
const (
	ToolLikelihood = "synthlik_likelihood"
	ToolRun        = "synthlik_run"
	ToolRuns       = "synthlik_runs"
)

// StepsPerToken is how many sampler steps one synthlik_run token buys.
const StepsPerToken = 1000

// NewToolLimiters creates the default set of per-tool limiters.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		ToolLikelihood: NewLimiter(1.0, 10),       // 60/minute, burst 10
		ToolRun:        NewLimiter(10.0/60.0, 20), // 10k steps/minute, 20k burst
		ToolRuns:       NewLimiter(1.0, 10),       // 60/minute, burst 10
	}
}

// RunCost converts a sampler step count into synthlik_run tokens.
func RunCost(steps int) float64 {
	return math.Max(1, math.Ceil(float64(steps)/StepsPerToken))
}

// CheckLimit charges one token to toolName.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	return CheckCost(limiters, toolName, 1)
}

// CheckCost charges cost tokens to toolName and returns an error when the
// bucket cannot cover it.
func CheckCost(limiters ToolLimiters, toolName string, cost float64) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.AllowN(toolName, cost) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}
	return nil
}
