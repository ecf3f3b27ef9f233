// Package ratelimit implements the fixed-window rate-limit engine (§4.D):
// check/consume/report a counter keyed by (operation, identifier), shared
// across instances via the store and surviving restarts.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/albri/mdplane-sub004/internal/store"
)

// Result is the outcome of a rate-limit check, enough to build both the
// success headers and the 429 error body.
type Result struct {
	Allowed        bool
	Limit          int
	Remaining      int
	ResetAtSec     int64
	RetryAfterSec  int64
	Window         Limit
	Operation      Operation
}

// Engine checks and reports fixed-window rate limits against a shared store.
type Engine struct {
	store  store.RateLimitStore
	config Config
}

// New builds an Engine over the given store and resolved per-operation config.
func New(s store.RateLimitStore, cfg Config) *Engine {
	return &Engine{store: s, config: cfg}
}

func bucketKey(op Operation, identifier string) string {
	return fmt.Sprintf("%s:%s", op, identifier)
}

// Check performs the fixed-window check-and-consume described in §4.D. A
// non-nil customLimit overrides the configured default for this call only.
func (e *Engine) Check(ctx context.Context, identifier string, op Operation, customLimit *Limit) (Result, error) {
	limit := e.config.Limit(op)
	if customLimit != nil {
		limit = *customLimit
	}

	key := bucketKey(op, identifier)
	now := time.Now()

	counter, allowed, err := e.store.CheckAndConsume(ctx, key, now, limit.Window, limit.Max)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: check failed for %s: %w", key, err)
	}

	windowEnd := time.UnixMilli(counter.WindowStart).Add(limit.Window)
	resetAtSec := windowEnd.Unix()

	remaining := limit.Max - counter.Count
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter int64
	if !allowed {
		remaining = 0
		retryAfter = int64(math.Ceil(windowEnd.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
	}

	return Result{
		Allowed:       allowed,
		Limit:         limit.Max,
		Remaining:     remaining,
		ResetAtSec:    resetAtSec,
		RetryAfterSec: retryAfter,
		Window:        limit,
		Operation:     op,
	}, nil
}

// Status returns the current counter state without mutating it.
func (e *Engine) Status(ctx context.Context, identifier string, op Operation, customLimit *Limit) (Result, error) {
	limit := e.config.Limit(op)
	if customLimit != nil {
		limit = *customLimit
	}

	key := bucketKey(op, identifier)
	now := time.Now()

	counter, found, err := e.store.Peek(ctx, key, now, limit.Window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: status failed for %s: %w", key, err)
	}
	if !found {
		return Result{
			Allowed:    true,
			Limit:      limit.Max,
			Remaining:  limit.Max,
			ResetAtSec: now.Add(limit.Window).Unix(),
			Window:     limit,
			Operation:  op,
		}, nil
	}

	windowEnd := time.UnixMilli(counter.WindowStart).Add(limit.Window)
	remaining := limit.Max - counter.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    counter.Count < limit.Max,
		Limit:      limit.Max,
		Remaining:  remaining,
		ResetAtSec: windowEnd.Unix(),
		Window:     limit,
		Operation:  op,
	}, nil
}

// CleanupExpired deletes counters whose window has closed relative to the
// largest configured window; this runs from the background scheduler (§4.K).
func (e *Engine) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return e.store.DeleteExpired(ctx, now, e.config.MaxWindow())
}

// BuildHeaders sets the standard X-RateLimit-* headers (and Retry-After on
// rejection) on w per §4.D / §6.
func BuildHeaders(w http.ResponseWriter, r Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetAtSec, 10))
	if !r.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(r.RetryAfterSec, 10))
	}
}

// ErrorBody is the 429 JSON body shape from §6.
type ErrorBody struct {
	OK    bool `json:"ok"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Limit             int    `json:"limit"`
			Window            string `json:"window"`
			RetryAfterSeconds int64  `json:"retryAfterSeconds"`
			ResetAt           string `json:"resetAt"`
		} `json:"details"`
	} `json:"error"`
}

// BuildErrorBody builds the §6 429 response body for r.
func BuildErrorBody(r Result) ErrorBody {
	var body ErrorBody
	body.OK = false
	body.Error.Code = "RATE_LIMITED"
	body.Error.Message = fmt.Sprintf("Rate limit exceeded. Please retry after %d seconds.", r.RetryAfterSec)
	body.Error.Details.Limit = r.Limit
	body.Error.Details.Window = r.Window.WindowLabel()
	body.Error.Details.RetryAfterSeconds = r.RetryAfterSec
	body.Error.Details.ResetAt = time.Unix(r.ResetAtSec, 0).UTC().Format(time.RFC3339)
	return body
}
