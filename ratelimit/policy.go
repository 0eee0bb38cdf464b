// Package ratelimit tracks throttling signals from the host platform so the
// gateway stops calling a bucket while the platform asks it to back off.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// Key names a throttling bucket: one tenant, one platform module.
type Key struct {
	Tenant string
	Bucket string
}

func (k Key) normalized() Key {
	return Key{
		Tenant: strings.TrimSpace(strings.ToLower(k.Tenant)),
		Bucket: strings.TrimSpace(strings.ToLower(k.Bucket)),
	}
}

func (k Key) String() string {
	return k.Tenant + "|" + k.Bucket
}

// BucketForPath keys platform paths by their first segment, so
// /circulation/loans and /circulation/requests share a bucket.
func BucketForPath(path string) string {
	path = strings.TrimSpace(path)
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}
	if idx := strings.Index(path, "/"); idx >= 0 {
		path = path[:idx]
	}
	return strings.ToLower(path)
}

// Response carries the parts of a platform response the policy reads.
type Response struct {
	StatusCode int
	Headers    map[string]string
}

type State struct {
	Key            Key
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Key        Key
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: tenant %q bucket %q throttled for %s", e.Key.Tenant, e.Key.Bucket, e.RetryAfter)
}

// AdaptivePolicy honours Retry-After and X-RateLimit-* headers, falling back
// to doubling backoff for repeated 429 responses that carry no hint.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

// BeforeCall returns a ThrottledError while the bucket is inside a throttle
// window or has exhausted its quota until reset.
func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key Key) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = key.normalized()
	state, err := p.Store.Get(ctx, key)
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Key: key, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Key: key, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key Key, res Response) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = key.normalized()
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Key: key, Remaining: -1}
	case err != nil:
		return err
	}
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now

	quota := false
	if limit, ok := headerInt(res.Headers, "x-ratelimit-limit"); ok {
		state.Limit = limit
		quota = true
	}
	if remaining, ok := headerInt(res.Headers, "x-ratelimit-remaining"); ok {
		state.Remaining = remaining
		quota = true
	}
	if resetAt, ok := headerResetAt(res.Headers); ok {
		state.ResetAt = &resetAt
		quota = true
	}
	retryAfter, hasRetryAfter := parseRetryAfter(res.Headers, now)

	throttled := res.StatusCode == http.StatusTooManyRequests ||
		(res.StatusCode < http.StatusInternalServerError && quota && state.Remaining == 0)
	if !throttled {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts++
	delay := retryAfter
	switch {
	case hasRetryAfter:
	case state.ResetAt != nil && state.ResetAt.After(now):
		delay = state.ResetAt.Sub(now)
	default:
		delay = p.nextBackoff(state.Attempts)
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	delay := p.InitialBackoff
	if delay <= 0 {
		delay = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	return min(delay, maximum)
}

func parseRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := http.ParseTime(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func headerInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func headerResetAt(headers map[string]string) (time.Time, bool) {
	unix, ok := headerInt(headers, "x-ratelimit-reset")
	if !ok || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(unix), 0).UTC(), true
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[key.normalized().String()]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = state.Key.normalized()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.Key.String()] = state
	return nil
}
