package sestemplates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rejection messages returned to throttled callers.
const (
	GeneralLimitMessage = "Too many requests from this IP, please try again later."
	SendLimitMessage    = "Email sending rate limit exceeded. Please try again later."
)

// WindowResult is the outcome of one check-and-increment.
type WindowResult struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the window capacity.
	Limit int

	// Count is the number of requests admitted in the current window.
	Count int

	// ResetIn is the time until the current window ends.
	ResetIn time.Duration
}

// Remaining returns how many more requests the current window admits.
func (r WindowResult) Remaining() int {
	if r.Count >= r.Limit {
		return 0
	}
	return r.Limit - r.Count
}

// WindowStore holds fixed-window counters.
// Take must atomically check the counter for key and, when it is below
// limit, increment it. Rejected requests are not counted.
type WindowStore interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (WindowResult, error)
	Close() error
}

// MemoryStore is an in-process WindowStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

type fixedWindow struct {
	count int
	start time.Time
	end   time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithClock replaces the store's time source.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCleanupInterval sets how often expired windows are evicted.
// A non-positive interval disables background eviction.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*fixedWindow),
		now:             time.Now,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Take implements WindowStore.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration) (WindowResult, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		w = &fixedWindow{start: now, end: now.Add(window)}
		s.windows[key] = w
	}

	res := WindowResult{Limit: limit, ResetIn: w.end.Sub(now)}
	if w.count >= limit {
		res.Count = w.count
		return res, nil
	}

	w.count++
	res.Allowed = true
	res.Count = w.count
	return res, nil
}

// Len returns the number of tracked windows, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Evict removes windows that have ended.
func (s *MemoryStore) Evict() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// Close stops background eviction.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Evict()
		case <-s.stopCleanup:
			return
		}
	}
}

// takeScript admits a request only while the counter is below the limit.
// The expiry is set on the first admitted request so the window is fixed.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisStore keeps window counters in Redis so they are shared across
// replicas and survive restarts.
type RedisStore struct {
	client redis.Scripter
	closer func() error
}

// NewRedisStore wraps an existing Redis client. Close does not close it.
func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL dials Redis from a redis:// URL. Close closes the client.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisStore{client: client, closer: client.Close}, nil
}

// Take implements WindowStore.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration) (WindowResult, error) {
	vals, err := takeScript.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return WindowResult{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if len(vals) != 3 {
		return WindowResult{}, fmt.Errorf("%w: unexpected script reply %v", ErrLimiterUnavailable, vals)
	}

	resetIn := time.Duration(vals[2]) * time.Millisecond
	if vals[2] < 0 {
		resetIn = window
	}

	return WindowResult{
		Allowed: vals[0] == 1,
		Limit:   limit,
		Count:   int(vals[1]),
		ResetIn: resetIn,
	}, nil
}

// Close closes the underlying client when the store owns it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// NewWindowStore builds the store selected by cfg.
func NewWindowStore(cfg RateLimitConfig) (WindowStore, error) {
	switch strings.ToLower(cfg.Store) {
	case "", StoreMemory:
		return NewMemoryStore(WithCleanupInterval(cfg.CleanupInterval)), nil
	case StoreRedis:
		return NewRedisStoreFromURL(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("%w: unsupported rate limit store %q", ErrInvalidConfiguration, cfg.Store)
	}
}

// WindowLimiter admits up to Limit requests per caller key per fixed window.
type WindowLimiter struct {
	name    string
	prefix  string
	config  WindowConfig
	store   WindowStore
	metrics *Metrics
}

// NewWindowLimiter creates a limiter named name over store.
func NewWindowLimiter(name, prefix string, config WindowConfig, store WindowStore, metrics *Metrics) *WindowLimiter {
	return &WindowLimiter{
		name:    name,
		prefix:  prefix,
		config:  config,
		store:   store,
		metrics: metrics,
	}
}

// Name returns the limiter name.
func (l *WindowLimiter) Name() string {
	return l.name
}

// Allow counts one request for key. It returns the window state and a
// *RateLimitError when the request is rejected.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (WindowResult, error) {
	res, err := l.store.Take(ctx, l.storeKey(key), l.config.Limit, l.config.Period)
	if err != nil {
		return res, err
	}
	if !res.Allowed {
		l.metrics.RateLimitRejected(l.name)
		return res, NewRateLimitError(l.name, l.config.Message, l.config.Limit, l.config.Period, res.ResetIn)
	}
	return res, nil
}

func (l *WindowLimiter) storeKey(key string) string {
	if l.prefix == "" {
		return l.name + ":" + key
	}
	return l.prefix + ":" + l.name + ":" + key
}

// RateLimiter holds the general and send windows.
// All methods are safe for concurrent use.
type RateLimiter struct {
	General *WindowLimiter
	Send    *WindowLimiter
	store   WindowStore
}

// NewRateLimiter builds both windows over a single store.
func NewRateLimiter(config RateLimitConfig, store WindowStore, metrics *Metrics) *RateLimiter {
	general := config.General
	if general.Message == "" {
		general.Message = GeneralLimitMessage
	}
	send := config.Send
	if send.Message == "" {
		send.Message = SendLimitMessage
	}

	return &RateLimiter{
		General: NewWindowLimiter(WindowGeneral, config.KeyPrefix, general, store, metrics),
		Send:    NewWindowLimiter(WindowSend, config.KeyPrefix, send, store, metrics),
		store:   store,
	}
}

// AllowRequest applies the general window.
func (rl *RateLimiter) AllowRequest(ctx context.Context, key string) (WindowResult, error) {
	return rl.General.Allow(ctx, key)
}

// AllowSend applies the general window and then the send window.
// A request rejected by the general window does not consume send capacity.
func (rl *RateLimiter) AllowSend(ctx context.Context, key string) (WindowResult, error) {
	if res, err := rl.General.Allow(ctx, key); err != nil {
		return res, err
	}
	return rl.Send.Allow(ctx, key)
}

// Close releases the underlying store.
func (rl *RateLimiter) Close() error {
	if rl.store == nil {
		return nil
	}
	return rl.store.Close()
}

// IsRateLimited reports whether err is a window rejection, as opposed to a
// store failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
