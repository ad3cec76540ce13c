package tiles

import (
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// BreakerConfig tunes tile failure detection.
type BreakerConfig struct {
	TileTimeout    time.Duration // per-tile deadline, counted as an error when exceeded
	ErrorWindow    time.Duration // how long an error timestamp is remembered
	ErrorThreshold int           // outstanding errors that trip to fallback
	MaxInFlight    int           // bound on tracked tile timers
}

// DefaultBreakerConfig mirrors the reference tuning: 4s per tile,
// 10s window, 5 errors.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		TileTimeout:    4 * time.Second,
		ErrorWindow:    10 * time.Second,
		ErrorThreshold: 5,
		MaxInFlight:    256,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.TileTimeout <= 0 {
		c.TileTimeout = d.TileTimeout
	}
	if c.ErrorWindow <= 0 {
		c.ErrorWindow = d.ErrorWindow
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = d.ErrorThreshold
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	return c
}

// BreakerHooks are invoked outside the breaker lock.
type BreakerHooks struct {
	OnTrip        func()
	OnStateChange func(domain.TileState)
}

type pending struct {
	timer   *clock.Timer
	started time.Time
}

// Breaker tracks tile loads and moves Stable → Degrading → Fallback.
// Transitions are one-way; only a new Breaker starts Stable again.
// All state is guarded by a single mutex owned by the instance.
type Breaker struct {
	mu          sync.Mutex
	cfg         BreakerConfig
	clock       clock.Clock
	logger      *slog.Logger
	hooks       BreakerHooks
	state       domain.TileState
	window      []time.Time
	outstanding int
	inflight    map[string]*pending
	closed      bool
}

// NewBreaker creates a Stable breaker.
func NewBreaker(cfg BreakerConfig, clk clock.Clock, logger *slog.Logger, hooks BreakerHooks) *Breaker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		cfg:      cfg.withDefaults(),
		clock:    clk,
		logger:   logger,
		hooks:    hooks,
		state:    domain.TileStable,
		inflight: make(map[string]*pending),
	}
}

// Begin marks key as in flight and arms its timeout. Restarting a key
// re-arms it without counting an error.
func (b *Breaker) Begin(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	if p, ok := b.inflight[key]; ok {
		p.timer.Stop()
		delete(b.inflight, key)
	}
	if len(b.inflight) >= b.cfg.MaxInFlight {
		b.evictOldestLocked()
	}

	p := &pending{started: b.clock.Now()}
	p.timer = b.clock.AfterFunc(b.cfg.TileTimeout, func() { b.expire(key, p) })
	b.inflight[key] = p
}

// Succeed settles key and lowers the outstanding error count by one.
// Loads that already timed out are ignored.
func (b *Breaker) Succeed(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.settleLocked(key) {
		return
	}
	if b.outstanding > 0 {
		b.outstanding--
	}
}

// Fail settles key and records an error.
func (b *Breaker) Fail(key string, cause error) {
	b.mu.Lock()
	if !b.settleLocked(key) {
		b.mu.Unlock()
		return
	}
	fire := b.recordLocked(key, cause)
	b.mu.Unlock()
	fire()
}

// Abandon settles key without judging the tile, e.g. when the client
// went away before the load finished.
func (b *Breaker) Abandon(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settleLocked(key)
}

// State returns the current breaker state.
func (b *Breaker) State() domain.TileState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot fills the breaker part of a TileLoadState.
func (b *Breaker) Snapshot() domain.TileLoadState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(b.clock.Now())
	return domain.TileLoadState{
		State:           b.state,
		ErrorCount:      b.outstanding,
		WindowErrors:    len(b.window),
		InFlight:        len(b.inflight),
		FallbackEngaged: b.state == domain.TileFallback,
	}
}

// Close cancels every pending timer. Later calls are no-ops.
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, p := range b.inflight {
		p.timer.Stop()
		delete(b.inflight, key)
	}
}

func (b *Breaker) expire(key string, p *pending) {
	b.mu.Lock()
	if b.closed || b.inflight[key] != p {
		b.mu.Unlock()
		return
	}
	delete(b.inflight, key)
	fire := b.recordLocked(key, domain.ErrTileTimeout)
	b.mu.Unlock()
	fire()
}

// settleLocked stops and forgets key, reporting whether it was tracked.
func (b *Breaker) settleLocked(key string) bool {
	if b.closed {
		return false
	}
	p, ok := b.inflight[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(b.inflight, key)
	return true
}

// recordLocked registers one error and returns the hooks to run once the
// lock is released.
func (b *Breaker) recordLocked(key string, cause error) func() {
	now := b.clock.Now()
	b.pruneLocked(now)
	b.window = append(b.window, now)
	b.outstanding++

	if b.state == domain.TileFallback {
		b.logger.Warn("tile error on fallback source",
			"tile_key", key, "error", cause, "window_errors", len(b.window))
		return func() {}
	}

	prev := b.state
	tripped := false
	if b.outstanding >= b.cfg.ErrorThreshold {
		b.state = domain.TileFallback
		tripped = true
		b.logger.Warn("tile error threshold reached, engaging fallback",
			"tile_key", key, "error", cause, "errors", b.outstanding)
		// the fallback source is monitored from a clean slate
		b.window = b.window[:0]
		b.outstanding = 0
	} else {
		b.state = domain.TileDegrading
		b.logger.Debug("tile error", "tile_key", key, "error", cause, "errors", b.outstanding)
	}

	state := b.state
	hooks := b.hooks
	return func() {
		if state != prev && hooks.OnStateChange != nil {
			hooks.OnStateChange(state)
		}
		if tripped && hooks.OnTrip != nil {
			hooks.OnTrip()
		}
	}
}

// pruneLocked drops timestamps older than the window. The outstanding
// counter never exceeds the errors still inside the window.
func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.ErrorWindow)
	i := 0
	for i < len(b.window) && !b.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
	if b.outstanding > len(b.window) {
		b.outstanding = len(b.window)
	}
}

func (b *Breaker) evictOldestLocked() {
	var oldestKey string
	var oldest *pending
	for k, p := range b.inflight {
		if oldest == nil || p.started.Before(oldest.started) {
			oldestKey, oldest = k, p
		}
	}
	if oldest != nil {
		oldest.timer.Stop()
		delete(b.inflight, oldestKey)
	}
}
