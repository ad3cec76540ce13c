package tiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/routeviz/internal/core/domain"
)

// LayerConfig names the two basemaps and the breaker tuning.
type LayerConfig struct {
	Primary  Source
	Fallback Source
	Breaker  BreakerConfig
}

// LayerHooks are invoked outside the layer lock.
type LayerHooks struct {
	// OnSwap fires once, when the layer moves to the fallback source.
	OnSwap func(from, to Source)
	// OnStateChange fires on every breaker transition.
	OnStateChange func(domain.TileLoadState)
	// OnLoad observes every settled load.
	OnLoad func(source string, err error)
}

// Layer serves tiles from the primary source until its breaker trips,
// then from the fallback for the rest of its life.
type Layer struct {
	mu      sync.RWMutex
	cfg     LayerConfig
	fetcher Fetcher
	breaker *Breaker
	hooks   LayerHooks
	logger  *slog.Logger
	active  Source
	swapped bool
}

// NewLayer validates both sources and starts on the primary.
func NewLayer(cfg LayerConfig, fetcher Fetcher, clk clock.Clock, logger *slog.Logger, hooks LayerHooks) (*Layer, error) {
	if err := cfg.Primary.Validate(); err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}
	if err := cfg.Fallback.Validate(); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	if fetcher == nil {
		return nil, errors.New("tile fetcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Layer{
		cfg:     cfg,
		fetcher: fetcher,
		hooks:   hooks,
		logger:  logger.With("component", "tile_layer"),
		active:  cfg.Primary,
	}
	l.breaker = NewBreaker(cfg.Breaker, clk, l.logger, BreakerHooks{
		OnTrip: l.swap,
		OnStateChange: func(st domain.TileState) {
			// the trip is reported by swap once the fallback is active
			if st != domain.TileFallback {
				l.notifyState()
			}
		},
	})
	return l, nil
}

// Load fetches z/x/y from the active source. Exceeding the tile timeout
// yields domain.ErrTileTimeout; other failures wrap domain.ErrTileLoad.
// A caller that cancels ctx does not count against the source.
func (l *Layer) Load(ctx context.Context, z, x, y int) ([]byte, error) {
	src := l.Active()
	if !src.Contains(z, x, y) {
		return nil, fmt.Errorf("%w: %d/%d/%d outside %s", domain.ErrTileLoad, z, x, y, src.Name)
	}

	key := src.Key(z, x, y)
	l.breaker.Begin(key)

	loadCtx, cancel := context.WithTimeout(ctx, l.breaker.cfg.TileTimeout)
	defer cancel()

	body, err := l.fetcher.Fetch(loadCtx, src.URL(z, x, y))
	switch {
	case err == nil:
		l.breaker.Succeed(key)
	case ctx.Err() != nil:
		l.breaker.Abandon(key)
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		l.breaker.Fail(key, err)
		err = fmt.Errorf("%w: %s", domain.ErrTileTimeout, key)
	default:
		l.breaker.Fail(key, err)
		err = fmt.Errorf("%w: %s: %v", domain.ErrTileLoad, key, err)
	}

	if l.hooks.OnLoad != nil {
		l.hooks.OnLoad(src.Name, err)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Active returns the source currently serving tiles.
func (l *Layer) Active() Source {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// State reports breaker diagnostics together with the active source.
func (l *Layer) State() domain.TileLoadState {
	st := l.breaker.Snapshot()
	st.ActiveSource = l.Active().Name
	return st
}

// Close stops all pending tile timers.
func (l *Layer) Close() {
	l.breaker.Close()
}

func (l *Layer) swap() {
	l.mu.Lock()
	if l.swapped {
		l.mu.Unlock()
		return
	}
	from := l.active
	l.active = l.cfg.Fallback
	l.swapped = true
	l.mu.Unlock()

	l.logger.Warn("switching basemap to fallback source", "from", from.Name, "to", l.cfg.Fallback.Name)
	if l.hooks.OnSwap != nil {
		l.hooks.OnSwap(from, l.cfg.Fallback)
	}
	l.notifyState()
}

func (l *Layer) notifyState() {
	if l.hooks.OnStateChange != nil {
		l.hooks.OnStateChange(l.State())
	}
}
