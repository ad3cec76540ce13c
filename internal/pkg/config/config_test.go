package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/routeviz/internal/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("routeviz-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "vector", cfg.Map.Provider)
	assert.Equal(t, "carto", cfg.Map.Primary.Name)
	assert.Equal(t, []string{"a", "b", "c", "d"}, cfg.Map.Primary.Subdomains)
	assert.Equal(t, "osm", cfg.Map.Fallback.Name)
	assert.Equal(t, 4*time.Second, cfg.Map.TileTimeout)
	assert.Equal(t, 10*time.Second, cfg.Map.ErrorWindow)
	assert.Equal(t, 5, cfg.Map.ErrorThreshold)
	assert.Equal(t, 60, cfg.Map.SurfaceAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Map.SurfaceInterval)
	assert.InDelta(t, 0.2, cfg.Map.BoundsPadding, 1e-9)
	assert.Equal(t, 40, cfg.Map.PaddingPx)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "routeviz-test", cfg.Telemetry.ServiceName)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROUTEVIZ_MAP_PROVIDER", "raster")
	t.Setenv("ROUTEVIZ_MAP_ERROR_THRESHOLD", "3")
	t.Setenv("ROUTEVIZ_SERVER_PORT", "9090")

	cfg, err := config.Load("routeviz-test")
	require.NoError(t, err)
	assert.Equal(t, "raster", cfg.Map.Provider)
	assert.Equal(t, 3, cfg.Map.ErrorThreshold)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("ROUTEVIZ_MAP_PROVIDER", "canvas")

	_, err := config.Load("routeviz-test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "map.provider")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg, err := config.Load("routeviz-test")
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Map.Fallback.URLTemplate = "https://osm.test/tiles.png"
	cfg.Map.ErrorThreshold = 0
	cfg.Database.Enabled = true
	cfg.Database.Host = ""

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, "map.fallback")
	assert.Contains(t, msg, "map.error_threshold")
	assert.Contains(t, msg, "database.host")
}

func TestValidate_SameSourceNames(t *testing.T) {
	cfg, err := config.Load("routeviz-test")
	require.NoError(t, err)

	cfg.Map.Fallback.Name = cfg.Map.Primary.Name
	assert.ErrorContains(t, cfg.Validate(), "different names")
}

func TestMapConfig_Breaker(t *testing.T) {
	m := config.MapConfig{TileTimeout: time.Second, ErrorWindow: 5 * time.Second, ErrorThreshold: 2, MaxInFlightTiles: 8}
	b := m.Breaker()
	assert.Equal(t, time.Second, b.TileTimeout)
	assert.Equal(t, 5*time.Second, b.ErrorWindow)
	assert.Equal(t, 2, b.ErrorThreshold)
	assert.Equal(t, 8, b.MaxInFlight)
}
