package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/samirrijal/routeviz/internal/core/domain"
	"github.com/samirrijal/routeviz/internal/pkg/geospatial"
	"github.com/samirrijal/routeviz/internal/tiles"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Map       MapConfig       `mapstructure:"map"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    int           `mapstructure:"read_timeout"`
	WriteTimeout   int           `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SurfacePing    time.Duration `mapstructure:"surface_ping"`
	AllowOrigins   string        `mapstructure:"allow_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MapConfig selects the map backend and tunes its basemap and framing.
type MapConfig struct {
	Provider string       `mapstructure:"provider"`
	Primary  tiles.Source `mapstructure:"primary"`
	Fallback tiles.Source `mapstructure:"fallback"`

	TileTimeout      time.Duration `mapstructure:"tile_timeout"`
	ErrorWindow      time.Duration `mapstructure:"error_window"`
	ErrorThreshold   int           `mapstructure:"error_threshold"`
	MaxInFlightTiles int           `mapstructure:"max_inflight_tiles"`
	TileUserAgent    string        `mapstructure:"tile_user_agent"`

	SurfaceAttempts int           `mapstructure:"surface_attempts"`
	SurfaceInterval time.Duration `mapstructure:"surface_interval"`

	BoundsPadding float64           `mapstructure:"bounds_padding"`
	PaddingPx     int               `mapstructure:"padding_px"`
	DefaultZoom   float64           `mapstructure:"default_zoom"`
	DefaultCenter domain.Coordinate `mapstructure:"default_center"`
}

// Breaker returns the tile circuit breaker tuning.
func (m MapConfig) Breaker() tiles.BreakerConfig {
	return tiles.BreakerConfig{
		TileTimeout:    m.TileTimeout,
		ErrorWindow:    m.ErrorWindow,
		ErrorThreshold: m.ErrorThreshold,
		MaxInFlight:    m.MaxInFlightTiles,
	}
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// ConsumeRequests turns on the queued render-request consumer.
	ConsumeRequests bool `mapstructure:"consume_requests"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.surface_ping", "30s")
	v.SetDefault("server.allow_origins", "http://localhost:3000, http://localhost:5173")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("map.provider", "vector")
	v.SetDefault("map.primary.name", "carto")
	v.SetDefault("map.primary.url_template", "https://{s}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}{r}.png")
	v.SetDefault("map.primary.subdomains", []string{"a", "b", "c", "d"})
	v.SetDefault("map.primary.attribution", "© OpenStreetMap contributors © CARTO")
	v.SetDefault("map.primary.max_zoom", 19)
	v.SetDefault("map.fallback.name", "osm")
	v.SetDefault("map.fallback.url_template", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.fallback.attribution", "© OpenStreetMap contributors")
	v.SetDefault("map.fallback.max_zoom", 19)
	v.SetDefault("map.tile_timeout", "4s")
	v.SetDefault("map.error_window", "10s")
	v.SetDefault("map.error_threshold", 5)
	v.SetDefault("map.max_inflight_tiles", 256)
	v.SetDefault("map.tile_user_agent", service)
	v.SetDefault("map.surface_attempts", 60)
	v.SetDefault("map.surface_interval", "100ms")
	v.SetDefault("map.bounds_padding", 0.2)
	v.SetDefault("map.padding_px", 40)
	v.SetDefault("map.default_zoom", 4)
	v.SetDefault("map.default_center.lat", 55.7558)
	v.SetDefault("map.default_center.lng", 37.6173)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "routeviz")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "routeviz")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.consume_requests", false)
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "routeviz:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ROUTEVIZ_MAP_PROVIDER → map.provider
	v.SetEnvPrefix("ROUTEVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Map.Provider {
	case "vector", "raster":
	default:
		errs = append(errs, fmt.Sprintf("map.provider must be vector or raster, got %q", c.Map.Provider))
	}
	if err := c.Map.Primary.Validate(); err != nil {
		errs = append(errs, "map.primary: "+err.Error())
	}
	if err := c.Map.Fallback.Validate(); err != nil {
		errs = append(errs, "map.fallback: "+err.Error())
	}
	if c.Map.Primary.Name != "" && c.Map.Primary.Name == c.Map.Fallback.Name {
		errs = append(errs, "map.primary and map.fallback must have different names")
	}
	if c.Map.TileTimeout <= 0 {
		errs = append(errs, "map.tile_timeout must be positive")
	}
	if c.Map.ErrorWindow <= 0 {
		errs = append(errs, "map.error_window must be positive")
	}
	if c.Map.ErrorThreshold <= 0 {
		errs = append(errs, "map.error_threshold must be positive")
	}
	if c.Map.SurfaceAttempts <= 0 {
		errs = append(errs, "map.surface_attempts must be positive")
	}
	if c.Map.BoundsPadding < 0 {
		errs = append(errs, "map.bounds_padding must not be negative")
	}
	if c.Map.PaddingPx < 0 {
		errs = append(errs, "map.padding_px must not be negative")
	}
	if err := geospatial.ValidateCoordinate(c.Map.DefaultCenter); err != nil {
		errs = append(errs, "map.default_center: "+err.Error())
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.NATS.ConsumeRequests && !c.NATS.Enabled {
		errs = append(errs, "nats.consume_requests needs nats.enabled")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
