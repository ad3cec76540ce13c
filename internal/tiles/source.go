// Package tiles loads basemap tiles and guards them with a circuit breaker
// that switches to a fallback source after sustained failures.
package tiles

import (
	"fmt"
	"strconv"
	"strings"
)

// Source is a basemap addressed by an opaque URL template containing
// {z}, {x}, {y} and optionally {s} (subdomain) and {r} (retina suffix).
type Source struct {
	Name        string   `mapstructure:"name" json:"name"`
	URLTemplate string   `mapstructure:"url_template" json:"url_template"`
	Subdomains  []string `mapstructure:"subdomains" json:"subdomains,omitempty"`
	Attribution string   `mapstructure:"attribution" json:"attribution,omitempty"`
	MaxZoom     int      `mapstructure:"max_zoom" json:"max_zoom"`
}

// URL expands the template for one tile. Subdomains rotate by x+y so
// neighbouring tiles spread across hosts.
func (s Source) URL(z, x, y int) string {
	sub := ""
	if n := len(s.Subdomains); n > 0 {
		idx := (x + y) % n
		if idx < 0 {
			idx = -idx
		}
		sub = s.Subdomains[idx]
	}
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", sub,
		"{r}", "",
	).Replace(s.URLTemplate)
}

// Templates expands {s} into one template per subdomain and drops {r},
// leaving {z}/{x}/{y} for clients that fetch tiles themselves.
func (s Source) Templates() []string {
	base := strings.ReplaceAll(s.URLTemplate, "{r}", "")
	if len(s.Subdomains) == 0 {
		return []string{base}
	}
	out := make([]string, 0, len(s.Subdomains))
	for _, sub := range s.Subdomains {
		out = append(out, strings.ReplaceAll(base, "{s}", sub))
	}
	return out
}

// Validate checks that the template addresses individual tiles.
func (s Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("tile source name is required")
	}
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(s.URLTemplate, p) {
			return fmt.Errorf("tile source %s: url_template missing %s", s.Name, p)
		}
	}
	if strings.Contains(s.URLTemplate, "{s}") && len(s.Subdomains) == 0 {
		return fmt.Errorf("tile source %s: url_template uses {s} but no subdomains are set", s.Name)
	}
	return nil
}

// Contains reports whether z/x/y addresses a tile of this source.
func (s Source) Contains(z, x, y int) bool {
	maxZoom := s.MaxZoom
	if maxZoom <= 0 {
		maxZoom = 19
	}
	if z < 0 || z > maxZoom {
		return false
	}
	n := 1 << uint(z)
	return x >= 0 && x < n && y >= 0 && y < n
}

// Key identifies one in-flight tile of this source.
func (s Source) Key(z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d", s.Name, z, x, y)
}
