package tiles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/routeviz/internal/tiles"
)

func TestSource_URL(t *testing.T) {
	src := tiles.Source{
		Name:        "carto",
		URLTemplate: "https://{s}.basemaps.test/light_all/{z}/{x}/{y}{r}.png",
		Subdomains:  []string{"a", "b", "c"},
	}

	assert.Equal(t, "https://a.basemaps.test/light_all/4/0/0.png", src.URL(4, 0, 0))
	assert.Equal(t, "https://b.basemaps.test/light_all/4/1/0.png", src.URL(4, 1, 0))
	assert.Equal(t, "https://c.basemaps.test/light_all/4/1/1.png", src.URL(4, 1, 1))
}

func TestSource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		src     tiles.Source
		wantErr bool
	}{
		{"valid", tiles.Source{Name: "osm", URLTemplate: "https://tile.test/{z}/{x}/{y}.png"}, false},
		{"missing name", tiles.Source{URLTemplate: "https://tile.test/{z}/{x}/{y}.png"}, true},
		{"missing y", tiles.Source{Name: "osm", URLTemplate: "https://tile.test/{z}/{x}.png"}, true},
		{"subdomain without list", tiles.Source{Name: "osm", URLTemplate: "https://{s}.tile.test/{z}/{x}/{y}.png"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource_Contains(t *testing.T) {
	src := tiles.Source{Name: "osm", MaxZoom: 5}

	assert.True(t, src.Contains(0, 0, 0))
	assert.True(t, src.Contains(3, 7, 7))
	assert.False(t, src.Contains(3, 8, 0))
	assert.False(t, src.Contains(6, 0, 0))
	assert.False(t, src.Contains(2, -1, 0))
	assert.Equal(t, "osm/3/7/7", src.Key(3, 7, 7))
}

func TestSource_Templates(t *testing.T) {
	src := tiles.Source{Name: "carto", URLTemplate: "https://{s}.tile.test/{z}/{x}/{y}{r}.png", Subdomains: []string{"a", "b"}}

	assert.Equal(t, []string{
		"https://a.tile.test/{z}/{x}/{y}.png",
		"https://b.tile.test/{z}/{x}/{y}.png",
	}, src.Templates())
}
