package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformFor(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         PlatformContext
	}{
		{"darwin", "arm64", PlatformContext{OS: OSMac, Arch: "arm64"}},
		{"linux", "amd64", PlatformContext{OS: OSLinux, Arch: "x86_64"}},
		{"windows", "386", PlatformContext{OS: OSWindows, Arch: "x86"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			assert.Equal(t, tt.want, PlatformFor(tt.goos, tt.goarch))
		})
	}
}

func TestPlatformContext_Is64Bit(t *testing.T) {
	assert.True(t, PlatformContext{Arch: "x86_64"}.Is64Bit())
	assert.True(t, PlatformContext{Arch: "arm64"}.Is64Bit())
	assert.False(t, PlatformContext{Arch: "x86"}.Is64Bit())
}

func TestPlatformContext_WithFeaturesCopies(t *testing.T) {
	base := PlatformContext{OS: OSLinux, Features: map[string]bool{"is_demo_user": true}}
	ext := base.WithFeatures(map[string]bool{"has_custom_resolution": true})

	assert.True(t, ext.Features["is_demo_user"])
	assert.True(t, ext.Features["has_custom_resolution"])
	assert.False(t, base.Features["has_custom_resolution"], "original context must not change")
}
