package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	linux64 = PlatformContext{OS: OSLinux, Arch: "x86_64", OSVersion: "6.8.0"}
	mac     = PlatformContext{OS: OSMac, Arch: "arm64", OSVersion: "14.2"}
	win32   = PlatformContext{OS: OSWindows, Arch: "x86", OSVersion: "10.0"}
)

func allow(os *OSRule) Rule    { return Rule{Action: ActionAllow, OS: os} }
func disallow(os *OSRule) Rule { return Rule{Action: ActionDisallow, OS: os} }

func TestEvaluateRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		ctx   PlatformContext
		want  Action
	}{
		{"nil list allows", nil, linux64, ActionAllow},
		{"empty list allows", []Rule{}, linux64, ActionAllow},
		{"unconditional allow", []Rule{allow(nil)}, linux64, ActionAllow},
		{"unconditional disallow", []Rule{disallow(nil)}, linux64, ActionDisallow},
		{"os match allows", []Rule{allow(&OSRule{Name: OSLinux})}, linux64, ActionAllow},
		{"os mismatch defaults to disallow", []Rule{allow(&OSRule{Name: OSMac})}, linux64, ActionDisallow},
		{
			"default then override for matching os",
			[]Rule{allow(nil), disallow(&OSRule{Name: OSMac})},
			mac, ActionDisallow,
		},
		{
			"default then override for other os",
			[]Rule{allow(nil), disallow(&OSRule{Name: OSMac})},
			linux64, ActionAllow,
		},
		{
			"later unconditional rule overrides earlier match",
			[]Rule{allow(&OSRule{Name: OSLinux}), disallow(nil)},
			linux64, ActionDisallow,
		},
		{"arch match", []Rule{allow(&OSRule{Arch: "x86"})}, win32, ActionAllow},
		{"arch mismatch", []Rule{allow(&OSRule{Arch: "x86"})}, linux64, ActionDisallow},
		{
			"name and arch must both match",
			[]Rule{allow(&OSRule{Name: OSWindows, Arch: "x86_64"})},
			win32, ActionDisallow,
		},
		{
			"version regex match",
			[]Rule{allow(nil), disallow(&OSRule{Name: OSMac, Version: `^14\.`})},
			mac, ActionDisallow,
		},
		{
			"version regex mismatch",
			[]Rule{allow(nil), disallow(&OSRule{Name: OSMac, Version: `^10\.5\.\d$`})},
			mac, ActionAllow,
		},
		{
			"unknown os version never matches",
			[]Rule{allow(&OSRule{Version: ".*"})},
			PlatformContext{OS: OSLinux}, ActionDisallow,
		},
		{
			"invalid regex never matches",
			[]Rule{allow(&OSRule{Version: "("})},
			linux64, ActionDisallow,
		},
		{
			"feature absent from context is false",
			[]Rule{{Action: ActionAllow, Features: map[string]bool{"has_custom_resolution": true}}},
			linux64, ActionDisallow,
		},
		{
			"feature present in context",
			[]Rule{{Action: ActionAllow, Features: map[string]bool{"has_custom_resolution": true}}},
			linux64.WithFeatures(map[string]bool{"has_custom_resolution": true}), ActionAllow,
		},
		{
			"feature required false matches absent feature",
			[]Rule{{Action: ActionAllow, Features: map[string]bool{"is_demo_user": false}}},
			linux64, ActionAllow,
		},
		{
			"os and feature clauses combine",
			[]Rule{{Action: ActionAllow, OS: &OSRule{Name: OSLinux}, Features: map[string]bool{"is_demo_user": true}}},
			linux64, ActionDisallow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateRules(tt.rules, tt.ctx))
		})
	}
}

func TestEvaluateRules_Deterministic(t *testing.T) {
	rules := []Rule{allow(nil), disallow(&OSRule{Name: OSMac}), allow(&OSRule{Arch: "arm64"})}
	first := EvaluateRules(rules, mac)
	for range 100 {
		assert.Equal(t, first, EvaluateRules(rules, mac))
	}
}

func TestEvaluateRules_LastMatchWins(t *testing.T) {
	byName := &OSRule{Name: OSLinux}
	byArch := &OSRule{Arch: "x86_64"}

	t.Run("same action is order independent", func(t *testing.T) {
		forward := []Rule{allow(byName), allow(byArch)}
		reversed := []Rule{allow(byArch), allow(byName)}
		assert.Equal(t, EvaluateRules(forward, linux64), EvaluateRules(reversed, linux64))
	})

	t.Run("different actions depend on order", func(t *testing.T) {
		forward := []Rule{allow(byName), disallow(byArch)}
		reversed := []Rule{disallow(byArch), allow(byName)}
		assert.Equal(t, ActionDisallow, EvaluateRules(forward, linux64))
		assert.Equal(t, ActionAllow, EvaluateRules(reversed, linux64))
	})
}

func TestRule_DecodesVersionDocumentShape(t *testing.T) {
	data := []byte(`[
		{"action": "allow"},
		{"action": "disallow", "os": {"name": "osx", "version": "^10\\.5\\.\\d$"}},
		{"action": "allow", "features": {"is_demo_user": true}}
	]`)

	var rules []Rule
	require.NoError(t, json.Unmarshal(data, &rules))
	require.Len(t, rules, 3)
	assert.Equal(t, ActionDisallow, rules[1].Action)
	assert.Equal(t, OSMac, rules[1].OS.Name)
	assert.True(t, rules[2].Features["is_demo_user"])
	assert.Equal(t, ActionAllow, EvaluateRules(rules, mac))
}
