package core

import (
	"regexp"
	"runtime"
)

// Action is the verdict of a rule list.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionDisallow Action = "disallow"
)

// Rule represents OS/feature-based conditions
type Rule struct {
	Action   Action          `json:"action"`
	OS       *OSRule         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// OSRule specifies OS conditions
type OSRule struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"` // regular expression
	Arch    string `json:"arch,omitempty"`
}

// PlatformContext is the environment rules are evaluated against.
// OS and Arch use launcher naming (osx, x86_64), not Go's.
type PlatformContext struct {
	OS        string
	Arch      string
	OSVersion string
	Features  map[string]bool
}

// Launcher OS names
const (
	OSWindows = "windows"
	OSMac     = "osx"
	OSLinux   = "linux"
)

// CurrentPlatform describes the running process. No features are set.
func CurrentPlatform() PlatformContext {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps Go's GOOS/GOARCH onto launcher names.
func PlatformFor(goos, goarch string) PlatformContext {
	osName := goos
	if goos == "darwin" {
		osName = OSMac
	}

	arch := goarch
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "386":
		arch = "x86"
	}

	return PlatformContext{OS: osName, Arch: arch}
}

// Is64Bit reports whether the context architecture is 64-bit.
func (p PlatformContext) Is64Bit() bool {
	return p.Arch != "x86" && p.Arch != "arm"
}

// WithFeatures returns a copy of p with the given feature flags set.
func (p PlatformContext) WithFeatures(features map[string]bool) PlatformContext {
	merged := make(map[string]bool, len(p.Features)+len(features))
	for k, v := range p.Features {
		merged[k] = v
	}
	for k, v := range features {
		merged[k] = v
	}
	p.Features = merged
	return p
}

// EvaluateRules decides whether a rule list applies to ctx.
//
// An absent or empty list allows. Otherwise the decision starts at
// disallow and every matching rule overwrites it, so the last match wins.
func EvaluateRules(rules []Rule, ctx PlatformContext) Action {
	if len(rules) == 0 {
		return ActionAllow
	}

	decision := ActionDisallow
	for i := range rules {
		if rules[i].Matches(ctx) {
			decision = rules[i].Action
		}
	}
	return decision
}

// Allowed is EvaluateRules reduced to a bool.
func Allowed(rules []Rule, ctx PlatformContext) bool {
	return EvaluateRules(rules, ctx) == ActionAllow
}

// Matches reports whether every clause of r holds in ctx.
// A rule without clauses always matches.
func (r *Rule) Matches(ctx PlatformContext) bool {
	if r.OS != nil {
		if r.OS.Name != "" && r.OS.Name != ctx.OS {
			return false
		}
		if r.OS.Arch != "" && r.OS.Arch != ctx.Arch {
			return false
		}
		if r.OS.Version != "" && !matchVersion(r.OS.Version, ctx.OSVersion) {
			return false
		}
	}

	for name, want := range r.Features {
		if ctx.Features[name] != want {
			return false
		}
	}

	return true
}

func matchVersion(pattern, version string) bool {
	if version == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(version)
}
