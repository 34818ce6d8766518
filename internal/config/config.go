// Package config handles application configuration and paths.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aayushdutt/mcinstall/internal/download"
)

const (
	appName = "mcinstall"
	// FileName is the config file inside the data directory.
	FileName = "config.json"

	DefaultManifestURL    = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	DefaultAssetsBaseURL  = "https://resources.download.minecraft.net"
	DefaultRetryBaseMs    = 500
	DefaultRetryCapMs     = 10_000
	DefaultAttemptTimeout = 300
)

// Config holds the application configuration
type Config struct {
	// Paths
	DataDir      string `json:"dataDir"`
	LibrariesDir string `json:"librariesDir"`
	AssetsDir    string `json:"assetsDir"`
	VersionsDir  string `json:"versionsDir"`

	// Downloads
	Concurrency       int   `json:"concurrency"`
	MaxAttempts       int   `json:"maxAttempts"`
	RetryBaseMs       int   `json:"retryBaseMs"`
	RetryCapMs        int   `json:"retryCapMs"`
	AttemptTimeoutSec int   `json:"attemptTimeoutSec"`
	Proxy             Proxy `json:"proxy"`

	// Sources
	ManifestURL   string `json:"manifestURL"`
	AssetsBaseURL string `json:"assetsBaseURL"`

	// Output
	LogLevel      string `json:"logLevel"`
	LogFormat     string `json:"logFormat"`
	ShowSnapshots bool   `json:"showSnapshots"`
}

// Proxy routes all HTTP traffic through one proxy server.
type Proxy struct {
	Enabled bool   `json:"enabled"`
	Scheme  string `json:"scheme"` // http, https or socks5
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// URL returns the proxy URL, or nil when the proxy is disabled.
func (p Proxy) URL() (*url.URL, error) {
	if !p.Enabled {
		return nil, nil
	}
	switch p.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", p.Scheme)
	}
	if p.Host == "" {
		return nil, fmt.Errorf("proxy host is empty")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %d", p.Port)
	}
	return &url.URL{Scheme: p.Scheme, Host: p.Host + ":" + strconv.Itoa(p.Port)}, nil
}

// ParseProxy reads a scheme://host:port value. An empty string disables
// the proxy.
func ParseProxy(s string) (Proxy, error) {
	if s == "" {
		return Proxy{}, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return Proxy{}, fmt.Errorf("parsing proxy: %w", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return Proxy{}, fmt.Errorf("proxy %q needs a port", s)
	}
	p := Proxy{Enabled: true, Scheme: u.Scheme, Host: u.Hostname(), Port: port}
	if _, err := p.URL(); err != nil {
		return Proxy{}, err
	}
	return p, nil
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return newConfig(getDefaultDataDir())
}

func newConfig(dataDir string) *Config {
	return &Config{
		DataDir:           dataDir,
		LibrariesDir:      filepath.Join(dataDir, "libraries"),
		AssetsDir:         filepath.Join(dataDir, "assets"),
		VersionsDir:       filepath.Join(dataDir, "versions"),
		Concurrency:       download.DefaultConcurrency,
		MaxAttempts:       download.DefaultMaxAttempts,
		RetryBaseMs:       DefaultRetryBaseMs,
		RetryCapMs:        DefaultRetryCapMs,
		AttemptTimeoutSec: DefaultAttemptTimeout,
		ManifestURL:       DefaultManifestURL,
		AssetsBaseURL:     DefaultAssetsBaseURL,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads config from dataDir, or the default data directory when
// dataDir is empty. A missing file yields the defaults.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	cfg := newConfig(dataDir)

	configPath := filepath.Join(dataDir, FileName)
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Normalize clamps numeric settings and fills empty values with defaults.
func (c *Config) Normalize() {
	def := newConfig(c.DataDir)

	c.Concurrency = download.ClampConcurrency(c.Concurrency)
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseMs <= 0 {
		c.RetryBaseMs = def.RetryBaseMs
	}
	if c.RetryCapMs < c.RetryBaseMs {
		c.RetryCapMs = max(def.RetryCapMs, c.RetryBaseMs)
	}
	if c.AttemptTimeoutSec <= 0 {
		c.AttemptTimeoutSec = def.AttemptTimeoutSec
	}
	if c.LibrariesDir == "" {
		c.LibrariesDir = def.LibrariesDir
	}
	if c.AssetsDir == "" {
		c.AssetsDir = def.AssetsDir
	}
	if c.VersionsDir == "" {
		c.VersionsDir = def.VersionsDir
	}
	if c.ManifestURL == "" {
		c.ManifestURL = def.ManifestURL
	}
	if c.AssetsBaseURL == "" {
		c.AssetsBaseURL = def.AssetsBaseURL
	}
	c.Proxy.Scheme = strings.ToLower(c.Proxy.Scheme)
}

// DownloadOptions converts the download settings for the scheduler.
func (c *Config) DownloadOptions() download.Options {
	return download.Options{
		Concurrency:    c.Concurrency,
		MaxAttempts:    c.MaxAttempts,
		RetryBase:      time.Duration(c.RetryBaseMs) * time.Millisecond,
		RetryCap:       time.Duration(c.RetryCapMs) * time.Millisecond,
		AttemptTimeout: time.Duration(c.AttemptTimeoutSec) * time.Second,
	}
}

// Save writes config to disk
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	configPath := filepath.Join(c.DataDir, FileName)
	return os.WriteFile(configPath, data, 0644)
}

// EnsureDirs creates all required directories
func (c *Config) EnsureDirs() error {
	dirs := []string{c.DataDir, c.LibrariesDir, c.AssetsDir, c.VersionsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func getDefaultDataDir() string {
	// Check for portable mode first
	exe, _ := os.Executable()
	portablePath := filepath.Join(filepath.Dir(exe), "data")
	if _, err := os.Stat(portablePath); err == nil {
		return portablePath
	}

	// Use XDG/platform-specific directories
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	switch {
	case os.Getenv("APPDATA") != "": // Windows
		return filepath.Join(os.Getenv("APPDATA"), appName)
	case err == nil: // Linux/macOS
		return filepath.Join(home, ".local", "share", appName)
	default:
		return appName
	}
}
