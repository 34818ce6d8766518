// Package api contains HTTP clients for external services.
// Each API client is self-contained and handles its own caching.
package api

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/logging"
)

const (
	mojangVersionManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	catalogFile              = "version_manifest_v2.json"
	defaultManifestTTL       = 5 * time.Minute
)

// ErrOffline is returned when a network fetch is needed in offline mode.
var ErrOffline = errors.New("offline mode")

// StoreOptions configures a ManifestStore.
type StoreOptions struct {
	ManifestURL string
	// VersionsDir holds <id>/<id>.json documents and the cached catalog.
	VersionsDir string
	Offline     bool
	TTL         time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
	RetryMax    int
	RetryWait   time.Duration
}

// ManifestStore serves the version catalog and version documents, keeping
// a copy of every document it fetches on disk.
type ManifestStore struct {
	client      *retryablehttp.Client
	manifestURL string
	versionsDir string
	offline     bool
	ttl         time.Duration
	log         *slog.Logger

	mu              sync.Mutex
	manifest        *core.VersionManifest
	manifestFetched time.Time
}

// NewManifestStore creates a store.
func NewManifestStore(opts StoreOptions) *ManifestStore {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	// Create retryable client with sensible defaults
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	if opts.RetryMax > 0 {
		retryClient.RetryMax = opts.RetryMax
	}
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	if opts.RetryWait > 0 {
		retryClient.RetryWaitMin = opts.RetryWait
		retryClient.RetryWaitMax = opts.RetryWait
	}
	retryClient.Logger = log.With("component", "manifest")
	if opts.HTTPClient != nil {
		// Copied so the timeout stays local to metadata requests.
		hc := *opts.HTTPClient
		retryClient.HTTPClient = &hc
	}
	if retryClient.HTTPClient.Timeout == 0 {
		retryClient.HTTPClient.Timeout = 30 * time.Second
	}

	manifestURL := opts.ManifestURL
	if manifestURL == "" {
		manifestURL = mojangVersionManifestURL
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultManifestTTL
	}

	return &ManifestStore{
		client:      retryClient,
		manifestURL: manifestURL,
		versionsDir: opts.VersionsDir,
		offline:     opts.Offline,
		ttl:         ttl,
		log:         log,
	}
}

// Catalog returns the version catalog. It is cached in memory for the TTL
// and on disk for offline use.
func (s *ManifestStore) Catalog(ctx context.Context) (*core.VersionManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check cache
	if s.manifest != nil && time.Since(s.manifestFetched) < s.ttl {
		return s.manifest, nil
	}

	if s.offline {
		m, err := s.loadCatalog()
		if err != nil {
			return nil, fmt.Errorf("%w: no cached catalog: %v", ErrOffline, err)
		}
		s.manifest, s.manifestFetched = m, time.Now()
		return m, nil
	}

	data, err := s.fetch(ctx, s.manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	var manifest core.VersionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	if err := s.writeFile(filepath.Join(s.versionsDir, catalogFile), data); err != nil {
		s.log.Warn("caching catalog failed", "err", err)
	}

	// Update cache
	s.manifest = &manifest
	s.manifestFetched = time.Now()

	return &manifest, nil
}

// FindVersion finds a version by ID in the catalog
func (s *ManifestStore) FindVersion(ctx context.Context, id string) (*core.Version, error) {
	manifest, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := manifest.Find(id)
	if !ok {
		return nil, core.NotFound(id)
	}
	return v, nil
}

// LatestRelease returns the latest release version ID
func (s *ManifestStore) LatestRelease(ctx context.Context) (string, error) {
	manifest, err := s.Catalog(ctx)
	if err != nil {
		return "", err
	}
	return manifest.Latest.Release, nil
}

// VersionDetails returns the document for id. A stored copy is used when
// it matches the catalog checksum, when the id is not in the catalog (a
// locally installed loader profile) or in offline mode.
func (s *ManifestStore) VersionDetails(ctx context.Context, id string) (*core.VersionDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.DocumentPath(id)
	local, localErr := os.ReadFile(path)

	if s.offline {
		if localErr != nil {
			return nil, core.NotFound(id)
		}
		return decodeDetails(id, local)
	}

	manifest, err := s.Catalog(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if localErr == nil {
			s.log.Warn("catalog unavailable, using stored version document", "version", id, "err", err)
			return decodeDetails(id, local)
		}
		return nil, err
	}

	entry, ok := manifest.Find(id)
	if !ok {
		if localErr == nil {
			s.log.Debug("using local version document", "version", id)
			return decodeDetails(id, local)
		}
		return nil, core.NotFound(id)
	}

	if localErr == nil && entry.SHA1 != "" && strings.EqualFold(sha1Hex(local), entry.SHA1) {
		s.log.Debug("stored version document is current", "version", id)
		return decodeDetails(id, local)
	}

	data, err := s.fetch(ctx, entry.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetching version details %s: %w", id, err)
	}
	if entry.SHA1 != "" && !strings.EqualFold(sha1Hex(data), entry.SHA1) {
		return nil, fmt.Errorf("version document %s: checksum mismatch", id)
	}

	details, err := decodeDetails(id, data)
	if err != nil {
		return nil, err
	}
	if err := s.writeFile(path, data); err != nil {
		s.log.Warn("storing version document failed", "version", id, "err", err)
	}
	return details, nil
}

// DocumentPath is where the document for id is stored.
func (s *ManifestStore) DocumentPath(id string) string {
	return filepath.Join(s.versionsDir, id, id+".json")
}

func (s *ManifestStore) fetch(ctx context.Context, url string) ([]byte, error) {
	if s.offline {
		return nil, ErrOffline
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (s *ManifestStore) loadCatalog() (*core.VersionManifest, error) {
	data, err := os.ReadFile(filepath.Join(s.versionsDir, catalogFile))
	if err != nil {
		return nil, err
	}
	var m core.VersionManifest
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding cached catalog: %w", err)
	}
	return &m, nil
}

func (s *ManifestStore) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func decodeDetails(id string, data []byte) (*core.VersionDetails, error) {
	var details core.VersionDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, fmt.Errorf("decoding version details %s: %w", id, err)
	}
	return &details, nil
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
