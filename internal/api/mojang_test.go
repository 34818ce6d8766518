package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aayushdutt/mcinstall/internal/core"
)

const releaseDoc = `{"id": "1.20.1", "type": "release", "mainClass": "net.minecraft.client.main.Main"}`

type catalogServer struct {
	*httptest.Server
	catalogHits atomic.Int32
	docHits     atomic.Int32
	doc         string
	docSHA1     string
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{doc: releaseDoc, docSHA1: sha1Hex([]byte(releaseDoc))}
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		cs.catalogHits.Add(1)
		fmt.Fprintf(w, `{
			"latest": {"release": "1.20.1", "snapshot": "23w31a"},
			"versions": [{"id": "1.20.1", "type": "release", "url": "%s/v/1.20.1.json", "sha1": "%s"}]
		}`, cs.URL, cs.docSHA1)
	})
	mux.HandleFunc("/v/1.20.1.json", func(w http.ResponseWriter, r *http.Request) {
		cs.docHits.Add(1)
		w.Write([]byte(cs.doc))
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *catalogServer) store(dir string, offline bool) *ManifestStore {
	return NewManifestStore(StoreOptions{
		ManifestURL: cs.URL + "/manifest.json",
		VersionsDir: dir,
		Offline:     offline,
		RetryMax:    1,
		RetryWait:   time.Millisecond,
	})
}

func TestCatalog_CachedForTTL(t *testing.T) {
	cs := newCatalogServer(t)
	s := cs.store(t.TempDir(), false)

	m, err := s.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", m.Latest.Release)

	_, err = s.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.catalogHits.Load())

	latest, err := s.LatestRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", latest)
}

func TestVersionDetails_FetchesAndStores(t *testing.T) {
	cs := newCatalogServer(t)
	dir := t.TempDir()

	v, err := cs.store(dir, false).VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "net.minecraft.client.main.Main", v.MainClass)

	stored, err := os.ReadFile(filepath.Join(dir, "1.20.1", "1.20.1.json"))
	require.NoError(t, err)
	assert.Equal(t, releaseDoc, string(stored), "the raw document is kept as served")

	_, err = cs.store(dir, false).VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), cs.docHits.Load(), "a current stored document is reused")
}

func TestVersionDetails_RefetchesStaleDocument(t *testing.T) {
	cs := newCatalogServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "1.20.1", "1.20.1.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "1.20.1", "mainClass": "old"}`), 0o644))

	v, err := cs.store(dir, false).VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "net.minecraft.client.main.Main", v.MainClass)
	assert.Equal(t, int32(1), cs.docHits.Load())
}

func TestVersionDetails_ChecksumMismatch(t *testing.T) {
	cs := newCatalogServer(t)
	cs.docSHA1 = "0000000000000000000000000000000000000000"

	_, err := cs.store(t.TempDir(), false).VersionDetails(context.Background(), "1.20.1")
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestVersionDetails_LocalOnlyProfile(t *testing.T) {
	cs := newCatalogServer(t)
	dir := t.TempDir()
	id := "fabric-loader-0.15.0-1.20.1"
	path := filepath.Join(dir, id, id+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "`+id+`", "inheritsFrom": "1.20.1"}`), 0o644))

	v, err := cs.store(dir, false).VersionDetails(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", v.InheritsFrom)
}

func TestVersionDetails_NotFound(t *testing.T) {
	cs := newCatalogServer(t)

	_, err := cs.store(t.TempDir(), false).VersionDetails(context.Background(), "0.0.0")
	assert.ErrorIs(t, err, core.ErrVersionNotFound)

	_, err = cs.store(t.TempDir(), false).FindVersion(context.Background(), "0.0.0")
	assert.ErrorIs(t, err, core.ErrVersionNotFound)
}

func TestOffline(t *testing.T) {
	cs := newCatalogServer(t)
	dir := t.TempDir()

	_, err := cs.store(dir, false).VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	catalogHits, docHits := cs.catalogHits.Load(), cs.docHits.Load()

	offline := cs.store(dir, true)
	v, err := offline.VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", v.ID)

	m, err := offline.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.Versions, 1)

	_, err = offline.VersionDetails(context.Background(), "1.19")
	assert.ErrorIs(t, err, core.ErrVersionNotFound)

	assert.Equal(t, catalogHits, cs.catalogHits.Load())
	assert.Equal(t, docHits, cs.docHits.Load())
}

func TestOffline_NoCachedCatalog(t *testing.T) {
	s := NewManifestStore(StoreOptions{VersionsDir: t.TempDir(), Offline: true})
	_, err := s.Catalog(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestCatalogUnavailable_FallsBackToStoredDocument(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "1.20.1", "1.20.1.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(releaseDoc), 0o644))

	s := NewManifestStore(StoreOptions{ManifestURL: server.URL, VersionsDir: dir, RetryMax: 1, RetryWait: time.Millisecond})
	v, err := s.VersionDetails(context.Background(), "1.20.1")
	require.NoError(t, err)
	assert.Equal(t, "1.20.1", v.ID)

	_, err = s.VersionDetails(context.Background(), "1.19")
	assert.Error(t, err)
}
