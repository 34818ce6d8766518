package download

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func fastScheduler(concurrency int) *Scheduler {
	return NewScheduler(Options{
		Concurrency: concurrency,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		RetryCap:    4 * time.Millisecond,
	})
}

// dirEntries lists names under dir, failing on error.
func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownload_SingleFile(t *testing.T) {
	content := []byte("Hello, World!")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "nested", "test.txt")

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: destPath},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int64(len(content)), report.Bytes)
	assert.Equal(t, 1, report.Results[0].Outcome.Attempts)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestDownload_ChecksumValidation(t *testing.T) {
	content := []byte("Test content for hashing")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	report, err := fastScheduler(2).Run(context.Background(), []Request{
		{Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(dir, "a"), Checksum: sha1Hex(content), Size: int64(len(content))}},
		{Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(dir, "b"), Checksum: sha256Hex(content), Size: int64(len(content))}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Completed, "failures: %v", report.Failures())
}

func TestDownload_ChecksumMismatchRetriedThenFails(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("Test content"))
	}))
	defer server.Close()

	dir := t.TempDir()
	destPath := filepath.Join(dir, "bad_hash.txt")

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: destPath, Checksum: "0000000000000000000000000000000000000000"},
	}}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), hits.Load())
	require.Equal(t, 1, report.Failed)
	out := report.Results[0].Outcome
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, ReasonChecksumMismatch, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Equal(t, 3, out.Attempts)

	assert.NoFileExists(t, destPath)
	assert.Empty(t, dirEntries(t, dir), "no temp files may be left behind")
}

func TestDownload_SizeMismatchIsTransient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Write([]byte("short"))
			return
		}
		w.Write([]byte("just right"))
	}))
	defer server.Close()

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(t.TempDir(), "f"), Size: 10},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 2, report.Results[0].Outcome.Attempts)
}

func TestDownload_SkipsExistingValid(t *testing.T) {
	content := []byte("Existing content")

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(content)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "existing.txt")
	require.NoError(t, os.WriteFile(destPath, content, 0o644))

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: destPath, Checksum: sha1Hex(content), Size: int64(len(content))},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, int64(0), report.Bytes)
	assert.Zero(t, hits.Load(), "server should not be called for an existing valid file")
}

func TestDownload_ReplacesCorruptExisting(t *testing.T) {
	content := []byte("good content")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	destPath := filepath.Join(t.TempDir(), "lib.jar")
	require.NoError(t, os.WriteFile(destPath, []byte("corrupted!!!"), 0o644))

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: destPath, Checksum: sha1Hex(content)},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)

	data, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestDownload_MultipleFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content-" + r.URL.Path))
	}))
	defer server.Close()

	tmpDir := t.TempDir()
	requests := []Request{
		{Descriptor: Descriptor{URL: server.URL + "/1", Path: filepath.Join(tmpDir, "1.txt")}},
		{Descriptor: Descriptor{URL: server.URL + "/2", Path: filepath.Join(tmpDir, "2.txt")}},
		{Descriptor: Descriptor{URL: server.URL + "/3", Path: filepath.Join(tmpDir, "3.txt")}},
	}

	report, err := fastScheduler(2).Run(context.Background(), requests, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Completed)

	for i, req := range requests {
		assert.FileExists(t, req.Path)
		assert.Equal(t, req, report.Results[i].Request, "results keep submission order")
	}
}

func TestDownload_EmptyList(t *testing.T) {
	report, err := fastScheduler(4).Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Empty(t, report.Results)
}

func TestDownload_PriorityOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Path)
		mu.Unlock()
		w.Write([]byte("x"))
	}))
	defer server.Close()

	dir := t.TempDir()
	req := func(name string, p Priority) Request {
		return Request{Priority: p, Descriptor: Descriptor{URL: server.URL + "/" + name, Path: filepath.Join(dir, name)}}
	}

	_, err := fastScheduler(1).Run(context.Background(), []Request{
		req("low", PriorityLow),
		req("normal-1", PriorityNormal),
		req("high", PriorityHigh),
		req("normal-2", PriorityNormal),
		req("critical", PriorityCritical),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"/critical", "/high", "/normal-1", "/normal-2", "/low"}, order)
}

func TestDownload_TransientFailureRecovers(t *testing.T) {
	content := []byte("eventually")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(content)
	}))
	defer server.Close()

	s := NewScheduler(Options{Concurrency: 1, MaxAttempts: 3, RetryBase: 20 * time.Millisecond, RetryCap: time.Second})

	start := time.Now()
	report, err := s.Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(t.TempDir(), "f"), Checksum: sha1Hex(content)},
	}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 3, report.Results[0].Outcome.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond, "waits base then 2*base")
}

func TestDownload_PermanentStatusNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(t.TempDir(), "missing")},
	}}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	out := report.Results[0].Outcome
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, ReasonHTTPStatus, out.Reason)
	assert.False(t, out.Exhausted)

	var se *StatusError
	require.True(t, errors.As(out.Err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestDownload_NoSource(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "generated.jar")
	require.NoError(t, os.WriteFile(present, []byte("built locally"), 0o644))

	report, err := fastScheduler(2).Run(context.Background(), []Request{
		{Descriptor: Descriptor{Path: present}},
		{Descriptor: Descriptor{Path: filepath.Join(dir, "absent.jar")}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkipped, report.Results[0].Outcome.Kind)
	assert.Equal(t, OutcomeFailed, report.Results[1].Outcome.Kind)
	assert.Equal(t, ReasonNoSource, report.Results[1].Outcome.Reason)
	assert.Equal(t, 0, report.Results[1].Outcome.Attempts)
}

func TestDownload_InvalidChecksum(t *testing.T) {
	report, err := fastScheduler(1).Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: "http://127.0.0.1:1/x", Path: filepath.Join(t.TempDir(), "x"), Checksum: "abc"},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidDescriptor, report.Results[0].Outcome.Reason)
}

func TestDownload_Cancellation(t *testing.T) {
	started := make(chan struct{}, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		started <- struct{}{}
		<-r.Context().Done()
	}))
	defer server.Close()

	dir := t.TempDir()
	var requests []Request
	for _, name := range []string{"a", "b", "c", "d"} {
		requests = append(requests, Request{Descriptor: Descriptor{URL: server.URL + "/" + name, Path: filepath.Join(dir, name), Size: 1 << 20}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	report, err := fastScheduler(2).Run(ctx, requests, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, len(requests), report.Cancelled)
	for _, res := range report.Results {
		assert.Equal(t, OutcomeCancelled, res.Outcome.Kind)
	}
	assert.Empty(t, dirEntries(t, dir), "cancelled transfers must not leave files")
}

func TestDownload_AttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	s := NewScheduler(Options{
		Concurrency:    1,
		MaxAttempts:    2,
		RetryBase:      time.Millisecond,
		AttemptTimeout: 30 * time.Millisecond,
	})
	report, err := s.Run(context.Background(), []Request{{
		Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(t.TempDir(), "slow")},
	}}, nil)
	require.NoError(t, err)

	out := report.Results[0].Outcome
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.True(t, out.Exhausted)
	assert.Equal(t, 2, out.Attempts)
}

func TestDownload_FatalDestinationAbortsRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer server.Close()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	report, err := fastScheduler(1).Run(context.Background(), []Request{
		{Priority: PriorityCritical, Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(blocker, "client.jar")}},
		{Priority: PriorityLow, Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(dir, "later")}},
	}, nil)

	var fe *FatalError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, filepath.Join(blocker, "client.jar"), fe.Path)

	require.NotNil(t, report)
	assert.Equal(t, ReasonFatal, report.Results[0].Outcome.Reason)
	assert.Equal(t, OutcomeCancelled, report.Results[1].Outcome.Kind)
	assert.NoFileExists(t, filepath.Join(dir, "later"))
}

func TestDownload_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte("x"))
	}))
	defer server.Close()

	dir := t.TempDir()
	var requests []Request
	for i := range 12 {
		name := string(rune('a' + i))
		requests = append(requests, Request{Descriptor: Descriptor{URL: server.URL + "/" + name, Path: filepath.Join(dir, name)}})
	}

	report, err := fastScheduler(3).Run(context.Background(), requests, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestDownload_Progress(t *testing.T) {
	content := []byte("progress payload")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	progress := make(chan Progress, 64)
	_, err := fastScheduler(2).Run(context.Background(), []Request{
		{Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(dir, "1"), Size: int64(len(content))}},
		{Descriptor: Descriptor{URL: server.URL, Path: filepath.Join(dir, "2"), Size: int64(len(content))}},
	}, progress)
	require.NoError(t, err)
	close(progress)

	var last Progress
	for p := range progress {
		last = p
	}
	assert.Equal(t, 2, last.TotalItems)
	assert.Equal(t, 2, last.CompletedItems)
	assert.Equal(t, int64(2*len(content)), last.DownloadedBytes)
	assert.InDelta(t, 1.0, last.Fraction(), 0.0001)
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, DefaultConcurrency, ClampConcurrency(0))
	assert.Equal(t, DefaultConcurrency, ClampConcurrency(-3))
	assert.Equal(t, 1, ClampConcurrency(1))
	assert.Equal(t, 16, ClampConcurrency(16))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(1000))
}

func TestJobCompare(t *testing.T) {
	critical := &job{priority: PriorityCritical, seq: 9}
	normalOld := &job{priority: PriorityNormal, seq: 1}
	normalNew := &job{priority: PriorityNormal, seq: 2}

	assert.Negative(t, critical.Compare(normalOld))
	assert.Positive(t, normalOld.Compare(critical))
	assert.Negative(t, normalOld.Compare(normalNew))
	assert.Zero(t, normalOld.Compare(normalOld))
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		bps  float64
		want string
	}{
		{0, "0 B/s"},
		{500, "500 B/s"},
		{1000, "1.0 kB/s"},
		{1500, "1.5 kB/s"},
		{1000 * 1000, "1.0 MB/s"},
		{-5, "0 B/s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSpeed(tt.bps))
	}
}
