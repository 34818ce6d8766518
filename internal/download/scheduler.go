// Package download runs prioritized, verified, retrying file downloads on
// a bounded worker pool.
package download

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"golang.org/x/sync/errgroup"

	"github.com/aayushdutt/mcinstall/internal/logging"
)

// Concurrency bounds and retry defaults.
const (
	MinConcurrency     = 1
	MaxConcurrency     = 64
	DefaultConcurrency = 8

	DefaultMaxAttempts    = 3
	DefaultRetryBase      = 500 * time.Millisecond
	DefaultRetryCap       = 10 * time.Second
	DefaultAttemptTimeout = 5 * time.Minute
)

// Priority orders requests in the queue. Higher is served first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// Descriptor says where a file comes from, where it goes and how to check it.
type Descriptor struct {
	URL  string
	Path string // Local destination path
	// Checksum is a hex SHA-1 or SHA-256 digest. Empty means size-only.
	Checksum string
	// Size is the expected length in bytes. Zero or less means unknown.
	Size int64
}

// Request is a descriptor queued at a priority.
type Request struct {
	Descriptor
	Priority Priority
	// Group labels the request for reporting, e.g. "library" or "asset".
	Group string
}

// OutcomeKind is the terminal state of a request.
type OutcomeKind int

const (
	OutcomeCancelled OutcomeKind = iota
	OutcomeCompleted
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeCompleted:
		return "completed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// FailureReason classifies why a request failed.
type FailureReason string

const (
	ReasonNetwork           FailureReason = "network"
	ReasonTimeout           FailureReason = "timeout"
	ReasonHTTPStatus        FailureReason = "http-status"
	ReasonSizeMismatch      FailureReason = "size-mismatch"
	ReasonChecksumMismatch  FailureReason = "checksum-mismatch"
	ReasonNoSource          FailureReason = "no-source"
	ReasonInvalidDescriptor FailureReason = "invalid-descriptor"
	ReasonFatal             FailureReason = "fatal"
)

// Outcome is what happened to one request.
type Outcome struct {
	Kind     OutcomeKind
	Bytes    int64
	Attempts int
	Reason   FailureReason
	// Exhausted is set when a transient failure used up every attempt.
	Exhausted bool
	Err       error
}

// Result pairs a request with its outcome.
type Result struct {
	Request Request
	Outcome Outcome
}

// Report holds results in submission order.
type Report struct {
	Results   []Result
	Completed int
	Skipped   int
	Failed    int
	Cancelled int
	// Bytes counts bytes transferred, not bytes skipped.
	Bytes    int64
	Duration time.Duration
}

// OK reports whether every request completed or was skipped.
func (r *Report) OK() bool {
	return r.Failed == 0 && r.Cancelled == 0
}

// Failures returns the results that did not succeed.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if k := res.Outcome.Kind; k == OutcomeFailed || k == OutcomeCancelled {
			out = append(out, res)
		}
	}
	return out
}

// FatalError aborts a run: the local filesystem cannot take the file.
type FatalError struct {
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Options configures a Scheduler. Zero values take the defaults.
type Options struct {
	Concurrency    int
	MaxAttempts    int
	RetryBase      time.Duration
	RetryCap       time.Duration
	AttemptTimeout time.Duration
	Client         *http.Client
	Logger         *slog.Logger
}

// ClampConcurrency limits n to [MinConcurrency, MaxConcurrency]; zero or
// less selects the default.
func ClampConcurrency(n int) int {
	if n <= 0 {
		return DefaultConcurrency
	}
	return min(max(n, MinConcurrency), MaxConcurrency)
}

// Scheduler downloads batches of requests. It holds no per-run state and is
// safe for concurrent use.
type Scheduler struct {
	opts   Options
	client *http.Client
	log    *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(opts Options) *Scheduler {
	opts.Concurrency = ClampConcurrency(opts.Concurrency)
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = DefaultRetryBase
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = DefaultRetryCap
	}
	if opts.RetryCap < opts.RetryBase {
		opts.RetryCap = opts.RetryBase
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}

	client := opts.Client
	if client == nil {
		client = NewClient(nil)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Scheduler{opts: opts, client: client, log: log}
}

// Concurrency returns the effective worker count.
func (s *Scheduler) Concurrency() int {
	return s.opts.Concurrency
}

// run is the state of one Run call.
type run struct {
	s        *Scheduler
	requests []Request
	queue    *queue.PriorityQueue
	dispose  sync.Once
	seq      atomic.Uint64

	mu       sync.Mutex
	outcomes []Outcome
	done     []bool
	pending  int
	current  string

	bytes     atomic.Int64
	finished  atomic.Int64
	transfers atomic.Int64
	waits     sync.WaitGroup
}

// Run downloads every request and returns once each has an outcome.
// Progress samples are sent to progress when it is non-nil and dropped if
// the receiver is slow. A fatal error or cancellation of ctx stops the run
// early; the report is returned in either case with unfinished requests
// marked cancelled.
func (s *Scheduler) Run(ctx context.Context, requests []Request, progress chan<- Progress) (*Report, error) {
	start := time.Now()
	if len(requests) == 0 {
		return &Report{}, nil
	}

	r := &run{
		s:        s,
		requests: requests,
		queue:    queue.NewPriorityQueue(len(requests), true),
		outcomes: make([]Outcome, len(requests)),
		done:     make([]bool, len(requests)),
		pending:  len(requests),
	}

	for i, req := range requests {
		j := &job{index: i, priority: req.Priority, seq: r.seq.Add(1)}
		if err := r.queue.Put(j); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		r.close()
	}()

	progressDone := make(chan struct{})
	reporterDone := make(chan struct{})
	if progress != nil {
		go func() {
			defer close(reporterDone)
			r.reportProgress(progressDone, progress)
		}()
	} else {
		close(reporterDone)
	}

	for range s.opts.Concurrency {
		g.Go(func() error {
			return r.work(gctx)
		})
	}

	err := g.Wait()
	r.waits.Wait()
	close(progressDone)
	<-reporterDone

	if progress != nil {
		select {
		case progress <- r.snapshot():
		default:
		}
	}

	report := r.report(time.Since(start))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.log.Warn("download run stopped early", "err", err, "cancelled", report.Cancelled)
	}
	return report, err
}

func (r *run) close() {
	r.dispose.Do(r.queue.Dispose)
}

func (r *run) work(ctx context.Context) error {
	for {
		items, err := r.queue.Get(1)
		if err != nil {
			// Disposed: the run is finished or stopping.
			return nil
		}
		if len(items) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := r.process(ctx, items[0].(*job)); err != nil {
			return err
		}
	}
}

// process makes one attempt at a job and decides what happens next.
func (r *run) process(ctx context.Context, j *job) error {
	req := r.requests[j.index]
	log := r.s.log.With("path", req.Path, "group", req.Group)

	if j.attempts == 0 {
		if !ValidChecksum(req.Checksum) {
			r.finish(j.index, Outcome{
				Kind:   OutcomeFailed,
				Reason: ReasonInvalidDescriptor,
				Err:    fmt.Errorf("unsupported checksum %q", req.Checksum),
			})
			return nil
		}
		if res, err := VerifyFile(req.Path, req.Checksum, req.Size); err == nil && res.OK() {
			r.bytes.Add(res.Size)
			r.finish(j.index, Outcome{Kind: OutcomeSkipped, Bytes: res.Size})
			return nil
		}
		if req.URL == "" {
			r.finish(j.index, Outcome{
				Kind:   OutcomeFailed,
				Reason: ReasonNoSource,
				Err:    errors.New("file is missing and has no download url"),
			})
			return nil
		}
	}

	j.attempts++
	r.setCurrent(filepath.Base(req.Path))

	n, err := r.fetch(ctx, req.Descriptor)
	if err == nil {
		log.Debug("downloaded", "bytes", n, "attempts", j.attempts)
		r.transfers.Add(n)
		r.finish(j.index, Outcome{Kind: OutcomeCompleted, Bytes: n, Attempts: j.attempts})
		return nil
	}
	r.bytes.Add(-n)

	if ctx.Err() != nil {
		// Left unfinished; reported as cancelled.
		return nil
	}

	var ae *attemptError
	if !errors.As(err, &ae) {
		ae = &attemptError{reason: ReasonNetwork, transient: true, err: err}
	}

	switch {
	case ae.reason == ReasonFatal:
		r.finish(j.index, Outcome{Kind: OutcomeFailed, Attempts: j.attempts, Reason: ReasonFatal, Err: ae.err})
		return &FatalError{Path: req.Path, Err: ae.err}
	case !ae.transient:
		log.Warn("download failed", "reason", ae.reason, "err", ae.err)
		r.finish(j.index, Outcome{Kind: OutcomeFailed, Attempts: j.attempts, Reason: ae.reason, Err: ae.err})
	case j.attempts >= r.s.opts.MaxAttempts:
		log.Warn("download failed after retries", "reason", ae.reason, "attempts", j.attempts, "err", ae.err)
		r.finish(j.index, Outcome{
			Kind:      OutcomeFailed,
			Attempts:  j.attempts,
			Reason:    ae.reason,
			Exhausted: true,
			Err:       ae.err,
		})
	default:
		r.retry(ctx, j, ae)
	}
	return nil
}

// retry re-queues j after its backoff delay with a fresh sequence number.
func (r *run) retry(ctx context.Context, j *job, cause *attemptError) {
	delay := RetryDelay(r.s.opts.RetryBase, r.s.opts.RetryCap, j.attempts)
	r.s.log.Debug("retrying download", "path", r.requests[j.index].Path,
		"attempt", j.attempts, "delay", delay, "reason", cause.reason, "err", cause.err)

	r.waits.Add(1)
	go func() {
		defer r.waits.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		j.seq = r.seq.Add(1)
		if err := r.queue.Put(j); err != nil {
			r.s.log.Debug("queue closed before retry", "path", r.requests[j.index].Path)
		}
	}()
}

func (r *run) finish(index int, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done[index] {
		return
	}
	r.done[index] = true
	r.outcomes[index] = o
	r.pending--
	r.finished.Add(1)
	if r.pending == 0 {
		r.close()
	}
}

func (r *run) setCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *run) snapshot() Progress {
	var total int64
	for _, req := range r.requests {
		if req.Size > 0 {
			total += req.Size
		}
	}

	r.mu.Lock()
	current := r.current
	r.mu.Unlock()

	return Progress{
		TotalBytes:      total,
		DownloadedBytes: r.bytes.Load(),
		TotalItems:      len(r.requests),
		CompletedItems:  int(r.finished.Load()),
		CurrentItem:     current,
	}
}

func (r *run) report(elapsed time.Duration) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{
		Results:  make([]Result, len(r.requests)),
		Bytes:    r.transfers.Load(),
		Duration: elapsed,
	}
	for i, req := range r.requests {
		o := r.outcomes[i]
		if !r.done[i] {
			o = Outcome{Kind: OutcomeCancelled, Err: context.Canceled}
		}
		rep.Results[i] = Result{Request: req, Outcome: o}

		switch o.Kind {
		case OutcomeCompleted:
			rep.Completed++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeFailed:
			rep.Failed++
		case OutcomeCancelled:
			rep.Cancelled++
		}
	}
	return rep
}

// attemptError classifies a failed attempt.
type attemptError struct {
	reason    FailureReason
	transient bool
	err       error
}

func (e *attemptError) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *attemptError) Unwrap() error { return e.err }

func transient(reason FailureReason, err error) error {
	return &attemptError{reason: reason, transient: true, err: err}
}

func permanent(reason FailureReason, err error) error {
	return &attemptError{reason: reason, err: err}
}

func fatal(err error) error {
	return &attemptError{reason: ReasonFatal, err: err}
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// fetch makes a single attempt. The returned byte count is what was
// streamed, even on failure.
func (r *run) fetch(ctx context.Context, d Descriptor) (int64, error) {
	dir := filepath.Dir(d.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fatal(fmt.Errorf("creating directory: %w", err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.s.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, d.URL, nil)
	if err != nil {
		return 0, permanent(ReasonInvalidDescriptor, fmt.Errorf("creating request: %w", err))
	}

	resp, err := r.s.client.Do(req)
	if err != nil {
		return 0, transportError(attemptCtx, fmt.Errorf("downloading: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode}
		if se.Retryable() {
			return 0, transient(ReasonHTTPStatus, se)
		}
		return 0, permanent(ReasonHTTPStatus, se)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.Path)+".*.part")
	if err != nil {
		return 0, fatal(fmt.Errorf("creating file: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	digest, _ := newDigest(d.Checksum)
	n, err := r.copy(tmp, resp.Body, digest)
	if err != nil {
		var we *writeError
		if errors.As(err, &we) {
			return n, fatal(we.err)
		}
		return n, transportError(attemptCtx, fmt.Errorf("reading response: %w", err))
	}

	if err := tmp.Close(); err != nil {
		return n, fatal(fmt.Errorf("closing file: %w", err))
	}

	switch res := compare(n, digest, d.Checksum, d.Size); res.Status {
	case VerifySizeMismatch:
		return n, transient(ReasonSizeMismatch, fmt.Errorf("size mismatch: expected %d, got %d", d.Size, res.Size))
	case VerifyChecksumMismatch:
		return n, transient(ReasonChecksumMismatch, fmt.Errorf("hash mismatch: expected %s, got %s", d.Checksum, res.Checksum))
	}

	if err := os.Rename(tmp.Name(), d.Path); err != nil {
		return n, fatal(fmt.Errorf("renaming file: %w", err))
	}
	committed = true
	return n, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

// copy streams src into dst and the digest, counting progress as it goes.
func (r *run) copy(dst io.Writer, src io.Reader, digest hash.Hash) (int64, error) {
	w := dst
	if digest != nil {
		w = io.MultiWriter(dst, digest)
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				if errors.Is(err, syscall.ENOSPC) {
					err = fmt.Errorf("disk full: %w", err)
				}
				return written, &writeError{err: fmt.Errorf("writing file: %w", err)}
			}
			written += int64(n)
			r.bytes.Add(int64(n))
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func transportError(attemptCtx context.Context, err error) error {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || os.IsTimeout(err) {
		return transient(ReasonTimeout, err)
	}
	return transient(ReasonNetwork, err)
}
