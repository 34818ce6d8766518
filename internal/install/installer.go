// Package install drives a version install: resolve, download, extract.
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aayushdutt/mcinstall/internal/assets"
	"github.com/aayushdutt/mcinstall/internal/config"
	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/download"
	"github.com/aayushdutt/mcinstall/internal/logging"
	"github.com/aayushdutt/mcinstall/internal/natives"
	"github.com/aayushdutt/mcinstall/internal/resolve"
)

// Request groups, used to sort scheduler results into phases.
const (
	GroupClient    = "client"
	GroupLibrary   = "library"
	GroupNative    = "native"
	GroupLogConfig = "log-config"
)

// Step names, in the order they run.
const (
	StepResolve = "Resolving version"
	StepFiles   = "Downloading game files"
	StepNatives = "Extracting natives"
	StepAssets  = "Downloading assets"
	StepLegacy  = "Preparing legacy assets"
)

// Steps returns the step names in order.
func Steps() []string {
	return []string{StepResolve, StepFiles, StepNatives, StepAssets, StepLegacy}
}

// Status represents the current install step
type Status struct {
	Step       string  // Current step name
	StepIndex  int     // Zero based
	StepCount  int     // Total steps
	Progress   float64 // 0.0 - 1.0 within the step
	Message    string  // Human-readable message
	IsComplete bool
	Error      error
}

// Options contains install configuration
type Options struct {
	Config    *config.Config
	Source    resolve.Source
	Platform  core.PlatformContext
	Scheduler *download.Scheduler
	Logger    *slog.Logger
}

// Installer installs versions into the configured directories. It is safe
// to run several installs at once, even of the same version.
type Installer struct {
	cfg        *config.Config
	resolver   *resolve.Resolver
	scheduler  *download.Scheduler
	planner    *assets.Planner
	log        *slog.Logger
	statusChan chan<- Status
}

// NewInstaller creates an installer. Status updates are sent to statusChan
// when it is non-nil and dropped if the receiver is slow.
func NewInstaller(opts Options, statusChan chan<- Status) *Installer {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = download.NewScheduler(opts.Config.DownloadOptions())
	}
	return &Installer{
		cfg:        opts.Config,
		resolver:   resolve.NewResolver(opts.Source, opts.Platform, log),
		scheduler:  scheduler,
		planner:    assets.NewPlanner(opts.Config.AssetsDir, opts.Config.AssetsBaseURL, log),
		log:        log,
		statusChan: statusChan,
	}
}

// job carries one install through its steps.
type job struct {
	id       string
	log      *slog.Logger
	report   *Report
	manifest *resolve.Manifest
	// natives lists archives present after the download step.
	natives []nativeArchive
	index   *assets.Index
}

type nativeArchive struct {
	name    string
	path    string
	exclude []string
}

// InstallVersion installs id and everything it inherits. Resolution errors
// are returned before anything is downloaded. Otherwise a report is always
// returned, along with an error when the run was cancelled or hit a local
// filesystem failure.
func (i *Installer) InstallVersion(ctx context.Context, id string) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	j := &job{
		id:     id,
		log:    i.log.With("run", runID, "version", id),
		report: &Report{RunID: runID, VersionID: id},
	}

	steps := []struct {
		name string
		fn   func(context.Context, *job) error
	}{
		{StepResolve, i.resolve},
		{StepFiles, i.downloadFiles},
		{StepNatives, i.extractNatives},
		{StepAssets, i.downloadAssets},
		{StepLegacy, i.materialize},
	}

	j.log.Info("install started")
	var runErr error
	for n, step := range steps {
		i.sendStatus(Status{
			Step:      step.name,
			StepIndex: n,
			StepCount: len(steps),
			Message:   step.name + "...",
		})

		if err := step.fn(ctx, j); err != nil {
			i.sendStatus(Status{
				Step:      step.name,
				StepIndex: n,
				StepCount: len(steps),
				Message:   err.Error(),
				Error:     err,
			})
			if j.manifest == nil {
				return nil, err
			}
			runErr = fmt.Errorf("%s: %w", step.name, err)
			break
		}
	}

	r := j.report
	r.Duration = time.Since(start)
	if ctx.Err() != nil {
		r.Cancelled = true
		if runErr == nil {
			runErr = ctx.Err()
		}
	}
	r.State = r.computeState()

	j.log.Info("install finished", "state", r.State, "cancelled", r.Cancelled,
		"bytes", r.Bytes(), "duration", r.Duration.Round(time.Millisecond))
	for _, f := range r.Missing() {
		j.log.Warn("artifact missing", "group", f.Group, "path", f.Path, "reason", f.Reason, "err", f.Err)
	}

	if runErr == nil {
		i.sendStatus(Status{
			Step:       "Complete",
			StepIndex:  len(steps),
			StepCount:  len(steps),
			Progress:   1.0,
			Message:    r.Summary(),
			IsComplete: true,
		})
	}
	return r, runErr
}

func (i *Installer) sendStatus(s Status) {
	if i.statusChan != nil {
		select {
		case i.statusChan <- s:
		default:
		}
	}
}

func (i *Installer) resolve(ctx context.Context, j *job) error {
	m, err := i.resolver.Resolve(ctx, j.id)
	if err != nil {
		return err
	}
	j.manifest = m
	j.report.Manifest = m
	j.log.Debug("resolved", "chain", m.Chain, "libraries", len(m.Libraries))
	return nil
}

// downloadFiles fetches the client, libraries, natives, asset index and
// logging config in one scheduler run.
func (i *Installer) downloadFiles(ctx context.Context, j *job) error {
	m := j.manifest
	var reqs []download.Request

	client := download.Request{
		Descriptor: download.Descriptor{Path: i.clientPath(m)},
		Priority:   download.PriorityCritical,
		Group:      GroupClient,
	}
	if m.Client != nil {
		client.URL = m.Client.URL
		client.Checksum = m.Client.SHA1
		client.Size = m.Client.Size
	}
	reqs = append(reqs, client)

	if m.AssetIndex != nil {
		reqs = append(reqs, i.planner.IndexRequest(m.AssetIndex))
	}

	nativeIdx := map[int]nativeArchive{}
	for _, lib := range m.Libraries {
		if lib.Artifact != nil {
			reqs = append(reqs, i.libraryRequest(lib.Artifact, GroupLibrary))
		}
		if lib.Native != nil {
			nativeIdx[len(reqs)] = nativeArchive{
				name:    lib.Name,
				path:    i.libraryPath(lib.Native.Path),
				exclude: lib.Exclude,
			}
			reqs = append(reqs, i.libraryRequest(lib.Native, GroupNative))
		}
	}

	if m.Logging != nil && m.Logging.File.URL != "" {
		f := m.Logging.File
		reqs = append(reqs, download.Request{
			Descriptor: download.Descriptor{
				URL:      f.URL,
				Path:     filepath.Join(i.cfg.AssetsDir, "log_configs", filepath.Base(f.ID)),
				Checksum: f.SHA1,
				Size:     f.Size,
			},
			Priority: download.PriorityLow,
			Group:    GroupLogConfig,
		})
	}

	rep, err := i.run(ctx, StepFiles, reqs)
	if rep != nil {
		for n, res := range rep.Results {
			j.report.record(res)
			if na, ok := nativeIdx[n]; ok && succeeded(res.Outcome) {
				j.natives = append(j.natives, na)
			}
		}
	}
	return err
}

func (i *Installer) extractNatives(ctx context.Context, j *job) error {
	if len(j.natives) == 0 {
		return nil
	}
	dir := i.NativesDir(j.manifest.ID)

	for n, na := range j.natives {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.sendStatus(Status{
			Step:     StepNatives,
			Progress: float64(n) / float64(len(j.natives)),
			Message:  "Extracting " + filepath.Base(na.path),
		})

		written, err := natives.Extract(na.path, dir, na.exclude)
		if err != nil {
			j.log.Warn("native extraction failed", "library", na.name, "err", err)
			j.report.Natives.addFailure(Failure{
				Group:  GroupNative,
				Path:   na.path,
				Reason: "extract",
				Err:    err.Error(),
			})
			continue
		}
		j.report.NativesExtracted += written
	}
	return nil
}

func (i *Installer) downloadAssets(ctx context.Context, j *job) error {
	ref := j.manifest.AssetIndex
	if ref == nil || !j.report.Assets.ok() {
		return nil
	}

	idx, err := i.planner.LoadIndex(ref)
	if err != nil {
		j.report.Assets.addFailure(Failure{
			Group:  assets.GroupIndex,
			Path:   i.planner.IndexPath(ref),
			Reason: "parse",
			Err:    err.Error(),
		})
		return nil
	}
	j.index = idx

	reqs := i.planner.Plan(idx)
	j.log.Debug("planned assets", "objects", len(idx.Objects), "requests", len(reqs))

	rep, err := i.run(ctx, StepAssets, reqs)
	if rep != nil {
		for _, res := range rep.Results {
			j.report.record(res)
		}
	}
	return err
}

func (i *Installer) materialize(ctx context.Context, j *job) error {
	if j.index == nil || !j.index.Legacy() {
		return nil
	}
	_, _, err := i.planner.Materialize(ctx, j.manifest.AssetIndex.ID, j.index)
	if err != nil && !errors.Is(err, context.Canceled) {
		j.report.Assets.addFailure(Failure{
			Group:  assets.GroupObject,
			Path:   i.planner.VirtualDir(j.manifest.AssetIndex.ID),
			Reason: "materialize",
			Err:    err.Error(),
		})
		return nil
	}
	return err
}

// run forwards scheduler progress as status updates.
func (i *Installer) run(ctx context.Context, step string, reqs []download.Request) (*download.Report, error) {
	progressChan := make(chan download.Progress, 10)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		for p := range progressChan {
			i.sendStatus(Status{
				Step:     step,
				Progress: p.Fraction(),
				Message:  fmt.Sprintf("Downloading %s (%s)", p.CurrentItem, download.FormatSpeed(p.Speed)),
			})
		}
	}()

	rep, err := i.scheduler.Run(ctx, reqs, progressChan)
	close(progressChan)
	<-forwarded
	return rep, err
}

func (i *Installer) libraryRequest(a *core.Artifact, group string) download.Request {
	return download.Request{
		Descriptor: download.Descriptor{
			URL:      a.URL,
			Path:     i.libraryPath(a.Path),
			Checksum: a.SHA1,
			Size:     a.Size,
		},
		Priority: download.PriorityHigh,
		Group:    group,
	}
}

func (i *Installer) libraryPath(rel string) string {
	return filepath.Join(i.cfg.LibrariesDir, filepath.FromSlash(rel))
}

// clientPath is versions/<jar id>/<jar id>.jar, where the jar id is the
// version that supplies the client download.
func (i *Installer) clientPath(m *resolve.Manifest) string {
	id := m.ClientJarID
	if id == "" {
		id = m.ID
	}
	return filepath.Join(i.cfg.VersionsDir, id, id+".jar")
}

// NativesDir is where natives for version id are extracted.
func (i *Installer) NativesDir(id string) string {
	return filepath.Join(i.cfg.VersionsDir, id, "natives")
}

func succeeded(o download.Outcome) bool {
	return o.Kind == download.OutcomeCompleted || o.Kind == download.OutcomeSkipped
}
