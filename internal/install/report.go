package install

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aayushdutt/mcinstall/internal/assets"
	"github.com/aayushdutt/mcinstall/internal/download"
	"github.com/aayushdutt/mcinstall/internal/resolve"
)

// State summarizes whether an installed version can be used.
type State string

const (
	StateInstalled     State = "installed"
	StateMissingAssets State = "installed-missing-assets"
	StateUnusable      State = "unusable"
)

// Failure names an artifact that is not on disk after the install.
type Failure struct {
	Group     string                 `json:"group"`
	Path      string                 `json:"path"`
	URL       string                 `json:"url,omitempty"`
	Reason    download.FailureReason `json:"reason"`
	Attempts  int                    `json:"attempts,omitempty"`
	Exhausted bool                   `json:"exhausted,omitempty"`
	Err       string                 `json:"error,omitempty"`
}

// PhaseReport counts outcomes for one kind of artifact.
type PhaseReport struct {
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Cancelled int       `json:"cancelled"`
	Bytes     int64     `json:"bytes"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (p *PhaseReport) ok() bool {
	return p.Failed == 0 && p.Cancelled == 0
}

func (p *PhaseReport) addFailure(f Failure) {
	p.Failed++
	p.Failures = append(p.Failures, f)
}

func (p *PhaseReport) add(res download.Result) {
	p.Total++
	o := res.Outcome

	switch o.Kind {
	case download.OutcomeCompleted:
		p.Completed++
		p.Bytes += o.Bytes
		return
	case download.OutcomeSkipped:
		p.Skipped++
		return
	case download.OutcomeCancelled:
		p.Cancelled++
	case download.OutcomeFailed:
		p.Failed++
	}

	f := Failure{
		Group:     res.Request.Group,
		Path:      res.Request.Path,
		URL:       res.Request.URL,
		Reason:    o.Reason,
		Attempts:  o.Attempts,
		Exhausted: o.Exhausted,
	}
	if o.Kind == download.OutcomeCancelled {
		f.Reason = "cancelled"
	}
	if o.Err != nil {
		f.Err = o.Err.Error()
	}
	p.Failures = append(p.Failures, f)
}

// Report is the result of one install run.
type Report struct {
	RunID     string            `json:"runId"`
	VersionID string            `json:"versionId"`
	Manifest  *resolve.Manifest `json:"-"`

	Client    PhaseReport `json:"client"`
	Libraries PhaseReport `json:"libraries"`
	Natives   PhaseReport `json:"natives"`
	Assets    PhaseReport `json:"assets"`
	LogConfig PhaseReport `json:"logConfig"`

	NativesExtracted int           `json:"nativesExtracted"`
	State            State         `json:"state"`
	Cancelled        bool          `json:"cancelled"`
	Duration         time.Duration `json:"duration"`
}

func (r *Report) record(res download.Result) {
	switch res.Request.Group {
	case GroupClient:
		r.Client.add(res)
	case GroupLibrary:
		r.Libraries.add(res)
	case GroupNative:
		r.Natives.add(res)
	case GroupLogConfig:
		r.LogConfig.add(res)
	case assets.GroupIndex, assets.GroupObject:
		r.Assets.add(res)
	}
}

func (r *Report) phases() []*PhaseReport {
	return []*PhaseReport{&r.Client, &r.Libraries, &r.Natives, &r.Assets, &r.LogConfig}
}

// computeState: the client, libraries and natives are required to play;
// assets and the logging config are not.
func (r *Report) computeState() State {
	if !r.Client.ok() || !r.Libraries.ok() || !r.Natives.ok() {
		return StateUnusable
	}
	if !r.Assets.ok() || !r.LogConfig.ok() {
		return StateMissingAssets
	}
	return StateInstalled
}

// Missing lists every artifact that did not make it to disk.
func (r *Report) Missing() []Failure {
	var out []Failure
	for _, p := range r.phases() {
		out = append(out, p.Failures...)
	}
	return out
}

// Files counts every artifact the install handled.
func (r *Report) Files() (total, downloaded, upToDate int) {
	for _, p := range r.phases() {
		total += p.Total
		downloaded += p.Completed
		upToDate += p.Skipped
	}
	return total, downloaded, upToDate
}

// Bytes is the number of bytes transferred.
func (r *Report) Bytes() int64 {
	var n int64
	for _, p := range r.phases() {
		n += p.Bytes
	}
	return n
}

// Summary is a one-line description for people.
func (r *Report) Summary() string {
	total, downloaded, upToDate := r.Files()
	s := fmt.Sprintf("%s %s: %d files, %d downloaded (%s), %d up to date",
		r.VersionID, r.State, total, downloaded, humanize.Bytes(uint64(r.Bytes())), upToDate)
	if missing := len(r.Missing()); missing > 0 {
		s += fmt.Sprintf(", %d missing", missing)
	}
	return s
}
