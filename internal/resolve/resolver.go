// Package resolve merges version documents and their inherited parents
// into a concrete, platform-filtered install manifest.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/logging"
)

// Source supplies raw version documents by id.
type Source interface {
	VersionDetails(ctx context.Context, id string) (*core.VersionDetails, error)
}

// Manifest is the resolved, installable view of a version and its parents.
type Manifest struct {
	ID               string              `json:"id"`
	Chain            []string            `json:"chain"` // merged documents, root parent first
	Type             core.VersionType    `json:"type"`
	ReleaseTime      time.Time           `json:"releaseTime"`
	MainClass        string              `json:"mainClass"`
	GameArguments    []core.Argument     `json:"gameArguments"`
	JVMArguments     []core.Argument     `json:"jvmArguments"`
	Libraries        []Library           `json:"libraries"`
	AssetIndex       *core.AssetIndexRef `json:"assetIndex,omitempty"`
	Assets           string              `json:"assets,omitempty"`
	Client           *core.Artifact      `json:"client,omitempty"`
	ClientJarID      string              `json:"clientJarId"`
	JavaMajorVersion int                 `json:"javaMajorVersion,omitempty"`
	Logging          *core.LoggingConfig `json:"logging,omitempty"`
}

// Library is a library that applies to the resolved platform.
type Library struct {
	Name       string          `json:"name"`
	Coordinate core.Coordinate `json:"-"`
	// Path is relative to the libraries directory, slash separated.
	Path     string         `json:"path"`
	Artifact *core.Artifact `json:"artifact,omitempty"`
	Native   *core.Artifact `json:"native,omitempty"`
	Exclude  []string       `json:"exclude,omitempty"`
}

// Resolver turns version ids into manifests for one platform.
type Resolver struct {
	source   Source
	platform core.PlatformContext
	log      *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(source Source, platform core.PlatformContext, log *slog.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{source: source, platform: platform, log: log}
}

// Platform returns the context rules are evaluated against.
func (r *Resolver) Platform() core.PlatformContext {
	return r.platform
}

// Resolve loads id and every version it inherits from and merges them.
func (r *Resolver) Resolve(ctx context.Context, id string) (*Manifest, error) {
	return r.resolve(ctx, id, nil)
}

func (r *Resolver) resolve(ctx context.Context, id string, seen []string) (*Manifest, error) {
	for _, s := range seen {
		if s == id {
			return nil, fmt.Errorf("%w: %v -> %s", core.ErrCyclicInheritance, seen, id)
		}
	}
	seen = append(seen, id)

	details, err := r.source.VersionDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	if details.ID != "" && details.ID != id {
		r.log.Warn("version document id differs from requested id", "requested", id, "document", details.ID)
	}

	own, err := r.flatten(id, details)
	if err != nil {
		return nil, err
	}

	if details.InheritsFrom == "" {
		return own, nil
	}

	parent, err := r.resolve(ctx, details.InheritsFrom, seen)
	if err != nil {
		if errors.Is(err, core.ErrCyclicInheritance) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &core.ParentError{Child: id, Parent: details.InheritsFrom, Err: err}
	}

	r.log.Debug("merged parent version", "version", id, "parent", details.InheritsFrom)
	return merge(parent, own), nil
}

// flatten converts one document on its own, without its parent.
func (r *Resolver) flatten(id string, v *core.VersionDetails) (*Manifest, error) {
	m := &Manifest{
		ID:          id,
		Chain:       []string{id},
		Type:        v.Type,
		ReleaseTime: v.ReleaseTime,
		MainClass:   v.MainClass,
		AssetIndex:  v.AssetIndex,
		Assets:      v.Assets,
	}

	if v.Arguments != nil {
		m.GameArguments = v.Arguments.Game
		m.JVMArguments = v.Arguments.JVM
	} else if v.MinecraftArguments != "" {
		m.GameArguments = core.LegacyArguments(v.MinecraftArguments)
	}

	if v.Downloads != nil && v.Downloads.Client != nil {
		m.Client = v.Downloads.Client
		m.ClientJarID = id
	}
	if v.Jar != "" {
		m.ClientJarID = v.Jar
	}
	if v.JavaVersion != nil {
		m.JavaMajorVersion = v.JavaVersion.MajorVersion
	}
	if v.Logging != nil {
		m.Logging = v.Logging.Client
	}

	for i := range v.Libraries {
		lib := &v.Libraries[i]
		if !core.Allowed(lib.Rules, r.platform) {
			r.log.Debug("library disallowed on platform", "version", id, "library", lib.Name)
			continue
		}
		resolved, err := r.library(lib)
		if err != nil {
			return nil, fmt.Errorf("version %s: %w", id, err)
		}
		m.Libraries = append(m.Libraries, resolved)
	}

	return m, nil
}

func (r *Resolver) library(lib *core.Library) (Library, error) {
	coord, err := core.ParseCoordinate(lib.Name)
	if err != nil {
		return Library{}, err
	}

	out := Library{
		Name:       lib.Name,
		Coordinate: coord,
		Path:       coord.Path(),
	}
	if lib.Extract != nil {
		out.Exclude = lib.Extract.Exclude
	}

	switch {
	case lib.Downloads != nil && lib.Downloads.Artifact != nil:
		a := *lib.Downloads.Artifact
		if a.Path == "" {
			a.Path = out.Path
		}
		out.Artifact = &a
		out.Path = a.Path
	case lib.Downloads == nil && len(lib.Natives) == 0:
		// Loader style entry: only a name and a repository.
		out.Artifact = &core.Artifact{
			Path: out.Path,
			URL:  lib.RepositoryURL() + out.Path,
		}
	}

	if classifier := lib.NativeClassifier(r.platform); classifier != "" {
		native := &core.Artifact{Path: coord.WithClassifier(classifier).Path()}
		if lib.Downloads != nil && lib.Downloads.Classifiers[classifier] != nil {
			*native = *lib.Downloads.Classifiers[classifier]
			if native.Path == "" {
				native.Path = coord.WithClassifier(classifier).Path()
			}
		} else {
			native.URL = lib.RepositoryURL() + native.Path
		}
		out.Native = native
	}

	return out, nil
}

// merge layers child over parent. Lists concatenate parent first;
// scalars come from the child when it sets them.
func merge(parent, child *Manifest) *Manifest {
	m := &Manifest{
		ID:               child.ID,
		Chain:            concat(parent.Chain, child.Chain),
		Type:             pick(child.Type, parent.Type),
		ReleaseTime:      parent.ReleaseTime,
		MainClass:        pick(child.MainClass, parent.MainClass),
		GameArguments:    concat(parent.GameArguments, child.GameArguments),
		JVMArguments:     concat(parent.JVMArguments, child.JVMArguments),
		Libraries:        concat(parent.Libraries, child.Libraries),
		AssetIndex:       parent.AssetIndex,
		Assets:           pick(child.Assets, parent.Assets),
		Client:           parent.Client,
		ClientJarID:      parent.ClientJarID,
		JavaMajorVersion: parent.JavaMajorVersion,
		Logging:          parent.Logging,
	}

	if !child.ReleaseTime.IsZero() {
		m.ReleaseTime = child.ReleaseTime
	}
	if child.AssetIndex != nil {
		m.AssetIndex = child.AssetIndex
	}
	if child.Client != nil {
		m.Client = child.Client
	}
	if child.ClientJarID != "" {
		m.ClientJarID = child.ClientJarID
	}
	if child.JavaMajorVersion != 0 {
		m.JavaMajorVersion = child.JavaMajorVersion
	}
	if child.Logging != nil {
		m.Logging = child.Logging
	}
	return m
}

func pick[T comparable](child, parent T) T {
	var zero T
	if child != zero {
		return child
	}
	return parent
}

func concat[T any](a, b []T) []T {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
