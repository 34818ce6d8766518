package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aayushdutt/mcinstall/internal/core"
	"github.com/aayushdutt/mcinstall/internal/download"
	"github.com/aayushdutt/mcinstall/internal/logging"
)

// DefaultBaseURL serves asset objects.
const DefaultBaseURL = "https://resources.download.minecraft.net"

// Group labels used on requests.
const (
	GroupIndex  = "asset-index"
	GroupObject = "asset"
)

// Planner maps asset indexes and objects onto the assets directory.
type Planner struct {
	dir     string
	baseURL string
	log     *slog.Logger
}

// NewPlanner creates a planner rooted at assetsDir. An empty baseURL uses
// DefaultBaseURL.
func NewPlanner(assetsDir, baseURL string, log *slog.Logger) *Planner {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Planner{dir: assetsDir, baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// IndexPath is where the index document for ref is stored.
func (p *Planner) IndexPath(ref *core.AssetIndexRef) string {
	return filepath.Join(p.dir, "indexes", ref.ID+".json")
}

// IndexRequest fetches the index document itself. It must complete before
// objects can be planned.
func (p *Planner) IndexRequest(ref *core.AssetIndexRef) download.Request {
	return download.Request{
		Descriptor: download.Descriptor{
			URL:      ref.URL,
			Path:     p.IndexPath(ref),
			Checksum: ref.SHA1,
			Size:     ref.Size,
		},
		Priority: download.PriorityHigh,
		Group:    GroupIndex,
	}
}

// LoadIndex parses the stored index document for ref.
func (p *Planner) LoadIndex(ref *core.AssetIndexRef) (*Index, error) {
	f, err := os.Open(p.IndexPath(ref))
	if err != nil {
		return nil, fmt.Errorf("reading asset index: %w", err)
	}
	defer f.Close()

	idx, err := ParseIndex(f)
	if err != nil {
		return nil, fmt.Errorf("parsing asset index %s: %w", ref.ID, err)
	}
	return idx, nil
}

// Plan returns one request per distinct hash, in first-seen order.
func (p *Planner) Plan(idx *Index) []download.Request {
	seen := make(map[string]struct{}, len(idx.Objects))
	requests := make([]download.Request, 0, len(idx.Objects))

	for _, obj := range idx.Objects {
		if _, ok := seen[obj.Hash]; ok {
			continue
		}
		seen[obj.Hash] = struct{}{}

		requests = append(requests, download.Request{
			Descriptor: download.Descriptor{
				URL:      p.baseURL + "/" + path.Join(obj.Hash[:2], obj.Hash),
				Path:     p.ObjectPath(obj.Hash),
				Checksum: obj.Hash,
				Size:     obj.Size,
			},
			Priority: download.PriorityNormal,
			Group:    GroupObject,
		})
	}

	if dupes := len(idx.Objects) - len(requests); dupes > 0 {
		p.log.Debug("deduplicated asset objects", "objects", len(idx.Objects), "requests", len(requests))
	}
	return requests
}

// ObjectPath is the absolute storage path of a hash.
func (p *Planner) ObjectPath(hash string) string {
	return filepath.Join(p.dir, filepath.FromSlash(ObjectPath(hash)))
}

// VirtualDir is where a legacy index's objects are laid out by name.
func (p *Planner) VirtualDir(id string) string {
	return filepath.Join(p.dir, "virtual", id)
}

// Materialize copies objects of a legacy index into VirtualDir(id) under
// their names. Objects missing from the store are skipped and counted.
func (p *Planner) Materialize(ctx context.Context, id string, idx *Index) (copied, missing int, err error) {
	if !idx.Legacy() {
		return 0, 0, nil
	}
	root := p.VirtualDir(id)

	for _, obj := range idx.Objects {
		if err := ctx.Err(); err != nil {
			return copied, missing, err
		}

		rel := filepath.FromSlash(obj.Name)
		if !filepath.IsLocal(rel) {
			p.log.Warn("skipping asset with unsafe name", "name", obj.Name)
			continue
		}
		dst := filepath.Join(root, rel)

		if info, err := os.Stat(dst); err == nil && info.Size() == obj.Size {
			continue
		}

		src := p.ObjectPath(obj.Hash)
		if _, err := os.Stat(src); err != nil {
			missing++
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return copied, missing, fmt.Errorf("materializing %s: %w", obj.Name, err)
		}
		copied++
	}

	p.log.Debug("materialized legacy assets", "index", id, "copied", copied, "missing", missing)
	return copied, missing, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
