package wui

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wuimap/internal/raster"
)

// ArtifactKind names an intermediate or final raster of the pipeline.
type ArtifactKind string

// Artifact kinds. Scenario-level kinds are stored with radius 0.
const (
	KindWater           ArtifactKind = "water"
	KindWildlandBase    ArtifactKind = "wildland-base"
	KindWildlandAreas   ArtifactKind = "wildland-areas"
	KindFarCover        ArtifactKind = "far-cover"
	KindNeighborhoodSum ArtifactKind = "neighborhood-sum"
	KindDensity         ArtifactKind = "density"
	KindDense           ArtifactKind = "dense"
	KindDenseBuildable  ArtifactKind = "dense-buildable"
	KindCoverFraction   ArtifactKind = "cover-fraction"
	KindCover           ArtifactKind = "cover"
	KindIntermix        ArtifactKind = "intermix"
	KindInterface       ArtifactKind = "interface"
	KindClassified      ArtifactKind = "classified"
)

// ErrArtifactMissing is returned when a registry lookup finds nothing.
var ErrArtifactMissing = eris.New("wui: artifact not in registry")

// ArtifactKey identifies one artifact within a scenario.
type ArtifactKey struct {
	Kind   ArtifactKind
	Radius int
}

// Scenario returns the key of a scenario-level artifact.
func Scenario(kind ArtifactKind) ArtifactKey { return ArtifactKey{Kind: kind} }

// AtRadius returns the key of a per-radius artifact.
func AtRadius(kind ArtifactKind, radius int) ArtifactKey {
	return ArtifactKey{Kind: kind, Radius: radius}
}

func (k ArtifactKey) String() string {
	if k.Radius == 0 {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s@%d", k.Kind, k.Radius)
}

// FileName returns the deterministic ASCII grid file name for key.
func FileName(key ArtifactKey) string {
	if key.Radius == 0 {
		return string(key.Kind) + ".asc"
	}
	return fmt.Sprintf("%s_%d.asc", key.Kind, key.Radius)
}

// Artifact is a registered raster and, once written, its file.
type Artifact struct {
	Key  ArtifactKey
	Grid *raster.Grid
	Path string
}

// Registry holds the artifacts of one scenario.
type Registry struct {
	mu    sync.Mutex
	dir   string
	items map[ArtifactKey]*Artifact
}

// NewRegistry returns an empty registry that writes artifacts under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, items: make(map[ArtifactKey]*Artifact)}
}

// Put registers g under key, replacing any previous artifact.
func (r *Registry) Put(key ArtifactKey, g *raster.Grid) *Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &Artifact{Key: key, Grid: g}
	r.items[key] = a
	return a
}

// Get returns the artifact registered under key.
func (r *Registry) Get(key ArtifactKey) (*Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[key]
	if !ok {
		return nil, eris.Wrapf(ErrArtifactMissing, "key %s", key)
	}
	return a, nil
}

// Grid returns the raster registered under key.
func (r *Registry) Grid(key ArtifactKey) (*raster.Grid, error) {
	a, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	return a.Grid, nil
}

// Persist writes the artifact under key to the registry directory and records
// its path.
func (r *Registry) Persist(key ArtifactKey) (string, error) {
	a, err := r.Get(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, FileName(key))
	if err := raster.WriteASCIIGrid(path, a.Grid); err != nil {
		return "", eris.Wrapf(err, "wui: persist %s", key)
	}
	r.mu.Lock()
	a.Path = path
	r.mu.Unlock()
	return path, nil
}

// Keys returns the registered keys ordered by radius, then kind.
func (r *Registry) Keys() []ArtifactKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]ArtifactKey, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ArtifactKey) int {
		return cmp.Or(cmp.Compare(a.Radius, b.Radius), cmp.Compare(a.Kind, b.Kind))
	})
	return keys
}

// Len returns the number of registered artifacts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Drop releases every artifact.
func (r *Registry) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.items)
}

// DropRadius releases every artifact of one radius.
func (r *Registry) DropRadius(radius int) {
	if radius == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.DeleteFunc(r.items, func(k ArtifactKey, _ *Artifact) bool { return k.Radius == radius })
}
