package training

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

const (
	fileLayout   = "20060102"
	latestFile   = "LATEST"
	artifactExt  = ".msgpack"
	artifactMode = 0o644
)

// artifactName matches <horizon>_<YYYYMMDD>_v<N>.msgpack
var artifactName = regexp.MustCompile(`^(.+)_(\d{8})_v(\d+)\.msgpack$`)

// Artifact identifies one stored model file
type Artifact struct {
	Horizon   string    `json:"horizon"`
	TrainedOn time.Time `json:"trained_on"`
	Version   int       `json:"version"`
	Path      string    `json:"path"`
	Latest    bool      `json:"latest"`
}

// ID is the file stem, e.g. daily_20240315_v2
func (a Artifact) ID() string {
	return strings.TrimSuffix(filepath.Base(a.Path), artifactExt)
}

// ModelStore keeps versioned model artifacts under models/<horizon>/.
// Artifacts are never overwritten; LATEST names the active one.
// ⭐ SSOT: 모델 파일 쓰기는 여기서만 (임시 파일 → fsync → rename)
type ModelStore struct {
	root string
	mu   sync.Mutex
}

// NewModelStore creates a store rooted at the models directory
func NewModelStore(root string) *ModelStore {
	return &ModelStore{root: root}
}

func (s *ModelStore) dir(horizon string) string {
	return filepath.Join(s.root, horizon)
}

// Save assigns the next version for the training date, writes the
// artifact and moves LATEST to it
func (s *ModelStore) Save(m *Model) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(m.Horizon.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create model dir: %w", err)
	}

	existing, err := s.list(m.Horizon.Name)
	if err != nil {
		return Artifact{}, err
	}
	m.Version = 1
	for _, a := range existing {
		if a.TrainedOn.Equal(contracts.Day(m.TrainedOn)) && a.Version >= m.Version {
			m.Version = a.Version + 1
		}
	}

	data, err := m.Encode()
	if err != nil {
		return Artifact{}, err
	}

	path := filepath.Join(dir, m.ID()+artifactExt)
	if _, err := os.Stat(path); err == nil {
		return Artifact{}, fmt.Errorf("artifact %s already exists", path)
	}
	if err := writeAtomic(dir, path, data); err != nil {
		return Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := writeAtomic(dir, filepath.Join(dir, latestFile), []byte(m.ID()+"\n")); err != nil {
		return Artifact{}, fmt.Errorf("write LATEST: %w", err)
	}

	return Artifact{
		Horizon:   m.Horizon.Name,
		TrainedOn: contracts.Day(m.TrainedOn),
		Version:   m.Version,
		Path:      path,
		Latest:    true,
	}, nil
}

// writeAtomic writes data to a temp file in dir, syncs it and renames it over path
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), artifactMode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Latest returns the artifact LATEST points to
func (s *ModelStore) Latest(horizon string) (Artifact, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(horizon), latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: horizon %s has no LATEST", contracts.ErrModelNotFound, horizon)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("read LATEST: %w", err)
	}
	a, ok := parseArtifact(s.dir(horizon), strings.TrimSpace(string(data))+artifactExt)
	if !ok {
		return Artifact{}, fmt.Errorf("LATEST of %s is malformed: %q", horizon, strings.TrimSpace(string(data)))
	}
	a.Latest = true
	return a, nil
}

// Load reads the LATEST artifact, or the named version when version is set.
// A version is a full ID (daily_20240315_v2) or its date/version part (20240315_v2).
func (s *ModelStore) Load(horizon, version string) (*Model, Artifact, error) {
	var a Artifact
	if version == "" {
		latest, err := s.Latest(horizon)
		if err != nil {
			return nil, Artifact{}, err
		}
		a = latest
	} else {
		id := version
		if !strings.HasPrefix(id, horizon+"_") {
			id = horizon + "_" + id
		}
		parsed, ok := parseArtifact(s.dir(horizon), id+artifactExt)
		if !ok {
			return nil, Artifact{}, fmt.Errorf("model version %q is malformed", version)
		}
		a = parsed
	}

	data, err := os.ReadFile(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Artifact{}, fmt.Errorf("%w: %s", contracts.ErrModelNotFound, a.ID())
	}
	if err != nil {
		return nil, Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	m, err := DecodeModel(data)
	if err != nil {
		return nil, Artifact{}, err
	}
	return m, a, nil
}

// List returns a horizon's artifacts ordered by (date, version)
func (s *ModelStore) List(horizon string) ([]Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.list(horizon)
	if err != nil {
		return nil, err
	}
	if latest, err := s.Latest(horizon); err == nil {
		for i := range out {
			out[i].Latest = out[i].Path == latest.Path
		}
	}
	return out, nil
}

func (s *ModelStore) list(horizon string) ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir(horizon))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}

	out := make([]Artifact, 0, len(entries))
	for _, e := range entries {
		if a, ok := parseArtifact(s.dir(horizon), e.Name()); ok && a.Horizon == horizon {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TrainedOn.Equal(out[j].TrainedOn) {
			return out[i].TrainedOn.Before(out[j].TrainedOn)
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func parseArtifact(dir, name string) (Artifact, bool) {
	m := artifactName.FindStringSubmatch(name)
	if m == nil {
		return Artifact{}, false
	}
	date, err := time.ParseInLocation(fileLayout, m[2], time.UTC)
	if err != nil {
		return Artifact{}, false
	}
	version, err := strconv.Atoi(m[3])
	if err != nil || version < 1 {
		return Artifact{}, false
	}
	return Artifact{
		Horizon:   m[1],
		TrainedOn: date,
		Version:   version,
		Path:      filepath.Join(dir, name),
	}, true
}
