package s2_features

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wonny/smartflow/internal/contracts"
)

// Processed is the persisted feature/label table of one run
type Processed struct {
	AsOf      time.Time                       `msgpack:"as_of"`
	Features  *contracts.FeatureSet           `msgpack:"features"`
	Labels    map[string][]contracts.LabelRow `msgpack:"labels"`
	Anomalies []contracts.AnomalyFlag         `msgpack:"anomalies"`
}

// Store writes processed tables as msgpack under data/processed
type Store struct {
	dir string
}

// NewStore creates a processed-table store
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the table file of a date
func (s *Store) Path(asOf time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("features_%s.msgpack", asOf.Format("20060102")))
}

// Save writes the table atomically
func (s *Store) Save(p *Processed) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create processed dir: %w", err)
	}

	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode processed table: %w", err)
	}

	tmp := s.Path(p.AsOf) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write processed table: %w", err)
	}
	if err := os.Rename(tmp, s.Path(p.AsOf)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename processed table: %w", err)
	}
	return nil
}

// Load reads the table of a date
func (s *Store) Load(asOf time.Time) (*Processed, error) {
	data, err := os.ReadFile(s.Path(asOf))
	if err != nil {
		return nil, fmt.Errorf("read processed table: %w", err)
	}
	var p Processed
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode processed table: %w", err)
	}
	p.toUTC()
	return &p, nil
}

// toUTC restores the UTC location msgpack drops on decode
func (p *Processed) toUTC() {
	p.AsOf = p.AsOf.UTC()
	if p.Features != nil {
		for i := range p.Features.Vectors {
			p.Features.Vectors[i].Date = p.Features.Vectors[i].Date.UTC()
		}
	}
	for _, rows := range p.Labels {
		for i := range rows {
			rows[i].Date = rows[i].Date.UTC()
		}
	}
	for i := range p.Anomalies {
		p.Anomalies[i].Date = p.Anomalies[i].Date.UTC()
	}
}
