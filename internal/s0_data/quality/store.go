package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

const fileLayout = "20060102"

// Store keeps one JSON report per date under the quality directory
type Store struct {
	dir string
}

// NewStore creates a file store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the report file of a date
func (s *Store) Path(date time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("quality_%s.json", date.Format(fileLayout)))
}

// Save writes the report atomically
func (s *Store) Save(report *contracts.QualityReport) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create quality dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	path := s.Path(report.Date)
	tmp, err := os.CreateTemp(s.dir, ".quality-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// Load reads the report of a date
func (s *Store) Load(date time.Time) (*contracts.QualityReport, error) {
	data, err := os.ReadFile(s.Path(date))
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", contracts.DateKey(date), err)
	}
	var report contracts.QualityReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", contracts.DateKey(date), err)
	}
	return &report, nil
}

// Dates lists the dates that have a stored report, ascending
func (s *Store) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read quality dir: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "quality_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "quality_"), ".json")
		d, err := time.ParseInLocation(fileLayout, stamp, time.UTC)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Latest returns the most recent stored report
func (s *Store) Latest() (*contracts.QualityReport, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no quality reports in %s", s.dir)
	}
	return s.Load(dates[len(dates)-1])
}
