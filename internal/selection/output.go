package selection

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/s2_features"
)

// CombinedList is the list column value of combined rows
const CombinedList = "combined"

// csvHeader is the fixed column order of the predictions CSV
var csvHeader = []string{
	"run_id", "as_of", "list", "rank", "symbol", "horizon", "probability",
	"delivery_zscore", "delivery_pct", "fii_net_ma5", "dii_net_ma5", "model_version",
}

// Output writes ranked tables under outputs/predictions
type Output struct {
	dir string
}

// NewOutput creates a writer rooted at dir
func NewOutput(dir string) *Output {
	return &Output{dir: dir}
}

func (o *Output) path(asOf time.Time, ext string) string {
	return filepath.Join(o.dir, fmt.Sprintf("predictions_%s.%s", asOf.Format("20060102"), ext))
}

// Write stores the table as CSV and JSON and returns both paths
func (o *Output) Write(table *contracts.RankedTable) (csvPath, jsonPath string, err error) {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	data, err := EncodeCSV(table)
	if err != nil {
		return "", "", err
	}
	csvPath = o.path(table.AsOf, "csv")
	if err := writeFile(o.dir, csvPath, data); err != nil {
		return "", "", fmt.Errorf("write csv: %w", err)
	}

	js, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal predictions: %w", err)
	}
	jsonPath = o.path(table.AsOf, "json")
	if err := writeFile(o.dir, jsonPath, js); err != nil {
		return "", "", fmt.Errorf("write json: %w", err)
	}
	return csvPath, jsonPath, nil
}

func writeFile(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".predictions-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EncodeCSV renders per-horizon lists (horizon name order) then the combined list
func EncodeCSV(table *contracts.RankedTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	horizons := make([]string, 0, len(table.ByHorizon))
	for h := range table.ByHorizon {
		horizons = append(horizons, h)
	}
	sort.Strings(horizons)

	write := func(list string, preds []contracts.Prediction) error {
		for _, p := range preds {
			rec := []string{
				table.RunID,
				contracts.DateKey(table.AsOf),
				list,
				strconv.Itoa(p.Rank),
				p.Symbol,
				p.Horizon,
				strconv.FormatFloat(p.Probability, 'f', 6, 64),
				optional(p.DeliveryZScore, 4),
				snapshotValue(p, s2_features.DeliveryPct, 2),
				snapshotValue(p, s2_features.FIINetMA5, 2),
				snapshotValue(p, s2_features.DIINetMA5, 2),
				p.ModelVersion,
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		return nil
	}

	for _, h := range horizons {
		if err := write(h, table.ByHorizon[h]); err != nil {
			return nil, err
		}
	}
	if err := write(CombinedList, table.Combined); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func optional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func snapshotValue(p contracts.Prediction, name string, prec int) string {
	v, ok := p.Snapshot[name]
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Latest reads the most recent JSON table in the output directory
func (o *Output) Latest() (*contracts.RankedTable, error) {
	matches, err := filepath.Glob(filepath.Join(o.dir, "predictions_*.json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no predictions in %s", o.dir)
	}
	sort.Strings(matches)
	return o.read(matches[len(matches)-1])
}

// Dates lists the dates with a stored JSON table in ascending order
func (o *Output) Dates() ([]time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(o.dir, "predictions_*.json"))
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(matches))
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "predictions_"), ".json")
		d, err := time.ParseInLocation("20060102", stamp, time.UTC)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Load reads the JSON table of one date
func (o *Output) Load(asOf time.Time) (*contracts.RankedTable, error) {
	return o.read(o.path(asOf, "json"))
}

func (o *Output) read(path string) (*contracts.RankedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}
	var table contracts.RankedTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decode %s: %w", strings.TrimPrefix(path, o.dir+string(filepath.Separator)), err)
	}
	return &table, nil
}
