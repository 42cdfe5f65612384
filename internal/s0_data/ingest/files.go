package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// sourceDirs maps each disclosure to its directory under raw/
var sourceDirs = map[string]string{
	contracts.SourceBhav:        "bhav",
	contracts.SourceDelivery:    "delivery",
	contracts.SourceFIIDII:      "fii_dii",
	contracts.SourceParticipant: "participant_wise",
	contracts.SourceBulkBlock:   "bulk_block",
}

// sourceExts lists accepted file extensions (lower-case) per source
var sourceExts = map[string][]string{
	contracts.SourceBhav:        {".csv", ".zip"},
	contracts.SourceDelivery:    {".dat"},
	contracts.SourceFIIDII:      {".csv"},
	contracts.SourceParticipant: {".csv"},
	contracts.SourceBulkBlock:   {".csv"},
}

// SourceDir returns the raw directory of a source
func SourceDir(root, source string) string {
	return filepath.Join(root, sourceDirs[source])
}

// listFiles returns the source's files in lexical order
func listFiles(root, source string) ([]string, error) {
	dir := SourceDir(root, source)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range sourceExts[source] {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

var eightDigits = regexp.MustCompile(`\d{8}`)

// dateFromFilename finds a YYYYMMDD or DDMMYYYY stamp in a file name
func dateFromFilename(name string) (time.Time, bool) {
	for _, m := range eightDigits.FindAllString(filepath.Base(name), -1) {
		if t, err := time.ParseInLocation("20060102", m, time.UTC); err == nil && t.Year() >= 1990 && t.Year() < 2100 {
			return t, true
		}
		if t, err := time.ParseInLocation("02012006", m, time.UTC); err == nil && t.Year() >= 1990 && t.Year() < 2100 {
			return t, true
		}
	}
	return time.Time{}, false
}

var dateLayouts = []string{
	"2006-01-02",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-01-2006",
	"02/01/2006",
	"02 Jan 2006",
	"20060102",
	"2006-01-02T15:04:05",
}

// parseDate accepts the date spellings seen across NSE reports
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return contracts.Day(t), true
		}
	}
	return time.Time{}, false
}

// parseNumber parses a report number, tolerating thousands separators
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// readRaw returns file bytes, unwrapping the first CSV entry of a zip archive
func readRaw(path string) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return os.ReadFile(path)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if strings.ToLower(filepath.Ext(f.Name)) != ".csv" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s in %s: %w", f.Name, path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s in %s: %w", f.Name, path, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("zip %s: no csv entry", path)
}

// readCSV reads every record with ragged rows allowed
func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

// header maps normalized column names to indices
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, col := range row {
		key := normalizeColumn(col)
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

func normalizeColumn(col string) string {
	return strings.ToUpper(strings.TrimSpace(col))
}

// find returns the first index among aliases
func (h header) find(aliases ...string) int {
	for _, a := range aliases {
		if i, ok := h[a]; ok {
			return i
		}
	}
	return -1
}

// findContaining returns the first column containing every token, in column order
func (h header) findContaining(row []string, tokens ...string) int {
	for i, col := range row {
		key := normalizeColumn(col)
		all := true
		for _, t := range tokens {
			if !strings.Contains(key, t) {
				all = false
				break
			}
		}
		if all {
			return i
		}
	}
	return -1
}

// cell returns a trimmed field or "" when the row is short
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
