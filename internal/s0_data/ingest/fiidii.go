package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// parseFIIDII reads the institutional flow report (values in crore).
// Two layouts are accepted:
//
//	long: CATEGORY, DATE, BUY VALUE, SELL VALUE, NET VALUE   (one row per category)
//	wide: DATE, FII NET, DII NET, ...                        (one row per date)
func parseFIIDII(path string) (*parsedFile, error) {
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fii/dii %s: empty file", path)
	}

	fileDate, hasFileDate := dateFromFilename(path)
	h := newHeader(rows[0])
	dateCol := h.find("DATE", "TRADE DATE")

	rowDate := func(row []string) (time.Time, bool) {
		if dateCol >= 0 {
			if d, ok := parseDate(cell(row, dateCol)); ok {
				return d, true
			}
		}
		return fileDate, hasFileDate
	}

	out := newParsedFile(contracts.SourceFIIDII, path)

	if catCol := h.find("CATEGORY"); catCol >= 0 {
		netCol := h.findContaining(rows[0], "NET")
		if netCol < 0 {
			return nil, fmt.Errorf("fii/dii %s: no net value column", path)
		}
		for _, row := range rows[1:] {
			if isBlank(row) {
				continue
			}
			date, ok := rowDate(row)
			if !ok {
				continue
			}
			cat := strings.ToUpper(cell(row, catCol))
			isFII := strings.Contains(cat, "FII") || strings.Contains(cat, "FPI")
			isDII := strings.Contains(cat, "DII")
			if !isFII && !isDII {
				continue
			}
			net, ok := parseNumber(cell(row, netCol))
			if !ok {
				out.skip(date)
				continue
			}
			d := out.day(date)
			d.Expected++
			if isFII {
				d.FII = contracts.Present(net)
			} else {
				d.DII = contracts.Present(net)
			}
		}
		return finishFlow(out, path)
	}

	fiiCol := h.findContaining(rows[0], "FII", "NET")
	diiCol := h.findContaining(rows[0], "DII", "NET")
	if fiiCol < 0 && diiCol < 0 {
		return nil, fmt.Errorf("fii/dii %s: no FII/DII net columns", path)
	}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		date, ok := rowDate(row)
		if !ok {
			continue
		}
		d := out.day(date)
		d.Expected++
		bad := false
		if v, ok := parseNumber(cell(row, fiiCol)); ok {
			d.FII = contracts.Present(v)
		} else if fiiCol >= 0 {
			bad = true
		}
		if v, ok := parseNumber(cell(row, diiCol)); ok {
			d.DII = contracts.Present(v)
		} else if diiCol >= 0 {
			bad = true
		}
		if bad {
			d.Skipped++
		}
	}
	return finishFlow(out, path)
}

func finishFlow(out *parsedFile, path string) (*parsedFile, error) {
	if len(out.Days) == 0 {
		return nil, fmt.Errorf("fii/dii %s: no dated rows", path)
	}
	return out, nil
}
