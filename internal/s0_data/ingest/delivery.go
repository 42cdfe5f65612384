package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/wonny/smartflow/internal/contracts"
)

const (
	mtoHeaderMarker = "Name of Security"
	mtoRecordPrefix = "20,"
)

// parseDelivery reads an MTO security-wise delivery file.
// The trade date comes from the DDMMYYYY stamp in the file name.
func parseDelivery(path string) (*parsedFile, error) {
	date, ok := dateFromFilename(path)
	if !ok {
		return nil, fmt.Errorf("delivery %s: no date in file name", path)
	}

	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}

	var hdr []string
	var cols mtoColumns
	out := newParsedFile(contracts.SourceDelivery, path)
	day := out.day(date)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if hdr == nil {
			if strings.Contains(line, mtoHeaderMarker) {
				hdr = splitTrim(line)
				if cols, ok = newMTOColumns(hdr); !ok {
					return nil, fmt.Errorf("delivery %s: unrecognised header", path)
				}
			}
			continue
		}
		if !strings.HasPrefix(line, mtoRecordPrefix) {
			continue
		}

		day.Expected++
		symbol, row, ok := cols.parse(splitTrim(line))
		if !ok {
			day.Skipped++
			continue
		}
		if symbol == "" {
			// 비 EQ 시리즈
			day.Expected--
			continue
		}
		if _, dup := day.Delivery[symbol]; !dup {
			day.Delivery[symbol] = row
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if hdr == nil {
		return nil, fmt.Errorf("delivery %s: header %q not found", path, mtoHeaderMarker)
	}

	return out, nil
}

// mtoColumns locates the MTO columns once per file
type mtoColumns struct {
	width                          int
	name, traded, deliverable, pct int
}

func newMTOColumns(hdr []string) (mtoColumns, bool) {
	h := newHeader(hdr)
	c := mtoColumns{
		width:       len(hdr),
		name:        h.find(strings.ToUpper(mtoHeaderMarker)),
		traded:      h.find("QUANTITY TRADED"),
		deliverable: h.findContaining(hdr, "DELIVERABLE QUANTITY"),
		pct:         h.findContaining(hdr, "% OF DELIVERABLE"),
	}
	return c, c.name >= 0 && c.deliverable >= 0 && c.pct >= 0
}

// parse handles both "SYMBOL,EQ,..." (series column) and "SYMBOL EQ,..." layouts.
// An empty symbol with ok=true means the row belongs to a non-EQ series.
func (c mtoColumns) parse(row []string) (string, delivery, bool) {
	nameIdx := c.name
	name := cell(row, nameIdx)
	series := ""

	// 시리즈가 별도 컬럼으로 한 칸 밀린 경우
	shift := 0
	if len(row) == c.width+1 && isSeriesToken(cell(row, nameIdx+1)) {
		series = cell(row, nameIdx+1)
		shift = 1
	} else if i := strings.LastIndex(name, " "); i > 0 && isSeriesToken(name[i+1:]) {
		series = name[i+1:]
		name = strings.TrimSpace(name[:i])
	}

	if name == "" {
		return "", delivery{}, false
	}
	if series != "" && !strings.EqualFold(series, "EQ") {
		return "", delivery{}, true
	}

	shifted := func(i int) int {
		if i > nameIdx {
			return i + shift
		}
		return i
	}

	var d delivery
	var ok bool
	if d.Qty, ok = parseNumber(cell(row, shifted(c.deliverable))); !ok {
		return "", delivery{}, false
	}
	if d.Pct, ok = parseNumber(cell(row, shifted(c.pct))); !ok {
		// 일부 파일은 비율 없이 수량만 제공
		traded, tok := parseNumber(cell(row, shifted(c.traded)))
		if !tok || traded <= 0 {
			return "", delivery{}, false
		}
		d.Pct = d.Qty / traded * 100
	}

	return strings.ToUpper(name), d, true
}

func isSeriesToken(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func splitTrim(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
