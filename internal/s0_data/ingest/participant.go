package ingest

import (
	"fmt"
	"strings"

	"github.com/wonny/smartflow/internal/contracts"
)

// parseParticipantOI reads the participant-wise open interest report.
// The first line is a title; the header row starts with "Client Type".
func parseParticipantOI(path string) (*parsedFile, error) {
	date, ok := dateFromFilename(path)
	if !ok {
		return nil, fmt.Errorf("participant oi %s: no date in file name", path)
	}

	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}

	hdrIdx := -1
	for i, row := range rows {
		if strings.Contains(normalizeColumn(cell(row, 0)), "CLIENT TYPE") {
			hdrIdx = i
			break
		}
	}
	if hdrIdx < 0 {
		return nil, fmt.Errorf("participant oi %s: header not found", path)
	}

	hdr := rows[hdrIdx]
	h := newHeader(hdr)
	longCols := []int{h.find("TOTAL LONG CONTRACTS")}
	shortCols := []int{h.find("TOTAL SHORT CONTRACTS")}
	if longCols[0] < 0 || shortCols[0] < 0 {
		// 합계 컬럼이 없으면 LONG/SHORT 컬럼 합산
		longCols, shortCols = nil, nil
		for i, col := range hdr {
			key := normalizeColumn(col)
			switch {
			case strings.Contains(key, "LONG"):
				longCols = append(longCols, i)
			case strings.Contains(key, "SHORT"):
				shortCols = append(shortCols, i)
			}
		}
	}
	if len(longCols) == 0 || len(shortCols) == 0 {
		return nil, fmt.Errorf("participant oi %s: no long/short columns", path)
	}

	out := newParsedFile(contracts.SourceParticipant, path)
	day := out.day(date)
	for _, row := range rows[hdrIdx+1:] {
		if isBlank(row) {
			continue
		}
		long, longOK := sumColumns(row, longCols)
		short, shortOK := sumColumns(row, shortCols)

		var longField, shortField *contracts.Field
		switch strings.ToUpper(cell(row, 0)) {
		case "CLIENT":
			longField, shortField = &day.OI.ClientLong, &day.OI.ClientShort
		case "DII":
			longField, shortField = &day.OI.DIILong, &day.OI.DIIShort
		case "FII":
			longField, shortField = &day.OI.FIILong, &day.OI.FIIShort
		case "PRO":
			longField, shortField = &day.OI.ProLong, &day.OI.ProShort
		default:
			continue
		}

		day.Expected++
		if !longOK || !shortOK {
			day.Skipped++
			continue
		}
		*longField = contracts.Present(long)
		*shortField = contracts.Present(short)
	}

	return out, nil
}

func sumColumns(row []string, cols []int) (float64, bool) {
	total := 0.0
	for _, c := range cols {
		v, ok := parseNumber(cell(row, c))
		if !ok {
			return 0, false
		}
		total += v
	}
	return total, true
}
