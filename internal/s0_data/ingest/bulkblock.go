package ingest

import (
	"fmt"
	"strings"

	"github.com/wonny/smartflow/internal/contracts"
)

// parseBulkBlock reads a bulk or block deal disclosure.
// Presence of a (date, symbol) row is the event; quantities are summed.
func parseBulkBlock(path string) (*parsedFile, error) {
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("bulk/block %s: empty file", path)
	}

	h := newHeader(rows[0])
	symCol := h.find("SYMBOL", "TCKRSYMB")
	if symCol < 0 {
		return nil, fmt.Errorf("bulk/block %s: no SYMBOL column", path)
	}
	dateCol := h.find("DATE", "DEAL DATE", "TRADE DATE")
	qtyCol := h.findContaining(rows[0], "QUANTITY")
	fileDate, hasFileDate := dateFromFilename(path)

	out := newParsedFile(contracts.SourceBulkBlock, path)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		date, ok := fileDate, hasFileDate
		if dateCol >= 0 {
			if d, dok := parseDate(cell(row, dateCol)); dok {
				date, ok = d, true
			}
		}
		if !ok {
			continue
		}

		symbol := strings.ToUpper(cell(row, symCol))
		if symbol == "" {
			out.skip(date)
			continue
		}

		d := out.day(date)
		d.Expected++
		qty, _ := parseNumber(cell(row, qtyCol))
		d.Deals[symbol] += qty
	}

	if len(out.Days) == 0 && len(rows) > 1 {
		return nil, fmt.Errorf("bulk/block %s: no dated rows", path)
	}
	return out, nil
}
