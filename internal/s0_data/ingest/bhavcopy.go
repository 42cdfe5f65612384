package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// parseBhavcopy reads the new (TckrSymb/TradDt/...) and legacy (SYMBOL/SERIES/...) layouts.
// Only EQ series rows are kept.
func parseBhavcopy(path string) (*parsedFile, error) {
	data, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("bhavcopy %s: empty file", path)
	}

	h := newHeader(rows[0])
	col := struct{ symbol, series, date, open, high, low, close, last, volume, trades int }{
		symbol: h.find("TCKRSYMB", "SYMBOL"),
		series: h.find("SCTYSRS", "SERIES"),
		date:   h.find("TRADDT", "TIMESTAMP", "DATE1", "DATE"),
		open:   h.find("OPNPRIC", "OPEN", "OPEN_PRICE"),
		high:   h.find("HGHPRIC", "HIGH", "HIGH_PRICE"),
		low:    h.find("LWPRIC", "LOW", "LOW_PRICE"),
		close:  h.find("CLSPRIC", "CLOSE", "CLOSE_PRICE"),
		last:   h.find("LASTPRIC", "LAST", "LAST_PRICE"),
		volume: h.find("TTLTRADGVOL", "TOTTRDQTY", "TTL_TRD_QNTY", "VOLUME"),
		trades: h.find("TTLNBOFTXSEXCTD", "TOTALTRADES", "NO_OF_TRADES"),
	}
	if col.symbol < 0 || col.open < 0 || col.high < 0 || col.low < 0 || col.volume < 0 || (col.close < 0 && col.last < 0) {
		return nil, fmt.Errorf("bhavcopy %s: missing required columns", path)
	}

	fileDate, hasFileDate := dateFromFilename(path)
	if col.date < 0 && !hasFileDate {
		return nil, fmt.Errorf("bhavcopy %s: no date column and no date in file name", path)
	}

	out := newParsedFile(contracts.SourceBhav, path)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if col.series >= 0 && !strings.EqualFold(cell(row, col.series), "EQ") {
			continue
		}

		date := fileDate
		if col.date >= 0 {
			d, ok := parseDate(cell(row, col.date))
			if !ok {
				if !hasFileDate {
					// 날짜를 알 수 없으면 어느 날짜에도 귀속 불가
					continue
				}
				out.skip(fileDate)
				continue
			}
			date = d
		}

		b, ok := parseBar(row, col.symbol, col.open, col.high, col.low, col.close, col.last, col.volume, col.trades)
		if !ok {
			out.skip(date)
			continue
		}

		d := out.day(date)
		d.Expected++
		d.Bars = append(d.Bars, b)
	}

	if len(out.Days) == 0 {
		return nil, fmt.Errorf("bhavcopy %s: no dated EQ rows", path)
	}
	return out, nil
}

func parseBar(row []string, symbol, open, high, low, close, last, volume, trades int) (bar, bool) {
	b := bar{Symbol: strings.ToUpper(cell(row, symbol))}
	if b.Symbol == "" {
		return b, false
	}

	var ok bool
	if b.Open, ok = parseNumber(cell(row, open)); !ok {
		return b, false
	}
	if b.High, ok = parseNumber(cell(row, high)); !ok {
		return b, false
	}
	if b.Low, ok = parseNumber(cell(row, low)); !ok {
		return b, false
	}
	if b.Close, ok = parseNumber(cell(row, close)); !ok {
		// CLOSE 가 없으면 LAST 로 대체
		if b.Close, ok = parseNumber(cell(row, last)); !ok {
			return b, false
		}
	}
	if b.Volume, ok = parseNumber(cell(row, volume)); !ok {
		return b, false
	}
	b.Trades, _ = parseNumber(cell(row, trades))

	return b, true
}

// toRecord builds the price part of a DailyRecord; companions start absent
func (b bar) toRecord(date time.Time) contracts.DailyRecord {
	return contracts.DailyRecord{
		Symbol: b.Symbol,
		Date:   date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
		Trades: b.Trades,
	}
}
