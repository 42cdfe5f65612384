package ingest

import (
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

// bar is one bhavcopy equity row
type bar struct {
	Symbol                 string
	Open, High, Low, Close float64
	Volume, Trades         float64
}

// delivery is one MTO row
type delivery struct {
	Qty float64
	Pct float64
}

// sourceDay is what one file contributes to one date
type sourceDay struct {
	Date     time.Time
	Expected int // data rows considered
	Skipped  int // malformed rows among them

	Bars     []bar
	Delivery map[string]delivery
	FII, DII contracts.Field
	OI       contracts.ParticipantOI
	Deals    map[string]float64
}

// parsedFile is one raw file split by date
type parsedFile struct {
	Source string
	Path   string
	Days   map[string]*sourceDay
}

func newParsedFile(source, path string) *parsedFile {
	return &parsedFile{Source: source, Path: path, Days: make(map[string]*sourceDay)}
}

// day returns the bucket of a date, creating it on first use
func (p *parsedFile) day(date time.Time) *sourceDay {
	key := contracts.DateKey(date)
	d, ok := p.Days[key]
	if !ok {
		d = &sourceDay{
			Date:     date,
			Delivery: make(map[string]delivery),
			Deals:    make(map[string]float64),
		}
		p.Days[key] = d
	}
	return d
}

// skipped counts a malformed row against a date
func (p *parsedFile) skip(date time.Time) {
	d := p.day(date)
	d.Expected++
	d.Skipped++
}
