package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
)

type parser func(path string) (*parsedFile, error)

var parsers = map[string]parser{
	contracts.SourceBhav:        parseBhavcopy,
	contracts.SourceDelivery:    parseDelivery,
	contracts.SourceFIIDII:      parseFIIDII,
	contracts.SourceParticipant: parseParticipantOI,
	contracts.SourceBulkBlock:   parseBulkBlock,
}

// Adapter turns the raw/ directory into per-date batches
// ⭐ SSOT: raw 포맷을 읽는 유일한 컴포넌트
type Adapter struct {
	root    string
	config  pipelineconfig.Ingest
	workers int
	metrics *metrics.Recorder
	logger  *logger.Logger
}

// Result is the outcome of one ingestion pass
type Result struct {
	Batches    []*contracts.DateBatch // 날짜 오름차순
	Failed     map[string]error       // date → IngestionError
	Unreadable map[string]error       // file → error (날짜 귀속 불가)
}

// FailedDates returns ingestion-failed dates in order
func (r *Result) FailedDates() []string {
	out := make([]string, 0, len(r.Failed))
	for d := range r.Failed {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// NewAdapter creates a new ingestion adapter
func NewAdapter(root string, config pipelineconfig.Ingest, workers int, rec *metrics.Recorder, log *logger.Logger) *Adapter {
	if workers < 1 {
		workers = 1
	}
	return &Adapter{
		root:    root,
		config:  config,
		workers: workers,
		metrics: rec,
		logger:  log.Component("ingest"),
	}
}

type fileJob struct {
	source string
	path   string
}

// Ingest parses every raw file and groups them into date batches.
// Only a raw set with no readable bhavcopy at all is fatal.
func (a *Adapter) Ingest(ctx context.Context) (*Result, error) {
	jobs := make([]fileJob, 0)
	for _, source := range contracts.Sources {
		files, err := listFiles(a.root, source)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			jobs = append(jobs, fileJob{source: source, path: f})
		}
	}

	parsed := make([]*parsedFile, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parsed[i], errs[i] = parsers[job.source](job.path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Failed:     make(map[string]error),
		Unreadable: make(map[string]error),
	}

	// date → source → contributions in file order
	byDate := make(map[string]map[string][]*sourceDay)
	files := make(map[string][]string)
	readableBhav := 0

	for i, job := range jobs {
		if errs[i] != nil {
			a.logger.WithError(errs[i]).WithField("file", filepath.Base(job.path)).Warn("Raw file unreadable")
			if d, ok := dateFromFilename(job.path); ok {
				result.Failed[contracts.DateKey(d)] = fmt.Errorf("%w: %v", contracts.ErrIngestion, errs[i])
			} else {
				result.Unreadable[job.path] = errs[i]
			}
			continue
		}
		if job.source == contracts.SourceBhav {
			readableBhav++
		}

		p := parsed[i]
		for key, day := range p.Days {
			a.metrics.RecordIngest(job.source, day.Expected-day.Skipped, day.Skipped)
			if day.Expected > 0 && float64(day.Skipped) > a.config.MaxMalformedFraction*float64(day.Expected) {
				result.Failed[key] = &contracts.IngestionError{
					Date:     day.Date,
					File:     filepath.Base(job.path),
					Skipped:  day.Skipped,
					Expected: day.Expected,
				}
			}
			if byDate[key] == nil {
				byDate[key] = make(map[string][]*sourceDay)
			}
			byDate[key][job.source] = append(byDate[key][job.source], day)
			files[key] = append(files[key], filepath.Base(job.path))
		}
	}

	if readableBhav == 0 {
		return nil, contracts.Fatal("no readable bhavcopy under %s", SourceDir(a.root, contracts.SourceBhav))
	}

	keys := make([]string, 0, len(byDate))
	for key, sources := range byDate {
		if len(sources[contracts.SourceBhav]) == 0 {
			// 가격이 없는 날짜는 레코드를 만들 수 없음
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err, failed := result.Failed[key]; failed {
			a.metrics.RecordDateExcluded("ingestion")
			a.logger.WithError(err).WithField("date", key).Warn("Date excluded by ingestion tolerance")
			continue
		}
		batch := assemble(byDate[key])
		batch.Files = files[key]
		result.Batches = append(result.Batches, batch)
	}

	a.logger.WithFields(map[string]interface{}{
		"dates":      len(result.Batches),
		"failed":     len(result.Failed),
		"unreadable": len(result.Unreadable),
		"files":      len(jobs),
	}).Info("Ingestion completed")

	return result, nil
}

// assemble merges one date's contributions into DailyRecords
func assemble(sources map[string][]*sourceDay) *contracts.DateBatch {
	bhav := sources[contracts.SourceBhav]
	batch := &contracts.DateBatch{
		Date:    bhav[0].Date,
		Present: make(map[string]bool, len(contracts.Sources)),
		Skipped: make(map[string]int, len(contracts.Sources)),
	}
	for _, s := range contracts.Sources {
		batch.Present[s] = len(sources[s]) > 0
		for _, d := range sources[s] {
			batch.Skipped[s] += d.Skipped
		}
	}

	// 동일 날짜 delivery/OI/flow 는 먼저 읽힌 파일 우선
	deliveries := make(map[string]delivery)
	for _, d := range sources[contracts.SourceDelivery] {
		for sym, row := range d.Delivery {
			if _, ok := deliveries[sym]; !ok {
				deliveries[sym] = row
			}
		}
	}

	fii, dii := contracts.Absent(), contracts.Absent()
	for _, d := range sources[contracts.SourceFIIDII] {
		if !fii.Known() {
			fii = d.FII
		}
		if !dii.Known() {
			dii = d.DII
		}
	}

	var oi contracts.ParticipantOI
	for _, d := range sources[contracts.SourceParticipant] {
		dst, src := oi.Fields(), d.OI.Fields()
		for i := range dst {
			if !dst[i].Known() {
				*dst[i] = *src[i]
			}
		}
	}

	deals := make(map[string]float64)
	for _, d := range sources[contracts.SourceBulkBlock] {
		for sym, qty := range d.Deals {
			deals[sym] += qty
		}
	}

	seen := make(map[string]bool)
	for _, d := range bhav {
		for _, b := range d.Bars {
			if seen[b.Symbol] {
				batch.Duplicates = append(batch.Duplicates, b.Symbol)
				continue
			}
			seen[b.Symbol] = true

			rec := b.toRecord(batch.Date)
			if row, ok := deliveries[b.Symbol]; ok {
				rec.DeliveryQty = contracts.Present(row.Qty)
				rec.DeliveryPct = contracts.Present(row.Pct)
			}
			rec.FIINet = fii
			rec.DIINet = dii
			rec.OI = oi
			if qty, ok := deals[b.Symbol]; ok {
				rec.BulkBlock = true
				rec.BulkBlockQty = qty
			}
			batch.Records = append(batch.Records, rec)
		}
	}

	sort.Slice(batch.Records, func(i, j int) bool {
		return batch.Records[i].Symbol < batch.Records[j].Symbol
	})
	sort.Strings(batch.Duplicates)
	return batch
}

// Availability summarises the raw directory per source
type Availability struct {
	Source string
	Dir    string
	Files  int
	First  time.Time
	Last   time.Time
}

// CheckAvailability counts raw files per source without parsing them
func (a *Adapter) CheckAvailability() ([]Availability, error) {
	out := make([]Availability, 0, len(contracts.Sources))
	for _, source := range contracts.Sources {
		files, err := listFiles(a.root, source)
		if err != nil {
			return nil, err
		}
		av := Availability{Source: source, Dir: SourceDir(a.root, source), Files: len(files)}
		for _, f := range files {
			d, ok := dateFromFilename(f)
			if !ok {
				continue
			}
			if av.First.IsZero() || d.Before(av.First) {
				av.First = d
			}
			if d.After(av.Last) {
				av.Last = d
			}
		}
		out = append(out, av)
	}
	return out, nil
}
