package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
)

const bhavHeader = "TradDt,TckrSymb,SctySrs,OpnPric,HghPric,LwPric,ClsPric,LastPric,TtlTradgVol,TtlNbOfTxsExctd"

func writeFile(t *testing.T, root, dir, name, content string) {
	t.Helper()
	full := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(full, name), []byte(content), 0o644))
}

func bhav(date string, rows ...string) string {
	var b strings.Builder
	b.WriteString(bhavHeader + "\n")
	for _, r := range rows {
		b.WriteString(date + "," + r + "\n")
	}
	return b.String()
}

func mto(rows ...string) string {
	var b strings.Builder
	b.WriteString("Security Wise Delivery Position - Compulsory Rolling Settlement\n")
	b.WriteString("10,MTO,02012025,000000000,0000000\n")
	b.WriteString("Record Type,Sr No,Name of Security,Quantity Traded,Deliverable Quantity(gross across client level),% of Deliverable Quantity to Traded Quantity\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	return b.String()
}

func newTestAdapter(root string) *Adapter {
	return NewAdapter(root, pipelineconfig.Default().Ingest, 4, metrics.New(), logger.Nop())
}

func TestIngest_MergesCompanionSources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "BhavCopy_NSE_CM_0_0_0_20250102_F_0000.csv", bhav("2025-01-02",
		"TCS,EQ,4000,4050,3990,4040,4041,100000,5000",
		"INFY,EQ,1900,1920,1890,1910,1911,200000,8000",
		"INFY,BE,1900,1920,1890,1910,1911,10,1",
	))
	writeFile(t, root, "delivery", "MTO_02012025.DAT", mto(
		"20,1,TCS,EQ,100000,60000,60.00",
		"20,2,INFY,BE,10,5,50.00",
	))
	writeFile(t, root, "fii_dii", "fii_dii_20250102.csv",
		"CATEGORY,DATE,BUY VALUE,SELL VALUE,NET VALUE\nFII/FPI,02-Jan-2025,10000,11000,-1000\nDII,02-Jan-2025,9000,8000,1000\n")
	writeFile(t, root, "bulk_block", "bulk_20250102.csv",
		"Date,Symbol,Client Name,Buy/Sell,Quantity Traded,Trade Price\n02-Jan-2025,TCS,ABC FUND,BUY,\"1,50,000\",4020\n")

	res, err := newTestAdapter(root).Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Batches, 1)

	batch := res.Batches[0]
	assert.Equal(t, "2025-01-02", contracts.DateKey(batch.Date))
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "INFY", batch.Records[0].Symbol)
	assert.Equal(t, "TCS", batch.Records[1].Symbol)

	infy, tcs := batch.Records[0], batch.Records[1]
	assert.False(t, infy.DeliveryPct.Known(), "no EQ delivery row for INFY")
	assert.Equal(t, contracts.Present(60), tcs.DeliveryPct)
	assert.Equal(t, contracts.Present(60000), tcs.DeliveryQty)

	assert.Equal(t, contracts.Present(-1000), tcs.FIINet)
	assert.Equal(t, contracts.Present(1000), infy.DIINet)

	assert.True(t, tcs.BulkBlock)
	assert.Equal(t, 150000.0, tcs.BulkBlockQty)
	assert.False(t, infy.BulkBlock)

	assert.True(t, batch.Present[contracts.SourceDelivery])
	assert.False(t, batch.Present[contracts.SourceParticipant])
	assert.False(t, infy.OI.FIILong.Known())
}

func TestIngest_MissingBulkFileMeansNoDeals(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "bhav_20250102.csv", bhav("2025-01-02",
		"TCS,EQ,4000,4050,3990,4040,4041,100000,5000",
	))

	res, err := newTestAdapter(root).Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Batches, 1)

	rec := res.Batches[0].Records[0]
	assert.False(t, rec.BulkBlock)
	assert.False(t, rec.FIINet.Known())
	assert.False(t, rec.DeliveryPct.Known())
}

func TestIngest_DuplicateRowsAreReported(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "bhav_20250102.csv", bhav("2025-01-02",
		"TCS,EQ,4000,4050,3990,4040,4041,100000,5000",
		"TCS,EQ,4001,4051,3991,4041,4042,100001,5001",
	))

	res, err := newTestAdapter(root).Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Batches, 1)
	assert.Len(t, res.Batches[0].Records, 1)
	assert.Equal(t, []string{"TCS"}, res.Batches[0].Duplicates)
}

func TestIngest_MalformedToleranceExcludesDate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "bhav_20250102.csv", bhav("2025-01-02",
		"TCS,EQ,4000,4050,3990,4040,4041,100000,5000",
		"INFY,EQ,abc,1920,1890,1910,1911,200000,8000",
	))
	writeFile(t, root, "bhav", "bhav_20250103.csv", bhav("2025-01-03",
		"TCS,EQ,4040,4060,4000,4050,4051,90000,4000",
	))

	res, err := newTestAdapter(root).Ingest(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Batches, 1)
	assert.Equal(t, "2025-01-03", contracts.DateKey(res.Batches[0].Date))

	require.Contains(t, res.Failed, "2025-01-02")
	assert.True(t, errors.Is(res.Failed["2025-01-02"], contracts.ErrIngestion))

	var ie *contracts.IngestionError
	require.ErrorAs(t, res.Failed["2025-01-02"], &ie)
	assert.Equal(t, 1, ie.Skipped)
	assert.Equal(t, 2, ie.Expected)
	assert.Equal(t, []string{"2025-01-02"}, res.FailedDates())
}

func TestIngest_BatchesAscending(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"20250106", "20250102", "20250103"} {
		iso := d[:4] + "-" + d[4:6] + "-" + d[6:]
		writeFile(t, root, "bhav", "bhav_"+d+".csv", bhav(iso, "TCS,EQ,1,1,1,1,1,10,1"))
	}

	res, err := newTestAdapter(root).Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Batches, 3)
	for i := 1; i < len(res.Batches); i++ {
		assert.True(t, res.Batches[i].Date.After(res.Batches[i-1].Date))
	}
}

func TestIngest_NoBhavcopyIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "delivery", "MTO_02012025.DAT", mto("20,1,TCS,EQ,100,60,60.00"))

	_, err := newTestAdapter(root).Ingest(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrFatalRun))
}

func TestCheckAvailability(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "bhav_20250102.csv", bhav("2025-01-02", "TCS,EQ,1,1,1,1,1,10,1"))
	writeFile(t, root, "bhav", "bhav_20250110.csv", bhav("2025-01-10", "TCS,EQ,1,1,1,1,1,10,1"))
	writeFile(t, root, "bhav", "notes.txt", "ignored")

	av, err := newTestAdapter(root).CheckAvailability()
	require.NoError(t, err)
	require.Len(t, av, len(contracts.Sources))

	assert.Equal(t, contracts.SourceBhav, av[0].Source)
	assert.Equal(t, 2, av[0].Files)
	assert.Equal(t, "2025-01-02", contracts.DateKey(av[0].First))
	assert.Equal(t, "2025-01-10", contracts.DateKey(av[0].Last))
	assert.Equal(t, 0, av[1].Files)
}
