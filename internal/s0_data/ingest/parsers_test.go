package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/smartflow/internal/contracts"
)

func TestDateFromFilename(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
		ok   bool
	}{
		{"yyyymmdd", "BhavCopy_NSE_CM_0_0_0_20250102_F_0000.csv", "2025-01-02", true},
		{"ddmmyyyy", "MTO_02012025.DAT", "2025-01-02", true},
		{"participant", "fao_participant_oi_15012025.csv", "2025-01-15", true},
		{"none", "bhav.csv", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dateFromFilename(tt.file)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, contracts.DateKey(got))
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,50,000", 150000, true},
		{" -12.5 ", -12.5, true},
		{"-", 0, false},
		{"", 0, false},
		{"n/a", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseBhavcopy_LegacyLayout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "bhav", "cm02JAN2025bhav.csv",
		"SYMBOL,SERIES,OPEN,HIGH,LOW,CLOSE,LAST,PREVCLOSE,TOTTRDQTY,TOTTRDVAL,TIMESTAMP,TOTALTRADES\n"+
			"TCS,EQ,4000,4050,3990,,4041,3980,100000,1,02-JAN-2025,5000\n"+
			"TCS,N1,1,1,1,1,1,1,1,1,02-JAN-2025,1\n")

	p, err := parseBhavcopy(SourceDir(root, contracts.SourceBhav) + "/cm02JAN2025bhav.csv")
	require.NoError(t, err)
	require.Contains(t, p.Days, "2025-01-02")

	day := p.Days["2025-01-02"]
	require.Len(t, day.Bars, 1)
	assert.Equal(t, 4041.0, day.Bars[0].Close, "falls back to LAST")
	assert.Equal(t, 5000.0, day.Bars[0].Trades)
}

func TestParseDelivery_SuffixSeries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "delivery", "MTO_03012025.DAT",
		"Record Type,Sr No,Name of Security,Quantity Traded,Deliverable Quantity,% of Deliverable Quantity to Traded Quantity\n"+
			"20,1,RELIANCE EQ,1000,450,\n"+
			"20,2,RELIANCE BL,10,10,100.00\n"+
			"20,3,HDFC EQ,bad,1,1\n"+
			"20,4,INFY EQ,x,y,z\n")

	p, err := parseDelivery(SourceDir(root, contracts.SourceDelivery) + "/MTO_03012025.DAT")
	require.NoError(t, err)

	day := p.Days["2025-01-03"]
	require.NotNil(t, day)
	require.Contains(t, day.Delivery, "RELIANCE")
	assert.InDelta(t, 45.0, day.Delivery["RELIANCE"].Pct, 1e-9)
	assert.Equal(t, 1.0, day.Delivery["HDFC"].Pct)
	assert.NotContains(t, day.Delivery, "INFY")
	assert.Equal(t, 3, day.Expected)
	assert.Equal(t, 1, day.Skipped)
}

func TestParseFIIDII_WideLayout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "fii_dii", "flows.csv",
		"Date,FII Gross Buy,FII Gross Sell,FII Net,DII Gross Buy,DII Gross Sell,DII Net\n"+
			"02-01-2025,1,1,-250.5,1,1,300\n"+
			"03-01-2025,1,1,-,1,1,120\n")

	p, err := parseFIIDII(SourceDir(root, contracts.SourceFIIDII) + "/flows.csv")
	require.NoError(t, err)
	require.Len(t, p.Days, 2)

	d1 := p.Days["2025-01-02"]
	assert.Equal(t, contracts.Present(-250.5), d1.FII)
	assert.Equal(t, contracts.Present(300), d1.DII)

	d2 := p.Days["2025-01-03"]
	assert.False(t, d2.FII.Known())
	assert.Equal(t, 1, d2.Skipped)
}

func TestParseParticipantOI(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "participant_wise", "fao_participant_oi_02012025.csv",
		"\"Participant wise Open Interest (no. of contracts) in Equity Derivatives as on Jan 02, 2025\"\n"+
			"Client Type,Future Index Long,Future Index Short,Option Index Call Long,Total Long Contracts,Total Short Contracts\n"+
			"Client,1,2,3,1000,900\n"+
			"DII,1,2,3,200,100\n"+
			"FII,1,2,3,500,650\n"+
			"Pro,1,2,3,300,350\n"+
			"TOTAL,4,8,12,2000,2000\n")

	p, err := parseParticipantOI(SourceDir(root, contracts.SourceParticipant) + "/fao_participant_oi_02012025.csv")
	require.NoError(t, err)

	day := p.Days["2025-01-02"]
	require.NotNil(t, day)
	assert.Equal(t, contracts.Present(500), day.OI.FIILong)
	assert.Equal(t, contracts.Present(650), day.OI.FIIShort)
	assert.Equal(t, contracts.Present(1000), day.OI.ClientLong)
	assert.Equal(t, 4, day.Expected)
}
