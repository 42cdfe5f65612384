package s2_features

// Feature names. The order of Names is the column order of every vector.
const (
	Returns1D       = "returns_1d"
	Returns5D       = "returns_5d"
	Returns20D      = "returns_20d"
	LogVolume       = "log_volume"
	VolumeMA5Ratio  = "volume_ma5_ratio"
	VolumeMA20Ratio = "volume_ma20_ratio"
	HighLowRange    = "high_low_range"
	VWAPDeviation   = "vwap_deviation"
	OBVNorm         = "obv_norm"
	NR7Flag         = "nr7_flag"
	ATRNorm         = "atr_norm"
	BBWidthNorm     = "bb_width_norm"
	SMA20Ratio      = "sma20_ratio"
	SMA50Ratio      = "sma50_ratio"
	SMA5To20Ratio   = "sma5_20_ratio"
	Volatility20D   = "volatility_20d"
	RSI14           = "rsi_14"

	DeliveryPct        = "delivery_pct"
	DeliveryZScore20D  = "delivery_zscore_20d"
	DeliveryVsMA20     = "delivery_vs_ma20"
	DeliveryTrend5D    = "delivery_trend_5d"
	DeliveryConfidence = "delivery_confidence"
	FIINet             = "fii_net"
	FIINetMA5          = "fii_net_ma5"
	FIINetMA20         = "fii_net_ma20"
	DIINet             = "dii_net"
	DIINetMA5          = "dii_net_ma5"
	DIINetMA20         = "dii_net_ma20"
	FIIDIIDivergence   = "fii_dii_divergence"
	InstFlowStrength   = "institutional_flow_strength"
	FlowConfidence     = "flow_confidence"
	OILongShortFII     = "oi_long_short_ratio_fii"
	OILongShortClient  = "oi_long_short_ratio_client"
	OIChange5D         = "oi_change_5d"
	BulkBlockFlag      = "bulk_block_flag"
	BulkBlockRecency   = "bulk_block_recency"
	AvgVolume20D       = "avg_volume_20d"
	SpreadProxy        = "spread_proxy"
)

var technicalNames = []string{
	Returns1D, Returns5D, Returns20D,
	LogVolume, VolumeMA5Ratio, VolumeMA20Ratio,
	HighLowRange, VWAPDeviation, OBVNorm, NR7Flag,
	ATRNorm, BBWidthNorm,
	SMA20Ratio, SMA50Ratio, SMA5To20Ratio,
	Volatility20D, RSI14,
}

var smartMoneyNames = []string{
	DeliveryPct, DeliveryZScore20D, DeliveryVsMA20, DeliveryTrend5D, DeliveryConfidence,
	FIINet, FIINetMA5, FIINetMA20,
	DIINet, DIINetMA5, DIINetMA20,
	FIIDIIDivergence, InstFlowStrength, FlowConfidence,
	OILongShortFII, OILongShortClient, OIChange5D,
	BulkBlockFlag, BulkBlockRecency,
	AvgVolume20D, SpreadProxy,
}

// Names returns the full column order
func Names() []string {
	out := make([]string, 0, len(technicalNames)+len(smartMoneyNames))
	out = append(out, technicalNames...)
	return append(out, smartMoneyNames...)
}

var nameIndex = func() map[string]int {
	m := make(map[string]int)
	for i, n := range Names() {
		m[n] = i
	}
	return m
}()
