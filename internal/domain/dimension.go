package domain

// Dimension names one of the lookup tables that give symbols and intervals
// their surrogate ids.
type Dimension string

const (
	DimensionInstrument  Dimension = "instrument"
	DimensionGranularity Dimension = "granularity"
)

// Pair is one (symbol, interval) unit of ingestion work.
type Pair struct {
	Symbol   string
	Interval string
}

// String returns "SYMBOL-interval".
func (p Pair) String() string {
	return p.Symbol + "-" + p.Interval
}

// Partition identifies an independently ordered kline series.
type Partition struct {
	InstrumentID  int64
	GranularityID int64
}
