package domain

import "time"

// IndicatorKind is the stored type of an indicator point.
type IndicatorKind string

const (
	IndicatorSMA     IndicatorKind = "SMA"
	IndicatorRSI     IndicatorKind = "RSI"
	IndicatorBBUpper IndicatorKind = "BB_UPPER"
	IndicatorBBLower IndicatorKind = "BB_LOWER"
)

// IndicatorKinds lists every kind the engine produces, in write order.
var IndicatorKinds = []IndicatorKind{IndicatorSMA, IndicatorRSI, IndicatorBBUpper, IndicatorBBLower}

// IndicatorPoint is one derived value, stamped with the close time of the
// kline it was computed at.
type IndicatorPoint struct {
	Partition Partition
	Kind      IndicatorKind
	Timestamp time.Time
	Value     float64
}

// IndicatorKey is the natural key of an indicator point.
type IndicatorKey struct {
	Partition   Partition
	Kind        IndicatorKind
	TimestampMs int64
}

// Key returns the natural key of the point.
func (p IndicatorPoint) Key() IndicatorKey {
	return IndicatorKey{Partition: p.Partition, Kind: p.Kind, TimestampMs: p.Timestamp.UnixMilli()}
}
