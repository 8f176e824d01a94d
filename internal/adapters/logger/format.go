package logger

import (
	"fmt"

	"cryptoDataPipeline/internal/ports"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns the logger for the given format. The returned flush function
// must be called before the process exits.
func New(format string, level LogLevel) (ports.Logger, func(), error) {
	switch format {
	case FormatText, "":
		return NewStdLogger(level), func() {}, nil
	case FormatJSON:
		z, err := NewZapLogger(level)
		if err != nil {
			return nil, nil, err
		}
		return z, func() { _ = z.Sync() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}
}
