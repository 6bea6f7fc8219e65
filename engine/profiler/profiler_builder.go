package profiler

import (
	"io"
	"time"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often statistics are logged. Values <= 0 are ignored.
//
// Parameters:
//   - d: the reporting interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithTelemetry appends one CSV row per reporting window to w. The first row carries the header.
//
// Parameters:
//   - w: the CSV destination
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithTelemetry(w io.Writer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.telemetry = w
	}
}

// WithQuiet suppresses the periodic log line; telemetry is still written.
func WithQuiet(quiet bool) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.quiet = quiet
	}
}
