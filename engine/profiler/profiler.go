package profiler

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"
)

// WindowStats summarizes one reporting window. It is the row type of the telemetry CSV.
type WindowStats struct {
	Frame       uint64  `csv:"frame"`
	Frames      int     `csv:"frames"`
	FPS         float64 `csv:"fps"`
	FrameMeanMs float64 `csv:"frame_mean_ms"`
	FrameStdMs  float64 `csv:"frame_std_ms"`
	Stalls      int     `csv:"stalls"`
	StallMeanMs float64 `csv:"stall_mean_ms"`
	StallStdMs  float64 `csv:"stall_std_ms"`
	HeapMB      float64 `csv:"heap_mb"`
	GCCount     uint32  `csv:"gc_count"`
}

// Profiler tracks frame time, fence stalls and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval and optionally appends them to a CSV writer.
type Profiler struct {
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	quiet          bool

	frameCount uint64
	frameTimes []float64
	stallTimes []float64

	telemetry     io.Writer
	headerWritten bool
	last          WindowStats
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options for interval, telemetry output and log suppression
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// RecordStall records the time the render loop spent blocked on a frame resource's fence.
//
// Parameters:
//   - d: the wait duration
func (p *Profiler) RecordStall(d time.Duration) {
	p.stallTimes = append(p.stallTimes, float64(d)/float64(time.Millisecond))
}

// Tick should be called once per frame with that frame's CPU time.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, mean/stddev of frame and stall times, heap usage, allocation rate, GC count.
//
// Parameters:
//   - frameTime: the duration of the frame just completed
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
//   - error: an error writing the telemetry row, if any
func (p *Profiler) Tick(frameTime time.Duration) (bool, error) {
	p.frameCount++
	p.frameTimes = append(p.frameTimes, float64(frameTime)/float64(time.Millisecond))

	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false, nil
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	ws := WindowStats{
		Frame:   p.frameCount,
		Frames:  len(p.frameTimes),
		FPS:     float64(len(p.frameTimes)) / elapsed.Seconds(),
		Stalls:  len(p.stallTimes),
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		GCCount: p.memStats.NumGC,
	}
	ws.FrameMeanMs, ws.FrameStdMs = meanStdDev(p.frameTimes)
	ws.StallMeanMs, ws.StallStdMs = meanStdDev(p.stallTimes)
	p.last = ws

	if !p.quiet {
		log.Printf("[Profiler] FPS: %.2f | Frame: %.3f ms (σ %.3f) | Stalls: %d (%.3f ms, σ %.3f) | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d",
			ws.FPS, ws.FrameMeanMs, ws.FrameStdMs, ws.Stalls, ws.StallMeanMs, ws.StallStdMs, ws.HeapMB, allocRateMB, ws.GCCount)
	}

	p.frameTimes = p.frameTimes[:0]
	p.stallTimes = p.stallTimes[:0]
	p.lastTime = currentTime
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc

	return true, p.writeTelemetry(ws)
}

// Last returns the statistics of the most recently completed window.
func (p *Profiler) Last() WindowStats {
	return p.last
}

func (p *Profiler) writeTelemetry(ws WindowStats) error {
	if p.telemetry == nil {
		return nil
	}
	records := []WindowStats{ws}
	if !p.headerWritten {
		if err := gocsv.Marshal(records, p.telemetry); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		p.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, p.telemetry); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

func meanStdDev(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
