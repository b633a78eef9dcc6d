package main

import (
	"sync"
	"time"
)

// PipelineStats tracks per-stage throughput and latency for the capture,
// process and display stages.
type PipelineStats struct {
	mu             sync.Mutex
	captureCount   int64
	processCount   int64
	displayCount   int64
	lastReportTime time.Time
	lastFPSUpdate  time.Time
	fpsCount       int64
	lastFPS        float64

	// Timing measurements
	readTimeTotal    time.Duration
	inferTimeTotal   time.Duration
	segmentTimeTotal time.Duration
	renderTimeTotal  time.Duration
	readCount        int64
	inferCount       int64
	segmentCount     int64
	renderCount      int64
}

// NewPipelineStats creates a new pipeline statistics tracker.
func NewPipelineStats() *PipelineStats {
	now := time.Now()
	return &PipelineStats{
		lastReportTime: now,
		lastFPSUpdate:  now,
	}
}

// GetStats returns current statistics and resets counters.
func (ps *PipelineStats) GetStats() (captureFPS, processFPS, displayFPS float64, avgRead, avgInfer, avgSegment, avgRender time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	timeWindow := now.Sub(ps.lastReportTime).Seconds()
	if timeWindow <= 0 {
		timeWindow = 1.0 // Prevent division by zero
	}

	captureFPS = float64(ps.captureCount) / timeWindow
	processFPS = float64(ps.processCount) / timeWindow
	displayFPS = float64(ps.displayCount) / timeWindow

	if ps.readCount > 0 {
		avgRead = ps.readTimeTotal / time.Duration(ps.readCount)
	}
	if ps.inferCount > 0 {
		avgInfer = ps.inferTimeTotal / time.Duration(ps.inferCount)
	}
	if ps.segmentCount > 0 {
		avgSegment = ps.segmentTimeTotal / time.Duration(ps.segmentCount)
	}
	if ps.renderCount > 0 {
		avgRender = ps.renderTimeTotal / time.Duration(ps.renderCount)
	}

	// Reset counters but keep timestamps
	ps.captureCount = 0
	ps.processCount = 0
	ps.displayCount = 0
	ps.readTimeTotal = 0
	ps.inferTimeTotal = 0
	ps.segmentTimeTotal = 0
	ps.renderTimeTotal = 0
	ps.readCount = 0
	ps.inferCount = 0
	ps.segmentCount = 0
	ps.renderCount = 0
	ps.lastReportTime = now

	return
}

// UpdateCapture updates capture statistics.
func (ps *PipelineStats) UpdateCapture(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.captureCount++
	ps.readTimeTotal += duration
	ps.readCount++
}

// UpdateInference updates inference statistics.
func (ps *PipelineStats) UpdateInference(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.inferTimeTotal += duration
	ps.inferCount++
}

// UpdateSegment updates segmentation statistics.
func (ps *PipelineStats) UpdateSegment(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.segmentTimeTotal += duration
	ps.segmentCount++
}

// UpdateRender updates render statistics.
func (ps *PipelineStats) UpdateRender(duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.displayCount++
	ps.renderTimeTotal += duration
	ps.renderCount++
}

// UpdateProcess updates processing statistics.
func (ps *PipelineStats) UpdateProcess() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.processCount++
}

// UpdateFPS updates the FPS counter over a one-second window and returns
// the most recent value.
func (ps *PipelineStats) UpdateFPS() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	ps.fpsCount++

	if elapsed := now.Sub(ps.lastFPSUpdate); elapsed >= time.Second {
		ps.lastFPS = float64(ps.fpsCount) / elapsed.Seconds()
		ps.fpsCount = 0
		ps.lastFPSUpdate = now
	}
	return ps.lastFPS
}

// LastFPS returns the most recently computed display FPS.
func (ps *PipelineStats) LastFPS() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastFPS
}

// LastInferAverage reports the running average inference latency for the
// current report window.
func (ps *PipelineStats) LastInferAverage() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.inferCount == 0 {
		return 0
	}
	return ps.inferTimeTotal / time.Duration(ps.inferCount)
}
