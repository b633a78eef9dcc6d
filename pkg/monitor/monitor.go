// Package monitor tracks runtime health of the capture and inference
// pipeline: GPU memory pressure, capture stalls, and a ring of recent
// events kept for crash context.
package monitor

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// debugMsgFunc is set by the main package for unified logging.
var debugMsgFunc func(string, string)

// SetDebugFunction allows the main package to provide its debug logger.
func SetDebugFunction(fn func(string, string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// EventBuffer stores recent pipeline events for crash dump analysis.
type EventBuffer struct {
	lines    []string
	maxLines int
	index    int
	full     bool
	mutex    sync.RWMutex
}

// NewEventBuffer creates a circular buffer for storing recent events.
func NewEventBuffer(maxLines int) *EventBuffer {
	return &EventBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
	}
}

// Add stores a new event line in the circular buffer.
func (eb *EventBuffer) Add(line string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	eb.lines[eb.index] = fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05.000"), line)
	eb.index = (eb.index + 1) % eb.maxLines
	if eb.index == 0 {
		eb.full = true
	}
}

// GetRecent returns the most recent events (oldest first).
func (eb *EventBuffer) GetRecent() []string {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if !eb.full && eb.index == 0 {
		return []string{}
	}

	var result []string
	if eb.full {
		for i := 0; i < eb.maxLines; i++ {
			idx := (eb.index + i) % eb.maxLines
			result = append(result, eb.lines[idx])
		}
	} else {
		result = append(result, eb.lines[:eb.index]...)
	}
	return result
}

// GPUMemoryMonitor watches GPU memory usage and temperature via nvidia-smi.
type GPUMemoryMonitor struct {
	enabled            bool
	lastMemoryCheck    time.Time
	checkInterval      time.Duration
	criticalThreshold  float64 // usage percentage that triggers warnings
	emergencyThreshold float64 // usage percentage that triggers forced GC
}

// NewGPUMemoryMonitor creates a new GPU memory monitor.
func NewGPUMemoryMonitor(enabled bool) *GPUMemoryMonitor {
	return &GPUMemoryMonitor{
		enabled:            enabled,
		checkInterval:      30 * time.Second,
		criticalThreshold:  85.0,
		emergencyThreshold: 95.0,
	}
}

// CheckGPUMemory polls GPU memory usage and takes preventive action. It
// rate-limits itself to one nvidia-smi invocation per check interval.
func (gmm *GPUMemoryMonitor) CheckGPUMemory() error {
	if !gmm.enabled {
		return nil
	}

	if time.Since(gmm.lastMemoryCheck) < gmm.checkInterval {
		return nil
	}
	gmm.lastMemoryCheck = time.Now()

	cmd := exec.Command("nvidia-smi", "--query-gpu=memory.used,memory.total,temperature.gpu", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		debugMsg("GPU_MONITOR", fmt.Sprintf("Failed to query GPU memory: %v", err))
		return err
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return errors.New("no GPU memory data returned")
	}

	fields := strings.Split(lines[0], ", ")
	if len(fields) < 3 {
		return errors.New("invalid GPU memory data format")
	}

	memoryUsed, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse memory used")
	}
	memoryTotal, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse memory total")
	}
	temperature, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return errors.Wrap(err, "failed to parse temperature")
	}

	memoryPercent := (memoryUsed / memoryTotal) * 100

	debugMsg("GPU_MONITOR", fmt.Sprintf("GPU Memory: %.0f/%.0fMB (%.1f%%), Temp: %.0fC",
		memoryUsed, memoryTotal, memoryPercent, temperature))

	if memoryPercent >= gmm.emergencyThreshold {
		debugMsg("GPU_EMERGENCY", fmt.Sprintf("CRITICAL: GPU memory at %.1f%% - triggering emergency GC", memoryPercent))
		runtime.GC()
		runtime.GC()
	} else if memoryPercent >= gmm.criticalThreshold {
		debugMsg("GPU_WARNING", fmt.Sprintf("WARNING: GPU memory at %.1f%% - monitoring closely", memoryPercent))
		runtime.GC()
	}

	if temperature >= 85.0 {
		debugMsg("GPU_TEMP_WARNING", fmt.Sprintf("WARNING: GPU temperature at %.0fC", temperature))
	}

	return nil
}

// CaptureWatchdog detects a stalled camera: a capture device that stops
// delivering frames without ever failing a read.
type CaptureWatchdog struct {
	mu        sync.Mutex
	lastFrame time.Time
	timeout   time.Duration
}

// NewCaptureWatchdog creates a watchdog with the given stall timeout.
func NewCaptureWatchdog(timeout time.Duration) *CaptureWatchdog {
	return &CaptureWatchdog{
		lastFrame: time.Now(),
		timeout:   timeout,
	}
}

// FrameArrived records a successful frame read.
func (cw *CaptureWatchdog) FrameArrived() {
	cw.mu.Lock()
	cw.lastFrame = time.Now()
	cw.mu.Unlock()
}

// Check returns an error once no frame has arrived within the timeout.
func (cw *CaptureWatchdog) Check() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	elapsed := time.Since(cw.lastFrame)
	if elapsed > cw.timeout {
		return errors.Errorf("capture stalled: no frame for %v (timeout %v)", elapsed.Round(time.Millisecond), cw.timeout)
	}
	return nil
}
