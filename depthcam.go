package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depthcam/depth"
	"depthcam/metrics"
	"depthcam/overlay"
	"depthcam/pkg/monitor"
	"depthcam/pkg/webmonitor"
	"depthcam/segment"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	perfReportInterval   = 15 * time.Second // Performance reporting interval
	watchdogPollInterval = time.Second      // Capture stall check interval
	frameChanDepth       = 4                // Maximum buffered frames between capture and process
	escKeyCode           = 27               // ESC terminates the live loop
	eventBufferSize      = 128              // Recent events kept for crash context

	windowInput   = "input"
	windowBlurred = "blurred"
	windowOutput  = "output"
)

var (
	// Command-line flags
	inputPath     = flag.String("input_path", "input", "Folder with input images (batch mode, used with -camera=-1)")
	outputPath    = flag.String("output_path", "output", "Folder for batch mode output images")
	modelWeights  = flag.String("model_weights", "", "Path to the trained model weights (empty: model type default)")
	modelTypeFlag = flag.String("model_type", "midas_v21_small", "Model type: dpt_large, dpt_hybrid, midas_v21_large or midas_v21_small")
	optimizeFlag  = flag.Bool("optimize", true, "Run the network in half precision when a CUDA device is available")
	noOptimize    = flag.Bool("no-optimize", false, "Disable half precision placement (overrides -optimize)")
	cameraID      = flag.Int("camera", 0, "Capture device ID for live mode (-1 selects batch mode)")
	maskThreshold = flag.Int("threshold", segment.DefaultThreshold, "Binary threshold for the depth mask (0-255)")
	statusOverlay = flag.Bool("status-overlay", false, "Show status information overlay (FPS, latency, device) in lower-left corner")
	debugMode     = flag.Bool("debug", false, "Enable debug logging")
	monitorAddr   = flag.String("monitor-addr", "", "HTTP monitor listen address (e.g. :8077; empty disables)")

	captureFailLimit = flag.Int("capture-fail-limit", 30, "Consecutive capture failures treated as fatal")
	captureTimeout   = flag.Duration("capture-timeout", 10*time.Second, "No frame within this window aborts the run")
)

// Config carries everything the pipeline stages need; there is no global
// mutable model or device state.
type Config struct {
	Spec          depth.ModelSpec
	Weights       string
	Optimize      bool
	Camera        int
	Threshold     int
	InputPath     string
	OutputPath    string
	StatusOverlay bool
	MonitorAddr   string

	CaptureFailLimit int
	CaptureTimeout   time.Duration
}

// FrameData is one captured frame moving through the pipeline. The frame
// Mat is owned by whoever holds the FrameData and must be closed exactly
// once.
type FrameData struct {
	frame    gocv.Mat
	sequence int64
}

// frameSource is the capture device surface the read loop owns. The loop
// closes the source itself once it exits, so no Close can race a blocked
// Read on the same handle.
type frameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

func usage() {
	fmt.Fprintf(os.Stderr, "depthcam - live monocular depth contour viewer\n\n")
	fmt.Fprintf(os.Stderr, "Usage examples:\n")
	fmt.Fprintf(os.Stderr, "  Live view from the default camera:\n")
	fmt.Fprintf(os.Stderr, "    ./depthcam -model_weights weights/midas_v21_small-70d6b9c8.onnx\n")
	fmt.Fprintf(os.Stderr, "  Large model with status overlay and web monitor:\n")
	fmt.Fprintf(os.Stderr, "    ./depthcam -model_type dpt_large -status-overlay -monitor-addr :8077\n")
	fmt.Fprintf(os.Stderr, "  Batch mode over a folder of images:\n")
	fmt.Fprintf(os.Stderr, "    ./depthcam -camera=-1 -input_path input -output_path output\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

// buildConfig validates flags and resolves model defaults; it fails fast
// on an unknown model type.
func buildConfig() (Config, error) {
	spec, err := depth.SpecFor(depth.ModelType(*modelTypeFlag))
	if err != nil {
		return Config{}, err
	}

	weights := *modelWeights
	if weights == "" {
		weights = spec.DefaultWeights
	}

	optimize := *optimizeFlag
	if *noOptimize {
		optimize = false
	}

	if *maskThreshold < 0 || *maskThreshold > 255 {
		return Config{}, errors.Errorf("threshold %d outside [0,255]", *maskThreshold)
	}
	if *captureFailLimit < 1 {
		return Config{}, errors.Errorf("capture-fail-limit must be at least 1, got %d", *captureFailLimit)
	}
	if *captureTimeout <= 0 {
		return Config{}, errors.Errorf("capture-timeout must be positive, got %v", *captureTimeout)
	}

	return Config{
		Spec:             spec,
		Weights:          weights,
		Optimize:         optimize,
		Camera:           *cameraID,
		Threshold:        *maskThreshold,
		InputPath:        *inputPath,
		OutputPath:       *outputPath,
		StatusOverlay:    *statusOverlay,
		MonitorAddr:      *monitorAddr,
		CaptureFailLimit: *captureFailLimit,
		CaptureTimeout:   *captureTimeout,
	}, nil
}

func main() {
	flag.Usage = usage
	flag.Parse()

	// Initialize global unified debug logger
	globalDebugLogger = NewDebugLogger(*debugMode)
	defer globalDebugLogger.Close()

	// Connect debug functions to library packages
	depth.SetDebugFunction(debugMsg)
	monitor.SetDebugFunction(debugMsg)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n\n", err)
		flag.Usage()
		globalDebugLogger.Close()
		os.Exit(1)
	}

	debugMsg("INIT", fmt.Sprintf("Model: %s, weights: %s, optimize: %v", cfg.Spec.Type, cfg.Weights, cfg.Optimize))

	m := metrics.New()
	stats := NewPipelineStats()
	events := monitor.NewEventBuffer(eventBufferSize)
	renderer := overlay.NewRenderer()

	// Load the depth network once, fail fast if the weights are missing
	providerManager := depth.NewProviderManager()
	if err := providerManager.Initialize(cfg.Spec, cfg.Weights, cfg.Optimize); err != nil {
		errorMsg("INIT", fmt.Sprintf("Could not initialize depth model: %v", err))
		globalDebugLogger.Close()
		os.Exit(1)
	}
	defer providerManager.Close()

	info := providerManager.GetProviderInfo()
	m.SetProvider(info.Type)
	debugMsg("INIT", fmt.Sprintf("Inference provider: %s (%s), init %v", info.Type, info.Backend, info.InitTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional HTTP monitor with MJPEG previews, websocket stats and /metrics
	var mon *webmonitor.Server
	if cfg.MonitorAddr != "" {
		statusFn := func() map[string]any {
			return map[string]any{
				"fps":              stats.LastFPS(),
				"infer_latency_ms": stats.LastInferAverage().Milliseconds(),
				"provider":         info.Type,
				"backend":          info.Backend,
				"model":            string(cfg.Spec.Type),
			}
		}
		mon = webmonitor.New(statusFn, events.GetRecent, m.Handler())
		go func() {
			debugMsg("MONITOR", fmt.Sprintf("HTTP monitor listening on %s", cfg.MonitorAddr))
			if err := mon.Run(ctx, cfg.MonitorAddr); err != nil {
				errorMsg("MONITOR", fmt.Sprintf("HTTP monitor failed: %v", err))
			}
		}()
	}

	if cfg.Camera < 0 {
		err = runBatch(cfg, providerManager, renderer, m)
	} else {
		err = runLive(cfg, providerManager, renderer, stats, m, events, mon)
	}
	if err != nil {
		errorMsg("MAIN", fmt.Sprintf("%v", err))
		for _, line := range events.GetRecent() {
			errorMsg("EVENTS", line)
		}
		globalDebugLogger.Close()
		os.Exit(1)
	}
	debugMsg("MAIN", "finished")
}

// runLive drives the unbounded capture -> infer -> segment -> render loop
// until ESC, a signal, or a fatal pipeline error.
func runLive(cfg Config, providerManager *depth.ProviderManager, renderer *overlay.Renderer, stats *PipelineStats, m *metrics.Metrics, events *monitor.EventBuffer, mon *webmonitor.Server) error {
	webcam, err := gocv.OpenVideoCapture(cfg.Camera)
	if err != nil {
		return errors.Wrapf(err, "could not open camera device %d", cfg.Camera)
	}

	// Read the first frame to determine size; a camera that opens but
	// produces nothing is treated the same as a missing camera.
	probe := gocv.NewMat()
	if ok := webcam.Read(&probe); !ok || probe.Empty() {
		probe.Close()
		webcam.Close()
		return errors.Errorf("camera device %d produced no frame", cfg.Camera)
	}
	frameSize := image.Pt(probe.Cols(), probe.Rows())
	probe.Close()
	debugMsg("CAPTURE", fmt.Sprintf("Detected frame size: %dx%d", frameSize.X, frameSize.Y))

	winInput := gocv.NewWindow(windowInput)
	winBlurred := gocv.NewWindow(windowBlurred)
	winOutput := gocv.NewWindow(windowOutput)
	defer winInput.Close()
	defer winBlurred.Close()
	defer winOutput.Close()

	watchdog := monitor.NewCaptureWatchdog(cfg.CaptureTimeout)
	info := providerManager.GetProviderInfo()
	gpuMonitor := monitor.NewGPUMemoryMonitor(info.Type == "GPU")

	frameChan := make(chan FrameData, frameChanDepth)
	errorChan := make(chan error, 1)
	stopChan := make(chan struct{})
	captureDone := make(chan struct{})

	go captureFrames(webcam, frameChan, errorChan, stopChan, captureDone, stats, m, watchdog, events, cfg.CaptureFailLimit)

	// The capture goroutine owns the device handle from here on and
	// closes it when its read loop exits. The join is bounded because a
	// stalled device can pin the goroutine inside a read; in that case
	// the device is released when the read finally returns.
	defer func() {
		close(stopChan)
		select {
		case <-captureDone:
		case <-time.After(2 * time.Second):
			debugMsg("CAPTURE", "capture goroutine stuck in a device read, device closes when it returns")
		}
		for {
			select {
			case fd := <-frameChan:
				fd.frame.Close()
			default:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	perfTicker := time.NewTicker(perfReportInterval)
	defer perfTicker.Stop()

	// The watchdog polls on its own short interval so a stall is caught
	// close to the configured timeout, not on the next perf report.
	watchdogTicker := time.NewTicker(watchdogPollInterval)
	defer watchdogTicker.Stop()

	provider := providerManager.GetProvider()
	debugMsg("PIPELINE", "start processing")

	for {
		select {
		case err := <-errorChan:
			return err

		case sig := <-sigChan:
			debugMsg("MAIN", fmt.Sprintf("Received signal %v, shutting down", sig))
			return nil

		case <-perfTicker.C:
			captureFPS, processFPS, displayFPS, avgRead, avgInfer, avgSegment, avgRender := stats.GetStats()
			debugMsg("PERF", fmt.Sprintf("Pipeline Performance (last %v):", perfReportInterval))
			debugMsg("PERF", fmt.Sprintf("Capture: %.1f fps (Read: %v)", captureFPS, avgRead))
			debugMsg("PERF", fmt.Sprintf("Process: %.1f fps (Infer: %v, Segment: %v)", processFPS, avgInfer, avgSegment))
			debugMsg("PERF", fmt.Sprintf("Display: %.1f fps (Render: %v)", displayFPS, avgRender))

			if err := gpuMonitor.CheckGPUMemory(); err != nil {
				debugMsg("GPU_ERROR", fmt.Sprintf("GPU memory check failed: %v", err))
			}

		case <-watchdogTicker.C:
			if err := watchdog.Check(); err != nil {
				events.Add(err.Error())
				return errors.Wrap(err, "capture watchdog")
			}

		case frameData := <-frameChan:
			exit, err := processFrame(frameData, provider, info, renderer, cfg, stats, m, mon, winInput, winBlurred, winOutput)
			if err != nil {
				return err
			}
			if exit {
				debugMsg("DISPLAY", "Escape hit, closing...")
				return nil
			}
		}
	}
}

// processFrame runs one frame through inference, postprocessing,
// segmentation and render, then polls the display for the exit key.
func processFrame(frameData FrameData, provider depth.Provider, info depth.ProviderInfo, renderer *overlay.Renderer, cfg Config, stats *PipelineStats, m *metrics.Metrics, mon *webmonitor.Server, winInput, winBlurred, winOutput *gocv.Window) (bool, error) {
	frame := frameData.frame
	defer frame.Close()

	inferStart := time.Now()
	raw, err := provider.Infer(frame)
	if err != nil {
		return false, errors.Wrapf(err, "depth inference on frame %d", frameData.sequence)
	}
	defer raw.Close()
	inferDur := time.Since(inferStart)
	stats.UpdateInference(inferDur)
	m.ObserveInfer(inferDur)

	upsampled, err := depth.Upsample(raw, image.Pt(frame.Cols(), frame.Rows()))
	if err != nil {
		return false, err
	}
	defer upsampled.Close()

	intensity, err := depth.ToIntensity(upsampled)
	if err != nil {
		return false, err
	}
	defer intensity.Close()

	segStart := time.Now()
	seg, err := segment.Segment(intensity, cfg.Threshold)
	if err != nil {
		return false, err
	}
	defer seg.Close()
	segDur := time.Since(segStart)
	stats.UpdateSegment(segDur)
	m.ObserveSegment(segDur)
	m.ContoursPerFrame.Set(float64(len(seg.Contours)))

	stats.UpdateProcess()
	m.FramesProcessed.Inc()

	renderStart := time.Now()
	renderer.DrawContours(&frame, seg.Contours)

	fps := stats.UpdateFPS()
	if cfg.StatusOverlay {
		renderer.DrawStatus(&frame, overlay.Status{
			FPS:          fps,
			InferLatency: inferDur,
			Provider:     info.Backend,
			FrameSize:    image.Pt(frame.Cols(), frame.Rows()),
			Contours:     len(seg.Contours),
		})
	}

	winInput.IMShow(frame)
	winBlurred.IMShow(seg.Mask)
	winOutput.IMShow(intensity)

	if mon != nil {
		// Previews are best effort; a slow or broken monitor never
		// stalls the display loop.
		if err := mon.UpdateSurface(webmonitor.SurfaceInput, frame); err != nil {
			debugMsg("MONITOR", fmt.Sprintf("preview update failed: %v", err))
		}
		_ = mon.UpdateSurface(webmonitor.SurfaceBlurred, seg.Mask)
		_ = mon.UpdateSurface(webmonitor.SurfaceOutput, intensity)
	}

	key := winInput.WaitKey(1)
	renderDur := time.Since(renderStart)
	stats.UpdateRender(renderDur)
	m.ObserveRender(renderDur)

	return shouldExit(key), nil
}

// shouldExit reports whether a display poll keycode asks to quit. Only
// ESC terminates; every other key (and the -1 "no key" poll result) is
// ignored.
func shouldExit(key int) bool {
	return key >= 0 && key%256 == escKeyCode
}

// captureFrames reads frames from the camera as fast as the device
// provides them, feeding the bounded frame channel. Repeated consecutive
// failures are fatal rather than a silent re-poll loop. The source is
// closed here, after the last read, never concurrently with one.
func captureFrames(src frameSource, frameChan chan<- FrameData, errorChan chan<- error, stopChan <-chan struct{}, done chan<- struct{}, stats *PipelineStats, m *metrics.Metrics, watchdog *monitor.CaptureWatchdog, events *monitor.EventBuffer, failLimit int) {
	defer close(done)
	defer src.Close()

	frameSequence := int64(0)
	consecutiveFailures := 0

	for {
		select {
		case <-stopChan:
			return
		default:
		}

		readStart := time.Now()
		img := gocv.NewMat()

		if ok := src.Read(&img); !ok {
			img.Close()
			consecutiveFailures++
			m.CaptureErrors.Inc()
			events.Add(fmt.Sprintf("capture read failure %d/%d", consecutiveFailures, failLimit))
			if consecutiveFailures >= failLimit {
				errorChan <- errors.Errorf("camera read failed %d times in a row", consecutiveFailures)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Reject malformed frames before they reach the transform
		if img.Empty() || img.Type() != gocv.MatTypeCV8UC3 || img.Channels() != 3 {
			img.Close()
			consecutiveFailures++
			m.CaptureErrors.Inc()
			events.Add(fmt.Sprintf("invalid frame %d/%d", consecutiveFailures, failLimit))
			if consecutiveFailures >= failLimit {
				errorChan <- errors.Errorf("camera produced %d invalid frames in a row", consecutiveFailures)
				return
			}
			continue
		}

		consecutiveFailures = 0
		watchdog.FrameArrived()
		stats.UpdateCapture(time.Since(readStart))
		m.FramesCaptured.Inc()

		frameData := FrameData{
			frame:    img,
			sequence: frameSequence,
		}

		select {
		case frameChan <- frameData:
			frameSequence++
		case <-stopChan:
			img.Close()
			return
		default:
			// Channel full, drop frame and keep reading
			img.Close()
			m.FramesDropped.Inc()
		}
	}
}
