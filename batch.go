package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"depthcam/depth"
	"depthcam/metrics"
	"depthcam/overlay"
	"depthcam/segment"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// runBatch computes depth maps for every image in the input folder and
// writes the intensity map, binary mask and contour-annotated frame to
// the output folder.
func runBatch(cfg Config, providerManager *depth.ProviderManager, renderer *overlay.Renderer, m *metrics.Metrics) error {
	entries, err := os.ReadDir(cfg.InputPath)
	if err != nil {
		return errors.Wrapf(err, "could not read input folder %s", cfg.InputPath)
	}

	if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
		return errors.Wrapf(err, "could not create output folder %s", cfg.OutputPath)
	}

	provider := providerManager.GetProvider()
	processed := 0

	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}

		path := filepath.Join(cfg.InputPath, entry.Name())
		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			debugMsg("BATCH", fmt.Sprintf("Skipping unreadable image %s", path))
			continue
		}

		if err := processStill(img, entry.Name(), provider, renderer, cfg, m); err != nil {
			img.Close()
			return errors.Wrapf(err, "processing %s", path)
		}
		img.Close()
		processed++
		debugMsg("BATCH", fmt.Sprintf("Processed %s", entry.Name()))
	}

	if processed == 0 {
		debugMsg("BATCH", fmt.Sprintf("No images found in %s", cfg.InputPath))
		return nil
	}

	debugMsg("BATCH", fmt.Sprintf("Processed %d images into %s", processed, cfg.OutputPath))
	return nil
}

// processStill runs one image through the full pipeline and writes the
// three output artifacts.
func processStill(img gocv.Mat, name string, provider depth.Provider, renderer *overlay.Renderer, cfg Config, m *metrics.Metrics) error {
	inferStart := time.Now()
	raw, err := provider.Infer(img)
	if err != nil {
		return errors.Wrap(err, "depth inference")
	}
	defer raw.Close()
	m.ObserveInfer(time.Since(inferStart))

	upsampled, err := depth.Upsample(raw, image.Pt(img.Cols(), img.Rows()))
	if err != nil {
		return err
	}
	defer upsampled.Close()

	intensity, err := depth.ToIntensity(upsampled)
	if err != nil {
		return err
	}
	defer intensity.Close()

	seg, err := segment.Segment(intensity, cfg.Threshold)
	if err != nil {
		return err
	}
	defer seg.Close()
	m.FramesProcessed.Inc()

	var largest image.Rectangle
	for _, box := range segment.BoundingBoxes(seg.Contours) {
		if box.Dx()*box.Dy() > largest.Dx()*largest.Dy() {
			largest = box
		}
	}
	debugMsg("BATCH", fmt.Sprintf("%s: %d regions, largest %dx%d", name, len(seg.Contours), largest.Dx(), largest.Dy()))

	annotated := img.Clone()
	defer annotated.Close()
	renderer.DrawContours(&annotated, seg.Contours)

	base := strings.TrimSuffix(name, filepath.Ext(name))
	outputs := []struct {
		suffix string
		mat    gocv.Mat
	}{
		{"_depth.png", intensity},
		{"_mask.png", seg.Mask},
		{"_contours.png", annotated},
	}
	for _, out := range outputs {
		target := filepath.Join(cfg.OutputPath, base+out.suffix)
		if ok := gocv.IMWrite(target, out.mat); !ok {
			return errors.Errorf("could not write %s", target)
		}
	}
	return nil
}

// isImageFile reports whether a file name looks like a readable image.
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}
