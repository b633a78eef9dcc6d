package depth

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CPUProvider implements depth inference using the OpenCV CPU backend.
type CPUProvider struct {
	net       gocv.Net
	transform *Transform
	mu        sync.Mutex
}

// Initialize loads the ONNX network with the CPU backend.
func (cp *CPUProvider) Initialize(spec ModelSpec, weightsPath string) error {
	if _, err := os.Stat(weightsPath); err != nil {
		return errors.Wrapf(err, "model weights not found at %s", weightsPath)
	}

	cp.net = gocv.ReadNetFromONNX(weightsPath)
	if cp.net.Empty() {
		return errors.Errorf("failed to load depth network from %s", weightsPath)
	}

	cp.net.SetPreferableBackend(gocv.NetBackendDefault)
	cp.net.SetPreferableTarget(gocv.NetTargetCPU)

	cp.transform = NewTransform(spec)
	return nil
}

// Infer runs one forward pass on the CPU.
func (cp *CPUProvider) Infer(frame gocv.Mat) (gocv.Mat, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	blob, err := cp.transform.Apply(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer blob.Close()

	cp.net.SetInput(blob, "")
	output := cp.net.Forward("")
	defer output.Close()

	return flattenPrediction(output)
}

// Close releases resources used by the CPU provider.
func (cp *CPUProvider) Close() error {
	return cp.net.Close()
}

// GetProviderInfo returns information about the CPU provider.
func (cp *CPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:         "CPU",
		Backend:      "OpenCV CPU",
		Device:       "CPU",
		EstimatedFPS: 8, // Conservative estimate for CPU inference
		MemoryUsage:  "~400MB",
	}
}

// flattenPrediction reshapes the network's N-dimensional output blob into a
// 2D single-channel float Mat at network resolution. The caller closes it.
func flattenPrediction(output gocv.Mat) (gocv.Mat, error) {
	sizes := output.Size()
	if len(sizes) < 2 {
		return gocv.Mat{}, errors.Errorf("unexpected prediction shape %v", sizes)
	}
	rows := sizes[len(sizes)-2]
	cols := sizes[len(sizes)-1]
	if rows <= 0 || cols <= 0 {
		return gocv.Mat{}, errors.Errorf("unexpected prediction shape %v", sizes)
	}

	flat := output.Reshape(1, rows)
	defer flat.Close()
	if flat.Cols() != cols {
		return gocv.Mat{}, errors.Errorf("prediction reshape mismatch: %dx%d vs %v", flat.Rows(), flat.Cols(), sizes)
	}
	return flat.Clone(), nil
}
