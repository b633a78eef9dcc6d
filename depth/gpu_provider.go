package depth

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// GPUProvider implements depth inference using the OpenCV CUDA backend.
// With Optimize set the network runs on the FP16 CUDA target, the half
// precision placement the live viewer requests by default.
type GPUProvider struct {
	Optimize bool

	net       gocv.Net
	transform *Transform
	mu        sync.Mutex
}

// Initialize loads the ONNX network with the CUDA backend.
func (gp *GPUProvider) Initialize(spec ModelSpec, weightsPath string) error {
	if _, err := os.Stat(weightsPath); err != nil {
		return errors.Wrapf(err, "model weights not found at %s", weightsPath)
	}

	gp.net = gocv.ReadNetFromONNX(weightsPath)
	if gp.net.Empty() {
		return errors.Errorf("failed to load depth network from %s", weightsPath)
	}

	gp.net.SetPreferableBackend(gocv.NetBackendCUDA)
	if gp.Optimize {
		gp.net.SetPreferableTarget(gocv.NetTargetCUDAFP16)
	} else {
		gp.net.SetPreferableTarget(gocv.NetTargetCUDA)
	}

	gp.transform = NewTransform(spec)
	return nil
}

// Infer runs one forward pass on the GPU.
func (gp *GPUProvider) Infer(frame gocv.Mat) (gocv.Mat, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	blob, err := gp.transform.Apply(frame)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer blob.Close()

	gp.net.SetInput(blob, "")
	output := gp.net.Forward("")
	defer output.Close()

	return flattenPrediction(output)
}

// Close releases resources used by the GPU provider.
func (gp *GPUProvider) Close() error {
	return gp.net.Close()
}

// GetProviderInfo returns information about the GPU provider.
func (gp *GPUProvider) GetProviderInfo() ProviderInfo {
	backend := "OpenCV CUDA"
	if gp.Optimize {
		backend = "OpenCV CUDA-FP16"
	}
	return ProviderInfo{
		Type:         "GPU",
		Backend:      backend,
		Device:       "NVIDIA GPU",
		EstimatedFPS: 60, // Optimistic estimate for GPU inference
		MemoryUsage:  "~1GB VRAM",
	}
}
