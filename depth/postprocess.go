package depth

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// depthDivisor and intensityScale map the network's metric-ish output into
// an 8-bit display range: intensity = depth / 1000 * 255.
const (
	depthDivisor   = 1000.0
	intensityScale = 255.0
)

// Upsample resizes a raw network prediction to the target frame size with
// bicubic interpolation. The caller closes the returned Mat.
func Upsample(prediction gocv.Mat, target image.Point) (gocv.Mat, error) {
	if prediction.Empty() {
		return gocv.Mat{}, errors.New("cannot upsample empty prediction")
	}
	if target.X <= 0 || target.Y <= 0 {
		return gocv.Mat{}, errors.Errorf("invalid upsample target %dx%d", target.X, target.Y)
	}

	out := gocv.NewMat()
	gocv.Resize(prediction, &out, target, 0, 0, gocv.InterpolationCubic)
	return out, nil
}

// ToIntensity rescales a float depth map into an 8-bit intensity image.
// Values are clamped to [0,255] before the cast so out-of-range estimates
// saturate instead of wrapping. The caller closes the returned Mat.
func ToIntensity(depth gocv.Mat) (gocv.Mat, error) {
	if depth.Empty() {
		return gocv.Mat{}, errors.New("cannot rescale empty depth map")
	}

	scaled := gocv.NewMat()
	defer scaled.Close()
	depth.ConvertToWithParams(&scaled, gocv.MatTypeCV32F, intensityScale/depthDivisor, 0)

	// Explicit clamp: truncate above 255, zero below 0.
	gocv.Threshold(scaled, &scaled, 255, 255, gocv.ThresholdTrunc)
	gocv.Threshold(scaled, &scaled, 0, 0, gocv.ThresholdToZero)

	out := gocv.NewMat()
	scaled.ConvertTo(&out, gocv.MatTypeCV8U)
	return out, nil
}
