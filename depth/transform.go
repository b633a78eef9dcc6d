package depth

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Transform prepares raw camera frames for a specific network variant:
// aspect-preserving resize onto a stride-aligned grid, BGR to RGB, and
// per-channel mean/std normalization into an NCHW blob.
type Transform struct {
	spec ModelSpec
}

// NewTransform builds the preprocessing transform for a model spec.
func NewTransform(spec ModelSpec) *Transform {
	return &Transform{spec: spec}
}

// constrainToMultiple snaps x to the nearest multiple of Stride, rounding
// down when that would exceed max and up when it would fall below min.
// Pass 0 to leave a bound unset.
func constrainToMultiple(x float64, min, max int) int {
	y := int(math.Round(x/Stride)) * Stride
	if max > 0 && y > max {
		y = int(math.Floor(x/Stride)) * Stride
	}
	if min > 0 && y < min {
		y = int(math.Ceil(x/Stride)) * Stride
	}
	return y
}

// FitToNet computes the stride-aligned target dimensions for an input of
// the given size under the spec's resize policy. Aspect ratio is preserved
// up to stride rounding.
func (t *Transform) FitToNet(width, height int) (image.Point, error) {
	if width <= 0 || height <= 0 {
		return image.Point{}, errors.Errorf("invalid input dimensions %dx%d", width, height)
	}

	scaleW := float64(t.spec.NetSize.X) / float64(width)
	scaleH := float64(t.spec.NetSize.Y) / float64(height)

	var scale float64
	switch t.spec.Resize {
	case ResizeMinimal:
		// Smaller dimension ends up at least the target.
		scale = math.Max(scaleW, scaleH)
	default:
		// Larger dimension must not exceed the target.
		scale = math.Min(scaleW, scaleH)
	}

	var out image.Point
	switch t.spec.Resize {
	case ResizeMinimal:
		out.X = constrainToMultiple(scale*float64(width), t.spec.NetSize.X, 0)
		out.Y = constrainToMultiple(scale*float64(height), t.spec.NetSize.Y, 0)
	default:
		out.X = constrainToMultiple(scale*float64(width), 0, t.spec.NetSize.X)
		out.Y = constrainToMultiple(scale*float64(height), 0, t.spec.NetSize.Y)
	}

	if out.X <= 0 || out.Y <= 0 {
		return image.Point{}, errors.Errorf("input %dx%d too small to fit network grid", width, height)
	}
	return out, nil
}

// Apply converts a BGR frame into a normalized NCHW blob ready for the
// network. The caller owns the returned Mat and must Close it.
func (t *Transform) Apply(frame gocv.Mat) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.Mat{}, errors.New("cannot transform empty frame")
	}

	size, err := t.FitToNet(frame.Cols(), frame.Rows())
	if err != nil {
		return gocv.Mat{}, err
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(frame, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, size, 0, 0, gocv.InterpolationCubic)

	// (x/255 - mean) / std folded into a single per-channel affine.
	channels := gocv.Split(resized)
	normalized := gocv.NewMat()
	defer normalized.Close()
	for i := range channels {
		alpha := 1.0 / (255.0 * t.spec.Std[i])
		beta := -t.spec.Mean[i] / t.spec.Std[i]
		channels[i].ConvertToWithParams(&channels[i], gocv.MatTypeCV32F, alpha, beta)
	}
	gocv.Merge(channels, &normalized)
	for i := range channels {
		channels[i].Close()
	}

	blob := gocv.BlobFromImage(normalized, 1.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	if blob.Empty() {
		return gocv.Mat{}, errors.New("failed to build input blob")
	}
	return blob, nil
}
