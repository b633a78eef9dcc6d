// Package segment turns 8-bit intensity images into binary masks and
// boundary contours.
package segment

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultThreshold is the global cutoff separating near from far pixels.
const DefaultThreshold = 125

// Result holds one frame's segmentation artifacts. Mask is owned by the
// caller and must be closed; Contours are plain point slices.
type Result struct {
	Mask     gocv.Mat
	Contours [][]image.Point
}

// Close releases the mask.
func (r *Result) Close() {
	r.Mask.Close()
}

// Segment applies a global binary threshold (below -> 0, at/above -> 255)
// and extracts the contour tree with simple chain approximation. The
// contour hierarchy is not surfaced; nothing downstream consumes it.
func Segment(intensity gocv.Mat, threshold int) (*Result, error) {
	if intensity.Empty() {
		return nil, errors.New("cannot segment empty intensity image")
	}
	if threshold < 0 || threshold > 255 {
		return nil, errors.Errorf("threshold %d outside [0,255]", threshold)
	}

	mask := gocv.NewMat()
	// OpenCV's binary threshold keeps strictly-greater values; shifting
	// by half a level makes the cutoff inclusive.
	gocv.Threshold(intensity, &mask, float32(threshold)-0.5, 255, gocv.ThresholdBinary)

	found := gocv.FindContours(mask, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer found.Close()

	contours := make([][]image.Point, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		contours = append(contours, found.At(i).ToPoints())
	}

	return &Result{Mask: mask, Contours: contours}, nil
}

// BoundingBoxes returns the axis-aligned bounding rectangle of each contour.
func BoundingBoxes(contours [][]image.Point) []image.Rectangle {
	boxes := make([]image.Rectangle, 0, len(contours))
	for _, c := range contours {
		pv := gocv.NewPointVectorFromPoints(c)
		boxes = append(boxes, gocv.BoundingRect(pv))
		pv.Close()
	}
	return boxes
}
