// Package overlay draws segmentation contours and status information onto
// live frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// contour drawing defaults
const (
	contourThickness = 3
	statusMargin     = 10
	statusLineHeight = 22
)

// Renderer handles visualization and overlay rendering.
type Renderer struct {
	contourColor color.RGBA
	statusColor  color.RGBA
	shadowColor  color.RGBA
}

// Status carries the live numbers shown by the status overlay.
type Status struct {
	FPS          float64
	InferLatency time.Duration
	Provider     string
	FrameSize    image.Point
	Contours     int
}

// NewRenderer creates a renderer with the default palette.
func NewRenderer() *Renderer {
	return &Renderer{
		contourColor: color.RGBA{0, 255, 0, 255}, // green
		statusColor:  color.RGBA{0, 255, 0, 255},
		shadowColor:  color.RGBA{0, 0, 0, 255},
	}
}

// DrawContours draws every contour onto the frame in place, no filtering.
func (r *Renderer) DrawContours(frame *gocv.Mat, contours [][]image.Point) {
	if len(contours) == 0 {
		return
	}
	pv := gocv.NewPointsVectorFromPoints(contours)
	defer pv.Close()
	gocv.DrawContours(frame, pv, -1, r.contourColor, contourThickness)
}

// DrawStatus renders the status block in the lower-left corner.
func (r *Renderer) DrawStatus(frame *gocv.Mat, status Status) {
	lines := []string{
		fmt.Sprintf("FPS: %.1f", status.FPS),
		fmt.Sprintf("INFER: %v", status.InferLatency.Round(time.Millisecond)),
		fmt.Sprintf("DEVICE: %s", status.Provider),
		fmt.Sprintf("FRAME: %dx%d", status.FrameSize.X, status.FrameSize.Y),
		fmt.Sprintf("CONTOURS: %d", status.Contours),
	}

	baseY := frame.Rows() - statusMargin - statusLineHeight*(len(lines)-1)
	for i, line := range lines {
		pt := image.Pt(statusMargin, baseY+i*statusLineHeight)
		// Shadow first so the text stays readable on bright frames.
		gocv.PutText(frame, line, image.Pt(pt.X+1, pt.Y+1), gocv.FontHersheySimplex, 0.55, r.shadowColor, 2)
		gocv.PutText(frame, line, pt, gocv.FontHersheySimplex, 0.55, r.statusColor, 1)
	}
}
