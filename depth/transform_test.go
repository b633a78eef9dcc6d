package depth

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func TestFitToNetUpperBound(t *testing.T) {
	spec, err := SpecFor(MidasV21Small)
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	tr := NewTransform(spec)

	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{640, 480, 256, 192},
		{800, 600, 256, 192},
		{1024, 768, 256, 192},
		{320, 240, 256, 192},
		{256, 256, 256, 256},
		{512, 512, 256, 256},
		{100, 100, 256, 256},
	}
	for _, c := range cases {
		got, err := tr.FitToNet(c.w, c.h)
		if err != nil {
			t.Fatalf("FitToNet(%d,%d): %v", c.w, c.h, err)
		}
		if got.X != c.wantW || got.Y != c.wantH {
			t.Fatalf("FitToNet(%d,%d) = %dx%d, want %dx%d", c.w, c.h, got.X, got.Y, c.wantW, c.wantH)
		}
	}
}

func TestFitToNetStrideAndBound(t *testing.T) {
	spec, err := SpecFor(MidasV21Small)
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	tr := NewTransform(spec)

	sizes := [][2]int{
		{640, 480}, {1920, 1080}, {1280, 720}, {352, 288},
		{700, 100}, {333, 777}, {4000, 3000}, {60, 60},
	}
	for _, s := range sizes {
		w, h := s[0], s[1]
		got, err := tr.FitToNet(w, h)
		if err != nil {
			t.Fatalf("FitToNet(%d,%d): %v", w, h, err)
		}
		if got.X%Stride != 0 || got.Y%Stride != 0 {
			t.Fatalf("FitToNet(%d,%d) = %dx%d: not a multiple of %d", w, h, got.X, got.Y, Stride)
		}
		if got.X > spec.NetSize.X || got.Y > spec.NetSize.Y {
			t.Fatalf("FitToNet(%d,%d) = %dx%d exceeds bound %v", w, h, got.X, got.Y, spec.NetSize)
		}

		// Aspect ratio preserved within stride rounding tolerance.
		scale := math.Min(float64(spec.NetSize.X)/float64(w), float64(spec.NetSize.Y)/float64(h))
		if math.Abs(float64(got.X)-scale*float64(w)) >= Stride {
			t.Fatalf("FitToNet(%d,%d) width %d too far from ideal %.1f", w, h, got.X, scale*float64(w))
		}
		if math.Abs(float64(got.Y)-scale*float64(h)) >= Stride {
			t.Fatalf("FitToNet(%d,%d) height %d too far from ideal %.1f", w, h, got.Y, scale*float64(h))
		}
	}
}

func TestFitToNetMinimal(t *testing.T) {
	spec, err := SpecFor(DPTLarge)
	if err != nil {
		t.Fatalf("SpecFor: %v", err)
	}
	tr := NewTransform(spec)

	got, err := tr.FitToNet(640, 480)
	if err != nil {
		t.Fatalf("FitToNet: %v", err)
	}
	if got.X != 512 || got.Y != 384 {
		t.Fatalf("FitToNet(640,480) = %dx%d, want 512x384", got.X, got.Y)
	}
	if got.X < spec.NetSize.X || got.Y < spec.NetSize.Y {
		t.Fatalf("minimal mode result %v below net size %v", got, spec.NetSize)
	}
}

func TestFitToNetRejectsDegenerateInput(t *testing.T) {
	spec, _ := SpecFor(MidasV21Small)
	tr := NewTransform(spec)

	for _, s := range [][2]int{{0, 480}, {640, 0}, {-1, 10}} {
		if _, err := tr.FitToNet(s[0], s[1]); err == nil {
			t.Fatalf("FitToNet(%d,%d): expected error", s[0], s[1])
		}
	}

	// Extreme aspect ratios can round a dimension down to zero.
	if _, err := tr.FitToNet(2, 1000); err == nil {
		t.Fatal("FitToNet(2,1000): expected error")
	}
}

func TestApplyNormalizesPerChannel(t *testing.T) {
	// Constant BGR frame: B=40, G=80, R=120. A constant survives the
	// bicubic resize, so every blob value reduces to the per-channel
	// affine (v/255 - mean) / std in RGB order.
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	rgb := [3]float32{120, 80, 40}

	for _, mt := range []ModelType{MidasV21Small, DPTLarge} {
		spec, err := SpecFor(mt)
		if err != nil {
			t.Fatalf("SpecFor(%s): %v", mt, err)
		}
		tr := NewTransform(spec)

		size, err := tr.FitToNet(64, 64)
		if err != nil {
			t.Fatalf("FitToNet: %v", err)
		}

		blob, err := tr.Apply(frame)
		if err != nil {
			t.Fatalf("Apply(%s): %v", mt, err)
		}

		dims := blob.Size()
		if len(dims) != 4 || dims[0] != 1 || dims[1] != 3 || dims[2] != size.Y || dims[3] != size.X {
			blob.Close()
			t.Fatalf("%s blob shape = %v, want [1 3 %d %d]", mt, dims, size.Y, size.X)
		}

		data, err := blob.DataPtrFloat32()
		if err != nil {
			blob.Close()
			t.Fatalf("DataPtrFloat32: %v", err)
		}

		plane := size.X * size.Y
		for c := 0; c < 3; c++ {
			want := (rgb[c]/255 - spec.Mean[c]) / spec.Std[c]
			for _, idx := range []int{c * plane, c*plane + plane/2, (c+1)*plane - 1} {
				if got := data[idx]; math.Abs(float64(got-want)) > 1e-3 {
					blob.Close()
					t.Fatalf("%s channel %d value = %f, want %f", mt, c, got, want)
				}
			}
		}
		blob.Close()
	}
}

func TestApplyRejectsEmptyFrame(t *testing.T) {
	spec, _ := SpecFor(MidasV21Small)
	tr := NewTransform(spec)

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := tr.Apply(empty); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestConstrainToMultiple(t *testing.T) {
	cases := []struct {
		x        float64
		min, max int
		want     int
	}{
		{256, 0, 256, 256},
		{250, 0, 256, 256},  // rounds up within bound
		{280, 0, 256, 256},  // rounding up would exceed the bound
		{100, 0, 256, 96},   // nearest multiple
		{10, 32, 0, 32},     // lower bound forces a round up
		{383, 384, 0, 384},  // minimal mode keeps the floor at the target
	}
	for _, c := range cases {
		if got := constrainToMultiple(c.x, c.min, c.max); got != c.want {
			t.Fatalf("constrainToMultiple(%.0f,%d,%d) = %d, want %d", c.x, c.min, c.max, got, c.want)
		}
	}
}
