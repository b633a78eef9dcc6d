package depth

import (
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"
)

func TestUpsampleIdentity(t *testing.T) {
	src := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV32F)
	defer src.Close()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetFloatAt(y, x, float32(y*4+x))
		}
	}

	out, err := Upsample(src, image.Pt(4, 4))
	if err != nil {
		t.Fatalf("Upsample: %v", err)
	}
	defer out.Close()

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := float32(y*4 + x)
			if got := out.GetFloatAt(y, x); math.Abs(float64(got-want)) > 1e-4 {
				t.Fatalf("identity upsample changed (%d,%d): got %f want %f", x, y, got, want)
			}
		}
	}
}

func TestUpsampleConstantGrid(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(700, 0, 0, 0), 6, 8, gocv.MatTypeCV32F)
	defer src.Close()

	out, err := Upsample(src, image.Pt(64, 48))
	if err != nil {
		t.Fatalf("Upsample: %v", err)
	}
	defer out.Close()

	if out.Cols() != 64 || out.Rows() != 48 {
		t.Fatalf("upsample size = %dx%d, want 64x48", out.Cols(), out.Rows())
	}
	for _, pt := range []image.Point{{0, 0}, {32, 24}, {63, 47}} {
		if got := out.GetFloatAt(pt.Y, pt.X); math.Abs(float64(got)-700) > 1e-3 {
			t.Fatalf("constant grid value at %v = %f, want 700", pt, got)
		}
	}
}

func TestUpsampleRejectsBadInput(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := Upsample(empty, image.Pt(10, 10)); err == nil {
		t.Fatal("expected error for empty prediction")
	}

	src := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV32F)
	defer src.Close()
	if _, err := Upsample(src, image.Pt(0, 10)); err == nil {
		t.Fatal("expected error for zero target")
	}
}

func TestToIntensityClamps(t *testing.T) {
	src := gocv.NewMatWithSize(1, 3, gocv.MatTypeCV32F)
	defer src.Close()
	src.SetFloatAt(0, 0, -500) // below range -> 0
	src.SetFloatAt(0, 1, 400)  // 400/1000*255 = 102
	src.SetFloatAt(0, 2, 9000) // above range -> 255

	out, err := ToIntensity(src)
	if err != nil {
		t.Fatalf("ToIntensity: %v", err)
	}
	defer out.Close()

	if out.Type() != gocv.MatTypeCV8U {
		t.Fatalf("intensity type = %v, want CV8U", out.Type())
	}
	want := []uint8{0, 102, 255}
	for i, w := range want {
		if got := out.GetUCharAt(0, i); got != w {
			t.Fatalf("intensity[%d] = %d, want %d", i, got, w)
		}
	}
}
