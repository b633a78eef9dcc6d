package depth

import (
	"strings"
	"testing"
)

func TestSpecForKnownTypes(t *testing.T) {
	small, err := SpecFor(MidasV21Small)
	if err != nil {
		t.Fatalf("SpecFor(midas_v21_small): %v", err)
	}
	if small.NetSize.X != 256 || small.NetSize.Y != 256 {
		t.Fatalf("small net size = %v, want 256x256", small.NetSize)
	}
	if small.Resize != ResizeUpperBound {
		t.Fatalf("small resize mode = %q, want upper_bound", small.Resize)
	}

	large, err := SpecFor(DPTLarge)
	if err != nil {
		t.Fatalf("SpecFor(dpt_large): %v", err)
	}
	if large.Resize != ResizeMinimal {
		t.Fatalf("dpt_large resize mode = %q, want minimal", large.Resize)
	}
	if large.Mean != [3]float32{0.5, 0.5, 0.5} {
		t.Fatalf("dpt_large mean = %v, want 0.5s", large.Mean)
	}
}

func TestSpecForUnknownType(t *testing.T) {
	_, err := SpecFor(ModelType("midas_v4"))
	if err == nil {
		t.Fatal("expected error for unknown model type")
	}
	if !strings.Contains(err.Error(), "midas_v4") {
		t.Fatalf("error should name the bad type, got: %v", err)
	}
}

func TestModelTypesCoversRegistry(t *testing.T) {
	types := ModelTypes()
	if len(types) != len(modelSpecs) {
		t.Fatalf("ModelTypes lists %d entries, registry has %d", len(types), len(modelSpecs))
	}
	for _, mt := range types {
		spec, err := SpecFor(mt)
		if err != nil {
			t.Fatalf("ModelTypes entry %q not in registry: %v", mt, err)
		}
		if spec.DefaultWeights == "" {
			t.Fatalf("%q has no default weights path", mt)
		}
		if spec.NetSize.X%Stride != 0 || spec.NetSize.Y%Stride != 0 {
			t.Fatalf("%q net size %v not a multiple of %d", mt, spec.NetSize, Stride)
		}
	}
}
