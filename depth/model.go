package depth

import (
	"image"

	"github.com/pkg/errors"
)

// ModelType identifies one of the supported MiDaS network variants.
type ModelType string

const (
	DPTLarge      ModelType = "dpt_large"
	DPTHybrid     ModelType = "dpt_hybrid"
	MidasV21Large ModelType = "midas_v21_large"
	MidasV21Small ModelType = "midas_v21_small"
)

// ResizeMode controls how input frames are fitted to the network size.
type ResizeMode string

const (
	// ResizeUpperBound scales so neither dimension exceeds the target.
	ResizeUpperBound ResizeMode = "upper_bound"
	// ResizeMinimal scales so both dimensions are at least the target.
	ResizeMinimal ResizeMode = "minimal"
)

// Stride is the dimension multiple the networks require on their inputs.
const Stride = 32

// ModelSpec describes everything needed to run one network variant:
// where its weights live by default, the input geometry it expects and
// the per-channel normalization baked into its training.
type ModelSpec struct {
	Type           ModelType
	DefaultWeights string
	NetSize        image.Point
	Resize         ResizeMode
	Mean           [3]float32
	Std            [3]float32
}

var modelSpecs = map[ModelType]ModelSpec{
	DPTLarge: {
		Type:           DPTLarge,
		DefaultWeights: "weights/dpt_large-midas-2f21e586.onnx",
		NetSize:        image.Pt(384, 384),
		Resize:         ResizeMinimal,
		Mean:           [3]float32{0.5, 0.5, 0.5},
		Std:            [3]float32{0.5, 0.5, 0.5},
	},
	DPTHybrid: {
		Type:           DPTHybrid,
		DefaultWeights: "weights/dpt_hybrid-midas-501f0c75.onnx",
		NetSize:        image.Pt(384, 384),
		Resize:         ResizeMinimal,
		Mean:           [3]float32{0.5, 0.5, 0.5},
		Std:            [3]float32{0.5, 0.5, 0.5},
	},
	MidasV21Large: {
		Type:           MidasV21Large,
		DefaultWeights: "weights/midas_v21_large-f6b98070.onnx",
		NetSize:        image.Pt(384, 384),
		Resize:         ResizeUpperBound,
		Mean:           [3]float32{0.485, 0.456, 0.406},
		Std:            [3]float32{0.229, 0.224, 0.225},
	},
	MidasV21Small: {
		Type:           MidasV21Small,
		DefaultWeights: "weights/midas_v21_small-70d6b9c8.onnx",
		NetSize:        image.Pt(256, 256),
		Resize:         ResizeUpperBound,
		Mean:           [3]float32{0.485, 0.456, 0.406},
		Std:            [3]float32{0.229, 0.224, 0.225},
	},
}

// SpecFor returns the spec for a model type name.
func SpecFor(t ModelType) (ModelSpec, error) {
	spec, ok := modelSpecs[t]
	if !ok {
		return ModelSpec{}, errors.Errorf(
			"unknown model type %q (supported: dpt_large, dpt_hybrid, midas_v21_large, midas_v21_small)", t)
	}
	return spec, nil
}

// ModelTypes lists the supported type names for help output.
func ModelTypes() []ModelType {
	return []ModelType{DPTLarge, DPTHybrid, MidasV21Large, MidasV21Small}
}
