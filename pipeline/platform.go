package pipeline

import (
	"fmt"
	"runtime"

	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/manifest"
)

// GB is a convenience constant for gigabytes.
const GB = 1024 * 1024 * 1024

// classVRAMEstimates maps a model_index.json "_class_name" to an estimated
// VRAM footprint, used when no per-model manifest metadata overrides it
// (a SUPPLEMENTED FEATURE recovering resource checks the distillation
// dropped).
var classVRAMEstimates = map[string]uint64{
	"StableDiffusionPipeline":         4 * GB,
	"StableDiffusionXLPipeline":       8 * GB,
	"StableDiffusionInpaintPipeline":  4 * GB,
	"StableDiffusionControlNetPipeline": 6 * GB,
	"InstaFlowPipeline":               4 * GB,
	"StableCascadeCombinedPipeline":   14 * GB,
	"LatentConsistencyModelPipeline":  4 * GB,
}

// CheckPlatformSupport validates that image generation is supported on the
// current platform's execution providers.
func CheckPlatformSupport() error {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH != "arm64" {
			return errkind.ResourceExhausted(fmt.Sprintf("image generation on macOS requires Apple Silicon (arm64), got %s", runtime.GOARCH))
		}
		return nil
	case "linux", "windows":
		return nil
	default:
		return errkind.ResourceExhausted(fmt.Sprintf("image generation is not supported on %s", runtime.GOOS))
	}
}

// CheckMemoryRequirements validates that availableBytes covers the
// estimated VRAM footprint of the resolved model (spec.md §5's configured
// pool ceiling).
func CheckMemoryRequirements(r *manifest.Resolved, availableBytes uint64) error {
	required := EstimateVRAM(r)
	if availableBytes < required {
		return errkind.ResourceExhausted(fmt.Sprintf("insufficient memory for image generation: need %d MB, have %d MB",
			required/(1024*1024), availableBytes/(1024*1024)))
	}
	return nil
}

// EstimateVRAM returns the estimated VRAM a resolved model needs, keyed by
// its model_index.json class name, falling back to a conservative default.
func EstimateVRAM(r *manifest.Resolved) uint64 {
	const fallback = 4 * GB
	className, err := r.ClassName()
	if err != nil {
		return fallback
	}
	if estimate, ok := classVRAMEstimates[className]; ok {
		return estimate
	}
	return fallback
}
