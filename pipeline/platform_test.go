package pipeline

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/manifest"
)

func TestCheckPlatformSupportCurrentHost(t *testing.T) {
	err := CheckPlatformSupport()
	switch runtime.GOOS {
	case "linux", "windows":
		assert.NoError(t, err)
	case "darwin":
		if runtime.GOARCH == "arm64" {
			assert.NoError(t, err)
		} else {
			require.Error(t, err)
		}
	default:
		require.Error(t, err)
	}
}

func TestEstimateVRAMFallsBackForUnknownClass(t *testing.T) {
	writeFakeModel(t, "unknown-class", modelIndex{ClassName: "SomeFuturePipeline"})
	r, err := manifest.Load("unknown-class")
	require.NoError(t, err)
	assert.Equal(t, uint64(4*GB), EstimateVRAM(r))
}

func TestEstimateVRAMLooksUpKnownClass(t *testing.T) {
	writeFakeModel(t, "cascade-class", modelIndex{ClassName: "StableCascadeCombinedPipeline"})
	r, err := manifest.Load("cascade-class")
	require.NoError(t, err)
	assert.Equal(t, uint64(14*GB), EstimateVRAM(r))
}

func TestCheckMemoryRequirementsRejectsInsufficient(t *testing.T) {
	writeFakeModel(t, "sdxl-class", modelIndex{ClassName: "StableDiffusionXLPipeline"})
	r, err := manifest.Load("sdxl-class")
	require.NoError(t, err)
	err = CheckMemoryRequirements(r, 1*GB)
	require.Error(t, err)
}

func TestCheckMemoryRequirementsAcceptsSufficient(t *testing.T) {
	writeFakeModel(t, "sd15-class", modelIndex{ClassName: "StableDiffusionPipeline"})
	r, err := manifest.Load("sd15-class")
	require.NoError(t, err)
	err = CheckMemoryRequirements(r, 8*GB)
	assert.NoError(t, err)
}
