package envconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DIFFUSE_MEMORY_MODE", "")
	t.Setenv("DIFFUSE_MAX_VRAM_BYTES", "")
	LoadConfig()
	assert.Equal(t, "maximum", MemoryMode)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DIFFUSE_MEMORY_MODE", "Minimum")
	t.Setenv("DIFFUSE_MAX_VRAM_BYTES", "8000000000")
	t.Setenv("DIFFUSE_MAX_PARALLEL_GENERATIONS", "2")
	LoadConfig()

	assert.Equal(t, "minimum", MemoryMode)
	assert.Equal(t, uint64(8000000000), MaxVRAMBytes)
	assert.Equal(t, 2, MaxParallelGenerations)
}

func TestAsMapCoversMemoryMode(t *testing.T) {
	m := AsMap()
	_, ok := m["DIFFUSE_MEMORY_MODE"]
	assert.True(t, ok)
}

func TestLoadConfigStepCacheDefaultsOff(t *testing.T) {
	t.Setenv("DIFFUSE_STEP_CACHE", "")
	LoadConfig()
	assert.False(t, StepCache)
}

func TestLoadConfigStepCacheOverride(t *testing.T) {
	t.Setenv("DIFFUSE_STEP_CACHE", "true")
	LoadConfig()
	assert.True(t, StepCache)
	t.Setenv("DIFFUSE_STEP_CACHE", "")
	LoadConfig()
}
