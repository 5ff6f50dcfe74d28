// Package envconfig holds process-wide configuration read from the
// environment: the shared sub-model pool ceiling, default memory mode,
// ONNX Runtime thread counts and execution provider selection (spec.md §5,
// §6). Values are package vars populated once at init, the same shape as
// this codebase's other ambient config surfaces.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via DIFFUSE_MODELS_DIR. Reported by AsMap only: package manifest
	// does not read it and always resolves models under ~/.diffuse/models.
	ModelsDir string
	// Set via DIFFUSE_MEMORY_MODE. "minimum" unloads sub-models as soon as
	// their last use in a run completes; "maximum" (default) keeps them
	// resident between runs.
	MemoryMode string
	// Set via DIFFUSE_MAX_VRAM_BYTES (default 100MB). The backend memory
	// pool ceiling (spec.md §5); reported by AsMap, but no load path checks
	// against it and no code in this module applies it.
	MaxVRAMBytes uint64
	// Set via DIFFUSE_NUM_THREADS. ONNX Runtime intra-op thread count;
	// reported by AsMap, but sub-model sessions are created with default
	// options and do not read it.
	NumThreads int
	// Set via DIFFUSE_GPU. GPU execution provider toggle; reported by
	// AsMap, but sub-model sessions do not read it.
	GPU bool
	// Set via DIFFUSE_MAX_PARALLEL_GENERATIONS. Distinct sub-model handle
	// sets a single process may run concurrently (spec.md §5); reported by
	// AsMap, but nothing reads it and each Pipeline serializes its own runs.
	MaxParallelGenerations int
	// Set via DIFFUSE_TMPDIR. Reported by AsMap only; video frame
	// extraction uses the system temp directory.
	TmpDir string
	// Set via DIFFUSE_STEP_CACHE. Off by default: enables the
	// timestep-aware UNet output cache (diffuser.StepCache), which can
	// skip UNet calls on steps whose timestep barely moved.
	StepCache bool
)

// EnvVar documents one environment variable's current value, mirroring
// this codebase's introspection surface for other config packages.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every known environment variable and its current value,
// used by the CLI's `diffuse info` / debug output.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DIFFUSE_MODELS_DIR":              {"DIFFUSE_MODELS_DIR", ModelsDir, "Model store root (not read; models resolve under ~/.diffuse/models)"},
		"DIFFUSE_MEMORY_MODE":             {"DIFFUSE_MEMORY_MODE", MemoryMode, `Sub-model residency policy: "maximum" (default) or "minimum"`},
		"DIFFUSE_MAX_VRAM_BYTES":          {"DIFFUSE_MAX_VRAM_BYTES", MaxVRAMBytes, "Configured backend memory pool ceiling (not applied by any load path)"},
		"DIFFUSE_NUM_THREADS":             {"DIFFUSE_NUM_THREADS", NumThreads, "ONNX Runtime intra-op thread count (not applied to sessions)"},
		"DIFFUSE_GPU":                     {"DIFFUSE_GPU", GPU, "GPU execution provider toggle (not applied to sessions)"},
		"DIFFUSE_MAX_PARALLEL_GENERATIONS": {"DIFFUSE_MAX_PARALLEL_GENERATIONS", MaxParallelGenerations, "Concurrent generations sharing distinct sub-model handle sets (default 1; not read by the pipeline)"},
		"DIFFUSE_TMPDIR":                  {"DIFFUSE_TMPDIR", TmpDir, "Temporary directory (not read; video extraction uses the system temp dir)"},
		"DIFFUSE_STEP_CACHE":              {"DIFFUSE_STEP_CACHE", StepCache, "Enable timestep-aware UNet output caching (default: off)"},
	}
}

// Values renders AsMap as plain strings, for logging.
func Values() map[string]string {
	out := make(map[string]string, len(AsMap()))
	for k, v := range AsMap() {
		out[k] = fmt.Sprintf("%v", v.Value)
	}
	return out
}

func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	MemoryMode = "maximum"
	MaxParallelGenerations = 1
	MaxVRAMBytes = 100 * 1024 * 1024 // spec.md §5's "e.g. 100MB" example ceiling

	LoadConfig()
}

// LoadConfig re-reads every DIFFUSE_* environment variable into the
// package vars above. Exported so a CLI entrypoint can re-load after
// mutating the process environment in tests.
func LoadConfig() {
	if v := clean("DIFFUSE_MODELS_DIR"); v != "" {
		ModelsDir = v
	}
	if v := clean("DIFFUSE_MEMORY_MODE"); v != "" {
		MemoryMode = strings.ToLower(v)
	}
	if v := clean("DIFFUSE_MAX_VRAM_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			MaxVRAMBytes = n
		}
	}
	if v := clean("DIFFUSE_NUM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			NumThreads = n
		}
	}
	if v := clean("DIFFUSE_GPU"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			GPU = b
		}
	}
	if v := clean("DIFFUSE_MAX_PARALLEL_GENERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			MaxParallelGenerations = n
		}
	}
	TmpDir = clean("DIFFUSE_TMPDIR")
	if v := clean("DIFFUSE_STEP_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			StepCache = b
		}
	}
}
