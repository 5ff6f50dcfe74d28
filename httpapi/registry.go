package httpapi

import (
	"fmt"
	"sync"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/envconfig"
	"github.com/coretensor/diffuse/pipeline"
)

// ModelRegistry lazily loads and caches one *pipeline.Pipeline per model
// name, the way this codebase's runner scheduler caches a loaded server per
// model rather than reloading weights on every request.
type ModelRegistry struct {
	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{pipelines: make(map[string]*pipeline.Pipeline)}
}

// Get returns the cached pipeline for name, loading it from the manifest
// store on first use.
func (r *ModelRegistry) Get(name string) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pipelines[name]; ok {
		return p, nil
	}

	mode := api.MemoryMaximum
	if envconfig.MemoryMode == "minimum" {
		mode = api.MemoryMinimum
	}

	p, err := pipeline.Load(name, mode)
	if err != nil {
		return nil, fmt.Errorf("httpapi: load model %q: %w", name, err)
	}
	r.pipelines[name] = p
	return p, nil
}
