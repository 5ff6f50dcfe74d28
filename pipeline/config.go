package pipeline

import "github.com/coretensor/diffuse/api"

// PipelineType names the family of two-phase or single-step generation
// strategies layered on top of the shared diffuser loop (spec.md OVERVIEW:
// "Pipeline variants ... expressed as a common polymorphic contract").
// This is distinct from api.DiffuserType, which names the per-task control
// loop (text-to-image, image-to-image, ...) that a StandardSD pipeline runs
// unmodified; InstaFlow and LatentConsistency wrap that same loop with a
// different scheduler/step-count recipe, and StableCascade replaces it
// entirely with its own two-phase orchestration.
type PipelineType int

const (
	PipelineStandardSD PipelineType = iota
	PipelineInstaFlow
	PipelineLatentConsistency
	PipelineStableCascade
)

func (p PipelineType) String() string {
	switch p {
	case PipelineStandardSD:
		return "standard_sd"
	case PipelineInstaFlow:
		return "instaflow"
	case PipelineLatentConsistency:
		return "latent_consistency"
	case PipelineStableCascade:
		return "stable_cascade"
	default:
		return "unknown"
	}
}

// SubModelConfig is one entry of a StableDiffusionModelSet's per-component
// file/graph-IO description.
type SubModelConfig struct {
	Component string // "tokenizer", "text_encoder", "text_encoder_2", "unet", "controlnet", "vae_encoder", "vae_decoder", "vqgan", "prior_unet"
	Path      string
}

// StableDiffusionModelSet is the declared configuration surface for one
// loadable model (spec.md §4.F "Configuration surface"): file paths and
// per-submodel config, plus the capability/geometry declarations the
// pipeline validates a request against before running.
type StableDiffusionModelSet struct {
	Name       string
	SubModels  []SubModelConfig
	PipelineType PipelineType

	SupportedDiffusers  []api.DiffuserType
	SupportedSchedulers []api.SchedulerType

	SampleSize    int // native UNet spatial resolution in latent pixels
	ScaleFactor   float32
	TokenizerLimit int
	PadTokenID    int32
}

func (s StableDiffusionModelSet) supportsDiffuser(d api.DiffuserType) bool {
	for _, v := range s.SupportedDiffusers {
		if v == d {
			return true
		}
	}
	return false
}

func (s StableDiffusionModelSet) supportsScheduler(t api.SchedulerType) bool {
	for _, v := range s.SupportedSchedulers {
		if v == t {
			return true
		}
	}
	return false
}

func (s StableDiffusionModelSet) submodelPath(component string) (string, bool) {
	for _, m := range s.SubModels {
		if m.Component == component {
			return m.Path, true
		}
	}
	return "", false
}
