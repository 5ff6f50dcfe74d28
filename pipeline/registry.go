package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/manifest"
	"github.com/coretensor/diffuse/prompt"
)

// modelIndex mirrors the subset of model_index.json this registry reads to
// build a StableDiffusionModelSet: which submodels a manifest declares and
// the pipeline family they belong to.
type modelIndex struct {
	ClassName      string  `json:"_class_name"`
	SampleSize     int     `json:"sample_size"`
	ScaleFactor    float32 `json:"scaling_factor"`
	TokenizerLimit int     `json:"tokenizer_model_max_length"`
	PadTokenID     int32   `json:"pad_token_id"`
}

var submodelComponents = []string{
	"text_encoder", "text_encoder_2", "unet", "controlnet",
	"vae_encoder", "vae_decoder", "prior_unet", "decoder_unet", "vqgan",
}

// classPipelineType maps a model_index.json "_class_name" to the pipeline
// strategy that drives it (spec.md OVERVIEW's pipeline-variant list).
var classPipelineType = map[string]PipelineType{
	"StableDiffusionPipeline":           PipelineStandardSD,
	"StableDiffusionXLPipeline":         PipelineStandardSD,
	"StableDiffusionInpaintPipeline":    PipelineStandardSD,
	"StableDiffusionControlNetPipeline": PipelineStandardSD,
	"InstaFlowPipeline":                 PipelineInstaFlow,
	"LatentConsistencyModelPipeline":    PipelineLatentConsistency,
	"StableCascadeCombinedPipeline":     PipelineStableCascade,
}

// defaultDiffusers is the set of DiffuserTypes a model set supports, derived
// from which components its manifest carries — every model carrying a UNet
// and VAE decoder can at least do text-to-image. A supported_diffusers
// declaration in model_index.json is not read.
func defaultDiffusers(r *manifest.Resolved) []api.DiffuserType {
	diffusers := []api.DiffuserType{api.TextToImage}
	if r.HasComponent("vae_encoder") {
		diffusers = append(diffusers, api.ImageToImage, api.ImageInpaintLegacy)
	}
	if r.HasComponent("controlnet") {
		diffusers = append(diffusers, api.ControlNet)
		if r.HasComponent("vae_encoder") {
			diffusers = append(diffusers, api.ControlNetImage)
		}
	}
	return diffusers
}

// defaultSchedulers lists every scheduler this codebase implements; a
// manifest may narrow this via a future explicit declaration, but nothing
// in the format defines that field yet.
func defaultSchedulers() []api.SchedulerType {
	return []api.SchedulerType{
		api.SchedulerLMS, api.SchedulerEuler, api.SchedulerEulerAncestral,
		api.SchedulerDDPM, api.SchedulerDDIM, api.SchedulerKDPM2,
	}
}

// LoadModelSet resolves modelName's manifest into a StableDiffusionModelSet
// (spec.md §4.F "Configuration surface"), reading model_index.json for
// pipeline family/geometry and enumerating whichever submodel components
// the manifest actually carries.
func LoadModelSet(modelName string) (StableDiffusionModelSet, error) {
	r, err := manifest.Load(modelName)
	if err != nil {
		return StableDiffusionModelSet{}, err
	}
	return loadModelSetFromResolved(modelName, r)
}

func loadModelSetFromResolved(modelName string, r *manifest.Resolved) (StableDiffusionModelSet, error) {
	var idx modelIndex
	if err := r.ReadConfigJSON("model_index.json", &idx); err != nil {
		return StableDiffusionModelSet{}, fmt.Errorf("pipeline: model_index.json: %w", err)
	}

	set := StableDiffusionModelSet{
		Name:                modelName,
		PipelineType:        classPipelineType[idx.ClassName],
		SupportedDiffusers:  defaultDiffusers(r),
		SupportedSchedulers: defaultSchedulers(),
		SampleSize:          idx.SampleSize,
		ScaleFactor:         idx.ScaleFactor,
		TokenizerLimit:      idx.TokenizerLimit,
		PadTokenID:          idx.PadTokenID,
	}
	if set.SampleSize == 0 {
		set.SampleSize = 64
	}
	if set.TokenizerLimit == 0 {
		set.TokenizerLimit = 77
	}

	for _, component := range submodelComponents {
		if !r.HasComponent(component) {
			continue
		}
		path, err := r.ComponentConfig(component, "model.onnx")
		if err != nil {
			continue
		}
		set.SubModels = append(set.SubModels, SubModelConfig{Component: component, Path: path})
	}

	return set, nil
}

// LoadTokenizer resolves modelName's tokenizer.json layer into a
// prompt.Tokenizer using the CLIP byte-level BPE pretokenizer pattern.
func LoadTokenizer(modelName string) (*prompt.Tokenizer, error) {
	r, err := manifest.Load(modelName)
	if err != nil {
		return nil, err
	}
	path, err := r.ComponentConfig("tokenizer", "tokenizer.json")
	if err != nil {
		return nil, err
	}
	vocab, err := prompt.LoadVocabulary(path)
	if err != nil {
		return nil, err
	}
	return prompt.NewTokenizer(vocab, ""), nil
}

// Load resolves modelName end to end into a ready-to-run Pipeline: manifest,
// tokenizer, and sub-model handle set (spec.md §4.F). Platform support is
// checked before any sub-model handle is even constructed, so an
// unsupported host fails without touching disk for weights.
func Load(modelName string, mode api.MemoryMode) (*Pipeline, error) {
	if err := CheckPlatformSupport(); err != nil {
		return nil, err
	}

	r, err := manifest.Load(modelName)
	if err != nil {
		return nil, err
	}

	set, err := loadModelSetFromResolved(modelName, r)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(modelName)
	if err != nil {
		return nil, err
	}
	return New(set, tok, mode)
}

// LoadWithVRAMCheck is Load plus an explicit check of the resolved model's
// estimated VRAM footprint against availableVRAMBytes — a caller-supplied
// figure, since this module has no way to query actual device memory
// without a concrete accelerator binding. envconfig.MaxVRAMBytes is not
// consulted: it is a backend scratch-buffer pool ceiling (spec.md §5), not
// a weight-residency figure, and no code in this module applies it.
func LoadWithVRAMCheck(modelName string, mode api.MemoryMode, availableVRAMBytes uint64) (*Pipeline, error) {
	if err := CheckPlatformSupport(); err != nil {
		return nil, err
	}

	r, err := manifest.Load(modelName)
	if err != nil {
		return nil, err
	}
	if err := CheckMemoryRequirements(r, availableVRAMBytes); err != nil {
		return nil, err
	}

	set, err := loadModelSetFromResolved(modelName, r)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(modelName)
	if err != nil {
		return nil, err
	}
	return New(set, tok, mode)
}

// marshalIndex is used only by tests constructing a fake model_index.json;
// kept here so the JSON field names stay next to the struct they describe.
func marshalIndex(idx modelIndex) ([]byte, error) {
	return json.Marshal(idx)
}
