// Package api holds the value types shared across the diffusion engine:
// user-facing options, the tensors passed between pipeline stages, and the
// enums that select diffuser/scheduler variants.
package api

import (
	"github.com/coretensor/diffuse/errkind"
	"github.com/coretensor/diffuse/tensor"
)

// Tensor is an alias to the dense tensor type defined in package tensor
// (spec.md §4.A); it lives there because tensor is a leaf package with no
// dependency on api, while nearly everything else needs a Tensor field.
type Tensor = tensor.Tensor

// DiffuserType selects which per-task control loop drives denoising.
type DiffuserType int

const (
	TextToImage DiffuserType = iota
	ImageToImage
	ImageInpaintLegacy
	ImageInpaint
	ControlNet
	ControlNetImage
	VideoToVideo
)

func (d DiffuserType) String() string {
	switch d {
	case TextToImage:
		return "text_to_image"
	case ImageToImage:
		return "image_to_image"
	case ImageInpaintLegacy:
		return "image_inpaint_legacy"
	case ImageInpaint:
		return "image_inpaint"
	case ControlNet:
		return "controlnet"
	case ControlNetImage:
		return "controlnet_image"
	case VideoToVideo:
		return "video_to_video"
	default:
		return "unknown"
	}
}

// SchedulerType selects a discrete-time reverse diffusion solver.
type SchedulerType int

const (
	SchedulerLMS SchedulerType = iota
	SchedulerEuler
	SchedulerEulerAncestral
	SchedulerDDPM
	SchedulerDDIM
	SchedulerKDPM2
)

func (s SchedulerType) String() string {
	switch s {
	case SchedulerLMS:
		return "lms"
	case SchedulerEuler:
		return "euler"
	case SchedulerEulerAncestral:
		return "euler_ancestral"
	case SchedulerDDPM:
		return "ddpm"
	case SchedulerDDIM:
		return "ddim"
	case SchedulerKDPM2:
		return "kdpm2"
	default:
		return "unknown"
	}
}

// BetaSchedule names the curve used to derive the per-timestep beta table.
type BetaSchedule int

const (
	BetaLinear BetaSchedule = iota
	BetaScaledLinear
	BetaSquaredCosCapV2
)

// PredictionType names what the UNet's output represents.
type PredictionType int

const (
	PredictionEpsilon PredictionType = iota
	PredictionVPrediction
	PredictionSample
)

// TimestepSpacing controls how integer timesteps are selected from the
// training schedule.
type TimestepSpacing int

const (
	SpacingLinspace TimestepSpacing = iota
	SpacingLeading
	SpacingTrailing
)

// NormalizeMode is a pixel value normalization convention used by image I/O.
type NormalizeMode int

const (
	ZeroToOne NormalizeMode = iota
	MinusOneToOne
)

// MemoryMode governs sub-model unload: Minimum unloads each sub-model right
// after its last use in a run, Maximum keeps them loaded between runs.
type MemoryMode int

const (
	MemoryMaximum MemoryMode = iota
	MemoryMinimum
)

// BatchType names the single axis a BatchOptions expansion varies.
type BatchType int

const (
	BatchSeed BatchType = iota
	BatchStep
	BatchGuidance
	BatchStrength
)

// InputImage is anything the core can obtain a normalized pixel tensor from.
// Concrete sources (file path, byte buffer, decoded bitmap, an
// already-materialized tensor) live in package imageio; this interface is
// the only thing the engine depends on.
type InputImage interface {
	GetImageTensor(height, width int, mode NormalizeMode) (*Tensor, error)
}

// FrameSource yields a sequence of frames for the VideoToVideo diffuser.
// Concrete implementations live in package video.
type FrameSource interface {
	Frames() ([]InputImage, error)
	FPS() float64
}

// PromptOptions captures the user's generation intent (§3).
type PromptOptions struct {
	Prompt             string
	NegativePrompt     string
	DiffuserType       DiffuserType
	InputImage         InputImage
	InputMask          InputImage
	InputControlImage  InputImage
	InputVideo         FrameSource
}

// Validate checks the cross-field invariants from spec.md §3:
// image-conditioned diffusers require InputImage; ControlNet diffusers
// require InputControlImage.
func (p PromptOptions) Validate() error {
	switch p.DiffuserType {
	case ImageToImage, ImageInpaintLegacy, ImageInpaint, ControlNetImage:
		if p.InputImage == nil {
			return errkind.InvalidOptions("diffuser " + p.DiffuserType.String() + " requires input_image")
		}
	}
	switch p.DiffuserType {
	case ImageInpaintLegacy, ImageInpaint:
		if p.InputMask == nil {
			return errkind.InvalidOptions("diffuser " + p.DiffuserType.String() + " requires input_mask")
		}
	}
	switch p.DiffuserType {
	case ControlNet, ControlNetImage:
		if p.InputControlImage == nil {
			return errkind.InvalidOptions("diffuser " + p.DiffuserType.String() + " requires input_control_image")
		}
	}
	if p.DiffuserType == VideoToVideo && p.InputVideo == nil {
		return errkind.InvalidOptions("diffuser " + p.DiffuserType.String() + " requires input_video")
	}
	return nil
}

// SchedulerOptions is the immutable numeric recipe for one generation (§3).
// Callers replace the whole value on update; nothing here is mutated by the
// engine after a run begins.
type SchedulerOptions struct {
	Seed                    uint64
	InferenceSteps          int
	GuidanceScale           float32
	Strength                float32
	Height                  int
	Width                   int
	SchedulerType           SchedulerType
	BetaStart               float32
	BetaEnd                 float32
	BetaSchedule            BetaSchedule
	PredictionType          PredictionType
	TimestepSpacing         TimestepSpacing
	ConditioningScale       float32
	OriginalInferenceSteps  int
	TrainedBetas            []float32
}

// WithSeed and the other With* methods return a copy of o with a single
// field mutated; batch expansion (package batch) uses these instead of
// mutating a shared SchedulerOptions.
func (o SchedulerOptions) WithSeed(seed uint64) SchedulerOptions {
	c := o
	c.Seed = seed
	return c
}

func (o SchedulerOptions) WithInferenceSteps(steps int) SchedulerOptions {
	c := o
	c.InferenceSteps = steps
	return c
}

func (o SchedulerOptions) WithGuidanceScale(scale float32) SchedulerOptions {
	c := o
	c.GuidanceScale = scale
	return c
}

func (o SchedulerOptions) WithStrength(strength float32) SchedulerOptions {
	c := o
	c.Strength = strength
	return c
}

// GuidanceEnabled reports whether classifier-free guidance is active for
// this recipe (spec.md §3, §8 invariant 3).
func (o SchedulerOptions) GuidanceEnabled() bool {
	return o.GuidanceScale > 1
}

// BatchOptions expands one base SchedulerOptions into a list across one
// enumerated axis (§3, §4.G).
type BatchOptions struct {
	BatchType BatchType
	Count     int
	ValueFrom float32
	ValueTo   float32
	Increment float32
}

// PromptEmbeddings are the tensors passed to a UNet (§3).
type PromptEmbeddings struct {
	PromptEmbeds        *Tensor
	PooledPromptEmbeds  *Tensor
	NegativePooled      *Tensor
}

// DiffusionProgress reports one step of a run (§3, §6).
type DiffusionProgress struct {
	Step           int
	Total          int
	Latent         *Tensor // optional intermediate snapshot
	BatchIndex     int
	HasBatchIndex  bool
}

// ProgressFunc is invoked after each step; it must never panic and its
// errors are swallowed by the caller (§7).
type ProgressFunc func(DiffusionProgress)
