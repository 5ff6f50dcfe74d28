// Package httpapi exposes the pipeline over HTTP: an OpenAI-compatible
// /v1/images/generations endpoint (the only route it registers),
// following this codebase's gin-based route registration and streaming
// conventions (a SUPPLEMENTED layer wrapping the core engine; spec.md's core
// explicitly names "no CLI surface, no env vars" as out of scope for the
// engine itself, not for a surface built on top of it).
package httpapi

// ImageGenerationRequest is an OpenAI-compatible image generation request,
// extended with the fields a diffusion engine needs beyond DALL-E's surface
// (scheduler recipe, image-conditioning inputs).
type ImageGenerationRequest struct {
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	N              int     `json:"n,omitempty"`
	Size           string  `json:"size,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Stream         bool    `json:"stream,omitempty"`

	Steps         int     `json:"steps,omitempty"`
	GuidanceScale float32 `json:"guidance_scale,omitempty"`
	Seed          uint64  `json:"seed,omitempty"`
	Scheduler     string  `json:"scheduler,omitempty"`
	Strength      float32 `json:"strength,omitempty"`

	Image         string `json:"image,omitempty"`          // base64, image-to-image / inpaint / controlnet-image
	Mask          string `json:"mask,omitempty"`            // base64, inpaint diffusers
	ControlImage  string `json:"control_image,omitempty"`   // base64, controlnet diffusers
	DiffuserType  string `json:"diffuser_type,omitempty"`   // defaults to text_to_image, or inferred from inputs present
}

// ImageGenerationResponse is an OpenAI-compatible image generation response.
type ImageGenerationResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// ImageData contains one generated image.
type ImageData struct {
	B64JSON string `json:"b64_json,omitempty"`
	Seed    uint64 `json:"seed"`
}

// ImageProgressEvent is sent during streaming to report step/image progress.
type ImageProgressEvent struct {
	Step       int `json:"step"`
	Total      int `json:"total"`
	ImageIndex int `json:"image_index"`
	ImageCount int `json:"image_count"`
}
