package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/imageio"
	"github.com/coretensor/diffuse/pipeline"
)

// RegisterRoutes wires the OpenAI-compatible image generation endpoint onto
// r, resolving models through registry.
func RegisterRoutes(r gin.IRouter, registry *ModelRegistry) {
	r.POST("/v1/images/generations", func(c *gin.Context) {
		ImageGenerationHandler(c, registry)
	})
}

// ImageGenerationHandler handles an OpenAI-compatible image generation
// request, streaming per-step progress over SSE when req.Stream is set.
func ImageGenerationHandler(c *gin.Context, registry *ModelRegistry) {
	var req ImageGenerationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if req.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "model is required"}})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "prompt is required"}})
		return
	}

	if req.N == 0 {
		req.N = 1
	}
	if req.Size == "" {
		req.Size = "512x512"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "b64_json"
	}
	if req.Steps == 0 {
		req.Steps = 30
	}
	if req.GuidanceScale == 0 {
		req.GuidanceScale = 7.5
	}

	p, err := registry.Get(req.Model)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	width, height := parseSize(req.Size)
	schedulerType, err := parseScheduler(req.Scheduler)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	prm := api.PromptOptions{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		DiffuserType:   diffuserTypeFor(req),
	}
	var decodeErr error
	if prm.InputImage, decodeErr = decodeInputImage(req.Image); decodeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": decodeErr.Error()}})
		return
	}
	if prm.InputMask, decodeErr = decodeInputImage(req.Mask); decodeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": decodeErr.Error()}})
		return
	}
	if prm.InputControlImage, decodeErr = decodeInputImage(req.ControlImage); decodeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": decodeErr.Error()}})
		return
	}

	base := api.SchedulerOptions{
		Seed:           req.Seed,
		InferenceSteps: req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Strength:       req.Strength,
		Height:         height,
		Width:          width,
		SchedulerType:  schedulerType,
	}

	if req.Stream {
		streamGenerations(c, p, prm, base, req.N, req.ResponseFormat)
	} else {
		nonStreamGenerations(c, p, prm, base, req.N, req.ResponseFormat)
	}
}

func nonStreamGenerations(c *gin.Context, p *pipeline.Pipeline, prm api.PromptOptions, base api.SchedulerOptions, n int, format string) {
	resp := ImageGenerationResponse{Data: make([]ImageData, 0, n)}
	for i := 0; i < n; i++ {
		sched := base
		if sched.Seed != 0 {
			sched.Seed += uint64(i)
		}
		result, err := p.Run(c.Request.Context(), prm, sched, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		data, err := encodeImage(result.Pixels, result.SchedulerUsed.Seed)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": err.Error()}})
			return
		}
		resp.Data = append(resp.Data, data)
	}
	c.JSON(http.StatusOK, resp)
}

func streamGenerations(c *gin.Context, p *pipeline.Pipeline, prm api.PromptOptions, base api.SchedulerOptions, n int, format string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	resp := ImageGenerationResponse{Data: make([]ImageData, 0, n)}
	for i := 0; i < n; i++ {
		sched := base
		if sched.Seed != 0 {
			sched.Seed += uint64(i)
		}

		imageIndex := i
		progress := func(prog api.DiffusionProgress) {
			c.SSEvent("progress", ImageProgressEvent{Step: prog.Step, Total: prog.Total, ImageIndex: imageIndex, ImageCount: n})
			c.Writer.Flush()
		}

		result, err := p.Run(c.Request.Context(), prm, sched, progress)
		if err != nil {
			c.SSEvent("error", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		data, err := encodeImage(result.Pixels, result.SchedulerUsed.Seed)
		if err != nil {
			c.SSEvent("error", gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		resp.Data = append(resp.Data, data)
	}

	c.SSEvent("done", resp)
	c.Writer.Flush()
}

func encodeImage(pixels *api.Tensor, seed uint64) (ImageData, error) {
	b64, err := imageio.TensorToBase64PNG(pixels)
	if err != nil {
		return ImageData{}, err
	}
	return ImageData{B64JSON: b64, Seed: seed}, nil
}

func parseSize(size string) (int, int) {
	parts := strings.Split(size, "x")
	if len(parts) != 2 {
		return 512, 512
	}
	w, _ := strconv.Atoi(parts[0])
	h, _ := strconv.Atoi(parts[1])
	if w == 0 {
		w = 512
	}
	if h == 0 {
		h = 512
	}
	return w, h
}

func parseScheduler(name string) (api.SchedulerType, error) {
	switch strings.ToLower(name) {
	case "", "euler":
		return api.SchedulerEuler, nil
	case "euler_ancestral":
		return api.SchedulerEulerAncestral, nil
	case "lms":
		return api.SchedulerLMS, nil
	case "ddpm":
		return api.SchedulerDDPM, nil
	case "ddim":
		return api.SchedulerDDIM, nil
	case "kdpm2":
		return api.SchedulerKDPM2, nil
	default:
		return 0, fmt.Errorf("httpapi: unknown scheduler %q", name)
	}
}

func diffuserTypeFor(req ImageGenerationRequest) api.DiffuserType {
	if req.DiffuserType != "" {
		switch strings.ToLower(req.DiffuserType) {
		case "image_to_image":
			return api.ImageToImage
		case "image_inpaint_legacy":
			return api.ImageInpaintLegacy
		case "image_inpaint":
			return api.ImageInpaint
		case "controlnet":
			return api.ControlNet
		case "controlnet_image":
			return api.ControlNetImage
		}
		return api.TextToImage
	}
	switch {
	case req.ControlImage != "" && req.Image != "":
		return api.ControlNetImage
	case req.ControlImage != "":
		return api.ControlNet
	case req.Mask != "":
		return api.ImageInpaint
	case req.Image != "":
		return api.ImageToImage
	default:
		return api.TextToImage
	}
}

func decodeInputImage(b64Data string) (api.InputImage, error) {
	if b64Data == "" {
		return nil, nil
	}
	if idx := strings.Index(b64Data, ","); idx >= 0 && strings.HasPrefix(b64Data, "data:") {
		b64Data = b64Data[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64Data)
	if err != nil {
		return nil, fmt.Errorf("httpapi: decode base64 image: %w", err)
	}
	return imageio.BytesImage{Data: data}, nil
}
