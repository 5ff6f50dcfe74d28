package main

import (
	"fmt"
	"strings"

	"github.com/coretensor/diffuse/api"
)

func parseSchedulerFlag(name string) (api.SchedulerType, error) {
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
		return 0, fmt.Errorf("diffuse: unknown scheduler %q", name)
	}
}

func parseDiffuserFlag(name string) (api.DiffuserType, error) {
	switch strings.ToLower(name) {
	case "text_to_image":
		return api.TextToImage, nil
	case "image_to_image":
		return api.ImageToImage, nil
	case "image_inpaint_legacy":
		return api.ImageInpaintLegacy, nil
	case "image_inpaint":
		return api.ImageInpaint, nil
	case "controlnet":
		return api.ControlNet, nil
	case "controlnet_image":
		return api.ControlNetImage, nil
	default:
		return 0, fmt.Errorf("diffuse: unknown diffuser %q", name)
	}
}

// inferDiffuserType picks a DiffuserType from which optional image inputs
// were supplied, so a caller only needs --diffuser for the legacy inpaint
// variant.
func inferDiffuserType(imagePath, maskPath, controlPath string) api.DiffuserType {
	switch {
	case controlPath != "" && imagePath != "":
		return api.ControlNetImage
	case controlPath != "":
		return api.ControlNet
	case maskPath != "":
		return api.ImageInpaint
	case imagePath != "":
		return api.ImageToImage
	default:
		return api.TextToImage
	}
}

// sanitizeFilename removes characters that aren't safe for filenames.
func sanitizeFilename(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "image"
	}
	return result.String()
}
