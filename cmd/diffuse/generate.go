package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/envconfig"
	"github.com/coretensor/diffuse/imageio"
	"github.com/coretensor/diffuse/pipeline"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <model> <prompt>",
		Short: "Generate one image from a prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], args[1])
		},
	}
	registerGenerateFlags(cmd)
	return cmd
}

// registerGenerateFlags adds the numeric recipe + image-conditioning flags
// shared by generate and batch, mirroring this codebase's RegisterFlags.
func registerGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 512, "Image width")
	cmd.Flags().Int("height", 512, "Image height")
	cmd.Flags().Int("steps", 30, "Denoising steps")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 for random)")
	cmd.Flags().String("negative", "", "Negative prompt")
	cmd.Flags().Float32("guidance", 7.5, "Classifier-free guidance scale")
	cmd.Flags().Float32("strength", 0.8, "Image-to-image / inpaint noise strength")
	cmd.Flags().String("scheduler", "euler", "Scheduler: lms, euler, euler_ancestral, ddpm, ddim, kdpm2")
	cmd.Flags().String("diffuser", "", "Diffuser type override; inferred from --image/--mask/--control-image otherwise")
	cmd.Flags().String("image", "", "Path to an input image (image-to-image, inpaint, controlnet-image)")
	cmd.Flags().String("mask", "", "Path to a mask image (inpaint diffusers)")
	cmd.Flags().String("control-image", "", "Path to a control image (controlnet diffusers)")
	cmd.Flags().String("output", "", "Output PNG path (default: generated from the prompt and timestamp)")
}

func schedulerOptionsFromFlags(cmd *cobra.Command) (api.SchedulerOptions, error) {
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	steps, _ := cmd.Flags().GetInt("steps")
	seed, _ := cmd.Flags().GetUint64("seed")
	guidance, _ := cmd.Flags().GetFloat32("guidance")
	strength, _ := cmd.Flags().GetFloat32("strength")
	schedulerName, _ := cmd.Flags().GetString("scheduler")

	schedulerType, err := parseSchedulerFlag(schedulerName)
	if err != nil {
		return api.SchedulerOptions{}, err
	}

	return api.SchedulerOptions{
		Seed:           seed,
		InferenceSteps: steps,
		GuidanceScale:  guidance,
		Strength:       strength,
		Height:         height,
		Width:          width,
		SchedulerType:  schedulerType,
	}, nil
}

func promptOptionsFromFlags(cmd *cobra.Command, prompt string) (api.PromptOptions, error) {
	negative, _ := cmd.Flags().GetString("negative")
	diffuserFlag, _ := cmd.Flags().GetString("diffuser")
	imagePath, _ := cmd.Flags().GetString("image")
	maskPath, _ := cmd.Flags().GetString("mask")
	controlPath, _ := cmd.Flags().GetString("control-image")

	prm := api.PromptOptions{
		Prompt:         prompt,
		NegativePrompt: negative,
	}
	if imagePath != "" {
		prm.InputImage = imageio.FileImage{Path: imagePath}
	}
	if maskPath != "" {
		prm.InputMask = imageio.FileImage{Path: maskPath}
	}
	if controlPath != "" {
		prm.InputControlImage = imageio.FileImage{Path: controlPath}
	}

	if diffuserFlag != "" {
		dt, err := parseDiffuserFlag(diffuserFlag)
		if err != nil {
			return api.PromptOptions{}, err
		}
		prm.DiffuserType = dt
	} else {
		prm.DiffuserType = inferDiffuserType(imagePath, maskPath, controlPath)
	}

	return prm, nil
}

func runGenerate(cmd *cobra.Command, modelName, prompt string) error {
	mode := memoryModeFromEnv()
	p, err := pipeline.Load(modelName, mode)
	if err != nil {
		return fmt.Errorf("diffuse: load model %q: %w", modelName, err)
	}

	sched, err := schedulerOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	prm, err := promptOptionsFromFlags(cmd, prompt)
	if err != nil {
		return err
	}

	bar := newStepBar()
	result, err := p.Run(cmd.Context(), prm, sched, func(prog api.DiffusionProgress) {
		bar.set(prog.Step, prog.Total)
	})
	bar.done()
	if err != nil {
		return fmt.Errorf("diffuse: generate: %w", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = defaultOutputPath(prompt)
	}
	if err := saveImage(result.Pixels, outputPath); err != nil {
		return err
	}

	displayImageInTerminal(outputPath)
	fmt.Printf("Image saved to: %s (seed %d)\n", outputPath, result.SchedulerUsed.Seed)
	return nil
}

func saveImage(pixels *api.Tensor, path string) error {
	data, err := imageio.TensorToPNG(pixels)
	if err != nil {
		return fmt.Errorf("diffuse: encode image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("diffuse: write %s: %w", path, err)
	}
	return nil
}

func defaultOutputPath(prompt string) string {
	safeName := sanitizeFilename(prompt)
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%s-%s.png", safeName, timestamp)
}

func memoryModeFromEnv() api.MemoryMode {
	if envconfig.MemoryMode == "minimum" {
		return api.MemoryMinimum
	}
	return api.MemoryMaximum
}
