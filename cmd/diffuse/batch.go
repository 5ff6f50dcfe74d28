package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/imageio"
	"github.com/coretensor/diffuse/pipeline"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <model> <prompt>",
		Short: "Generate a batch of images varying one axis (seed, step, guidance, strength)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], args[1])
		},
	}
	registerGenerateFlags(cmd)
	cmd.Flags().String("axis", "seed", "Axis to vary: seed, step, guidance, strength")
	cmd.Flags().Int("count", 4, "Number of seeds to generate (axis=seed only)")
	cmd.Flags().Float32("from", 0, "Range start (axis=step/guidance/strength)")
	cmd.Flags().Float32("to", 0, "Range end (axis=step/guidance/strength)")
	cmd.Flags().Float32("increment", 1, "Range step size (axis=guidance/strength)")
	return cmd
}

func batchTypeFromFlag(name string) (api.BatchType, error) {
	switch strings.ToLower(name) {
	case "seed":
		return api.BatchSeed, nil
	case "step":
		return api.BatchStep, nil
	case "guidance":
		return api.BatchGuidance, nil
	case "strength":
		return api.BatchStrength, nil
	default:
		return 0, fmt.Errorf("diffuse: unknown batch axis %q", name)
	}
}

func runBatch(cmd *cobra.Command, modelName, prompt string) error {
	mode := memoryModeFromEnv()
	p, err := pipeline.Load(modelName, mode)
	if err != nil {
		return fmt.Errorf("diffuse: load model %q: %w", modelName, err)
	}

	base, err := schedulerOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	prm, err := promptOptionsFromFlags(cmd, prompt)
	if err != nil {
		return err
	}

	axisName, _ := cmd.Flags().GetString("axis")
	axisType, err := batchTypeFromFlag(axisName)
	if err != nil {
		return err
	}
	count, _ := cmd.Flags().GetInt("count")
	from, _ := cmd.Flags().GetFloat32("from")
	to, _ := cmd.Flags().GetFloat32("to")
	increment, _ := cmd.Flags().GetFloat32("increment")

	axis := api.BatchOptions{
		BatchType: axisType,
		Count:     count,
		ValueFrom: from,
		ValueTo:   to,
		Increment: increment,
	}

	bar := newStepBar()
	entries := p.RunBatch(cmd.Context(), prm, base, axis, func(prog api.DiffusionProgress) {
		bar.set(prog.Step, prog.Total)
	})
	bar.done()

	for i, entry := range entries {
		if entry.Err != nil {
			fmt.Printf("entry %d: %v\n", i, entry.Err)
			continue
		}
		outputPath := fmt.Sprintf("%s-%02d.png", sanitizeFilename(prompt), i)
		data, err := imageio.TensorToPNG(entry.Pixels)
		if err != nil {
			fmt.Printf("entry %d: encode: %v\n", i, err)
			continue
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			fmt.Printf("entry %d: %v\n", i, err)
			continue
		}
		fmt.Printf("entry %d: %s (seed %d)\n", i, outputPath, entry.SchedulerUsed.Seed)
	}
	return nil
}
