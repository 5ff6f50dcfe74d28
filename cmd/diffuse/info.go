package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coretensor/diffuse/envconfig"
	"github.com/coretensor/diffuse/pipeline"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info [model]",
		Short: "Print environment configuration, or one model's declared configuration surface",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return printEnvInfo()
			}
			return printModelInfo(args[0])
		},
	}
	return cmd
}

func printEnvInfo() error {
	for name, v := range envconfig.AsMap() {
		fmt.Printf("%-32s %v\n", name, v.Value)
	}
	return nil
}

func printModelInfo(modelName string) error {
	set, err := pipeline.LoadModelSet(modelName)
	if err != nil {
		return fmt.Errorf("diffuse: load model %q: %w", modelName, err)
	}

	fmt.Printf("model:           %s\n", set.Name)
	fmt.Printf("pipeline_type:   %s\n", set.PipelineType)
	fmt.Printf("sample_size:     %d\n", set.SampleSize)
	fmt.Printf("scale_factor:    %v\n", set.ScaleFactor)
	fmt.Printf("tokenizer_limit: %d\n", set.TokenizerLimit)
	fmt.Println("supported_diffusers:")
	for _, d := range set.SupportedDiffusers {
		fmt.Printf("  - %s\n", d)
	}
	fmt.Println("supported_schedulers:")
	for _, s := range set.SupportedSchedulers {
		fmt.Printf("  - %s\n", s)
	}
	return nil
}
