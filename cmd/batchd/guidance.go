package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"batchd/internal/engine/mem"
	"batchd/internal/grammar"
	"batchd/internal/pipeline"
)

func newGuidanceCmd(a *app) *cobra.Command {
	var (
		positive string
		negative string
		weight   float32
		tokens   int
	)
	cmd := &cobra.Command{
		Use:   "guidance",
		Short: "Compare guided and unguided generation of the same prompt",
		Example: "  batchd guidance --positive 'My favourite colour is' \\\n" +
			"    --negative 'I hate the colour red. My favourite colour is' --weight 2",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.CompareGuidance(cmd.Context(), pipeline.GuidanceOptions{
				Executor:  a.newExecutor(),
				Tokenizer: mem.Tokenizer{},
				Grammars:  grammar.NewCache(a.log),
				Positive:  positive,
				Negative:  negative,
				Weight:    weight,
				Tokens:    tokens,
				Seed:      a.cfg.Sampling.Seed,
				Logger:    a.log,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "unguided: %s\n", res.Unguided)
			fmt.Fprintf(a.out, "guided:   %s\n", res.Guided)
			fmt.Fprintf(a.out, "weight %.2f, %d steps\n", res.Weight, res.Tokens)
			return nil
		},
	}
	cmd.Flags().StringVar(&positive, "positive", "My favourite colour is", "Prompt to complete")
	cmd.Flags().StringVar(&negative, "negative", "I hate the colour red. My favourite colour is", "Prompt to steer away from")
	cmd.Flags().Float32Var(&weight, "weight", 2, "Guidance weight")
	cmd.Flags().IntVar(&tokens, "tokens", 32, "Number of generation steps")
	return cmd
}
