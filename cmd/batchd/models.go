package main

import (
	"fmt"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"batchd/internal/registry"
	"batchd/pkg/types"
)

func newModelsCmd(a *app) *cobra.Command {
	var (
		dir    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List GGUF models available to the llama generator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("models-dir") {
				a.cfg.Generator.ModelsDir = dir
			}
			models, err := registry.LoadDir(a.cfg.Generator.ModelsDir)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(types.ModelsResponse{Models: models}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(b))
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUANT\tFAMILY\tSIZE")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d MiB\n", m.ID, m.Quant, m.Family, m.SizeBytes>>20)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "models-dir", "", "Directory to scan for *.gguf files")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
