package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batchd/internal/grammar"
)

func newGrammarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Grammar utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "check FILE...",
		Short:   "Compile grammar files and report errors",
		Example: "  batchd grammar check outline.gbnf",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				b, err := os.ReadFile(path)
				if err == nil {
					var r *grammar.Rules
					if r, err = grammar.Compile(grammar.Normalize(string(b))); err == nil {
						fmt.Fprintf(a.out, "%s: ok (%d rules)\n", path, r.Len())
						continue
					}
				}
				failed++
				fmt.Fprintf(a.out, "%s: %v\n", path, err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d grammars failed", failed, len(args))
			}
			return nil
		},
	})
	return cmd
}
