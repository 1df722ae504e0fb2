// Command batchd runs batched multi-conversation generation over a shared
// KV cache: notes, structured outlines, and a final draft per question.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "batchd:", err)
		os.Exit(1)
	}
}
