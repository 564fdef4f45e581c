// tabletfuzz runs random single-row operation sequences against an
// in-process tablet server and checks every read against an oracle.
//
// Usage:
//
//	tabletfuzz run --seed 42 --length 1000
//	tabletfuzz run --config fuzz.jsonc --update-multiplier 1000
//	tabletfuzz generate --seed 42 --length 20 > case.txt
//	tabletfuzz replay case.txt
//
// A failing run prints the case in the format replay reads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tabletfuzz",
		Short:         "Single-row consistency fuzzer for the tablet engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newReplayCmd(), newGenerateCmd())
	return root
}
