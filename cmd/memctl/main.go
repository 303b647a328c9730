// memctl inspects flattened device tree blobs and simulates the
// kernel's memory bootstrap against them, without a target machine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "Inspect device trees and simulate the memory bootstrap",
	Long: `memctl parses flattened device tree blobs the way the kernel
bootstrap does and runs the physical allocator setup against them in a
hosted image, so the memory layout of a machine can be inspected and
the bootstrap exercised without booting anything.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().
		BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
