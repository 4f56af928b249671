// Command cortex is a thin CLI over the cortex engine: index a directory
// tree into a data directory, then run content, symbol, and relationship
// queries against it. spec.md §1 treats the CLI itself as a non-goal --
// this exists only to give the engine's API surface and the ambient cobra
// dependency something to exercise, mirroring the teacher's cmd/canopy in
// shape while staying deliberately small.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagDataDir string
	flagFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "cortex",
	Short:         "Codebase intelligence database",
	Long:          "Indexes a directory tree into a document store with content, symbol, and dependency-graph queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", defaultDataDir(), "engine data directory")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
}

func defaultDataDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ".cortex"
	}
	return filepath.Join(cwd, ".cortex")
}
