package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/cortex"
	"github.com/jward/cortex/internal/scriptext"
	"github.com/spf13/cobra"
)

var (
	flagScriptsDir string
	flagBuiltinGo  bool
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a directory tree",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "Risor extraction scripts directory (extract/<language>.risor); disables symbol extraction if unset and --builtin-go is false")
	indexCmd.Flags().BoolVar(&flagBuiltinGo, "builtin-go", true, "use the built-in Go extractor when no scripts directory is configured")
}

var skipDirs = map[string]bool{".git": true, ".cortex": true, "node_modules": true, "vendor": true}

func runIndex(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	abs, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving path %q: %w", targetDir, err)
	}

	cfg := cortex.Config{DataDir: flagDataDir}
	switch {
	case flagScriptsDir != "":
		cfg.SymbolExtractor = scriptext.NewExtractor(flagScriptsDir)
	case flagBuiltinGo:
		cfg.SymbolExtractor = scriptext.GoExtractor{}
	}

	engine, err := cortex.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer engine.Close()

	ctx := context.Background()
	start := time.Now()
	count := 0

	err = filepath.Walk(abs, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			rel = p
		}
		lang, _ := scriptext.LanguageForPath(rel)
		if _, err := engine.Insert(ctx, rel, filepath.Base(rel), content, nil, lang); err != nil {
			return fmt.Errorf("indexing %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if err := engine.Sync(); err != nil {
		return fmt.Errorf("syncing: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Indexed %d documents from %s in %s\n", count, abs, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Data directory: %s\n", flagDataDir)
	return nil
}
