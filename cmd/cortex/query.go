package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jward/cortex"
	"github.com/spf13/cobra"
)

var (
	flagLimit  int
	flagOffset int
	flagPath   string
	flagDepth  int
	flagKinds  []string
	flagFuzzy  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query an indexed data directory",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagPath, "path", "", "disambiguating document path for an ambiguous symbol name")
	queryCmd.PersistentFlags().IntVar(&flagDepth, "depth", 0, "traversal max depth (0 = engine default)")
	queryCmd.PersistentFlags().StringSliceVar(&flagKinds, "kind", nil, "filter by symbol kind, may be repeated")
	queryCmd.PersistentFlags().BoolVar(&flagFuzzy, "fuzzy", false, "fuzzy (substring) symbol name match")

	queryCmd.AddCommand(contentCmd, symbolCmd, callersCmd, calleesCmd, impactCmd, chainCmd, cyclesCmd, unusedCmd, hotpathsCmd, statsCmd)
}

func openEngine() (*cortex.Engine, error) {
	if _, err := os.Stat(flagDataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("data directory not found: %s (run 'cortex index' first)", flagDataDir)
	}
	return cortex.Open(cortex.Config{DataDir: flagDataDir})
}

func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var contentCmd = &cobra.Command{
	Use:   "content <term>",
	Short: "Search document content",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().ContentSearch(ctx, args[0], flagLimit, flagOffset)
	}),
}

var symbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Search symbols by qualified name",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().SymbolSearch(args[0], kindArgs(), flagFuzzy, flagLimit)
	}),
}

var callersCmd = &cobra.Command{
	Use:   "callers <symbol>",
	Short: "Find direct callers of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().FindCallers(args[0], flagPath, nil)
	}),
}

var calleesCmd = &cobra.Command{
	Use:   "callees <symbol>",
	Short: "Find direct callees of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().FindCallees(args[0], flagPath)
	}),
}

var impactCmd = &cobra.Command{
	Use:   "impact <symbol>",
	Short: "Breadth-first impact analysis over all edge kinds",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		nodes, truncated, err := e.Query().ImpactAnalysis(ctx, args[0], flagPath, flagDepth, 0)
		if err != nil {
			return nil, err
		}
		return struct {
			Nodes     []cortex.ImpactNode `json:"nodes"`
			Truncated bool                `json:"truncated"`
		}{nodes, truncated}, nil
	}),
}

var chainCmd = &cobra.Command{
	Use:   "chain <from> <to>",
	Short: "Shortest call chain between two symbols",
	Args:  cobra.ExactArgs(2),
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().CallChain(args[0], args[1], flagDepth)
	}),
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Find circular dependency groups",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().CircularDependencies()
	}),
}

var unusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "Find symbols with no incoming references",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().UnusedSymbols(kindArgs())
	}),
}

var hotpathsCmd = &cobra.Command{
	Use:   "hotpaths",
	Short: "Top symbols by incoming edge count",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().HotPaths(flagLimit)
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate document counts and sizes",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, e *cortex.Engine, args []string) (any, error) {
		return e.Query().StatsQuery()
	}),
}

func kindArgs() []cortex.SymbolKind {
	if len(flagKinds) == 0 {
		return nil
	}
	out := make([]cortex.SymbolKind, len(flagKinds))
	for i, k := range flagKinds {
		out[i] = cortex.SymbolKind(k)
	}
	return out
}

// withEngine wraps a query body with engine open/close and uniform result
// printing, so every subcommand above is just its own query call.
func withEngine(fn func(ctx context.Context, e *cortex.Engine, args []string) (any, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()
		result, err := fn(cmd.Context(), engine, args)
		if err != nil {
			return err
		}
		return printResult(result)
	}
}
