// Package main provides the advisorgraph CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "advisorgraph",
		Short: "advisorgraph - filtered queries over the advisor relationship graph",
		Long: `advisorgraph answers filtered queries over a graph of consultants,
field consultants, companies and products, and the EMPLOYS, COVERS, OWNS
and RATES relationships between them.

Filters compile to parameterized Cypher and run against Neo4j, or against
an in-memory graph loaded from a YAML fixture.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "advisorgraph v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(
		newServeCmd(opts),
		newQueryCmd(opts),
		newExplainCmd(opts),
		newNodeCmd(opts),
		newSummaryCmd(opts),
		newOptionsCmd(opts),
		newExpandCmd(opts),
		newPathsCmd(opts),
		newInfluenceCmd(opts),
		newSeedCmd(opts),
	)
	return rootCmd
}
