// Package cli wires the mol-bhav commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/molbhav/molbhav/internal/config"
)

var (
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "molbhav",
		Short: "Mol-Bhav: bazaar-style price negotiation for e-commerce",
		Long: `Mol-Bhav runs bounded haggling sessions between buyers and a
seller-side agent: a concession curve, tit-for-tat reciprocity, bot
detection, and an LLM mouth with a deterministic price guardrail.

Run the API server:
  molbhav serve

Prepare a database:
  molbhav migrate
  molbhav seed`,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
