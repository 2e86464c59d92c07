package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mimic-swap",
	Short: "A CLI for token swaps executed by the Mimic Protocol",
	Long: `mimic-swap is a command-line tool that swaps tokens through the Mimic
Protocol. It approves the input token, signs a swap config and follows the
resulting intent until it settles.

Examples:
  mimic-swap swap 100 USDC to WETH
  mimic-swap swap 0.5 ETH to USDC on arbitrum --slippage 1
  mimic-swap tokens --chain arbitrum --prices
  mimic-swap status <config-sig> --watch
  mimic-swap history`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
