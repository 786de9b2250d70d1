package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "replay - event-driven backtesting engine",
	Long: `replay feeds historical bars through a trading strategy one bar at a time,
simulates fills with commission and slippage, and reports returns, drawdowns,
risk statistics and Wyckoff pattern campaigns.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
