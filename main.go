package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectRoot string

	rootCmd = &cobra.Command{
		Use:   "focus",
		Short: "Continuous performance test engine",
		Long: `focus administers a visual continuous performance test: it presents a
timed target/non-target sequence, records responses and scores attention
against normative data.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root containing the config directory")
	rootCmd.AddCommand(serveCmd, scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
