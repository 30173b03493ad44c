// Package cmd provides the command-line interface of pagingsim.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagingsim",
	Short: "pagingsim runs processes on a simulated demand-paged machine.",
	Long: `pagingsim runs processes on a simulated demand-paged machine. ` +
		`Physical frames are shared by all the processes and pages that do ` +
		`not fit are swapped to a file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	rootCmd.SetOut(os.Stdout)
}
