package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reago",
		Short: "Dependency-tracked reactive state for Go",
		Long: `Reago wraps a record of values and methods in a reactive container:
every value becomes an observable cell, and consumers either watch cells
explicitly or have their dependencies inferred by tracing which keys a
selector reads.

The CLI runs a live server around a model: a JSON API for reading and
writing cells, and a WebSocket endpoint that pushes changes for watched
cells.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
