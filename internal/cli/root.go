package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/globals"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nitronimbus",
	Short: "CO/NOx sensor ingestion and query service",
	Long: `nitronimbus reads CO and NOx measurements from a serial-attached device,
stores every reading, keeps a per-day summary up to date and answers queries
about both over HTTP.

Run "nitronimbus serve" to start ingesting and serving, or use the reading
and statistics commands to inspect the local store.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		globals.Initialize(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		globals.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupt and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
}

// exitWithError reports a failed command the way every subcommand does.
func exitWithError(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if globals.Logger != nil {
		globals.Logger.Debug("Command failed", "error", message)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	globals.Close()
	os.Exit(1)
}

// openStore opens the shared store handle or exits.
func openStore() {
	if _, err := globals.OpenStore(); err != nil {
		exitWithError("failed to open database: %v", err)
	}
}
