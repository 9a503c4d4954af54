package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/client"
	"github.com/nitronimbus/nitronimbus/internal/discovery"
	"github.com/nitronimbus/nitronimbus/internal/globals"
)

var (
	remoteServer   string
	remoteDiscover bool
	remoteHours    uint
)

// remoteCmd represents the remote command
var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Query a running nitronimbus service",
	Long: `Commands that talk to the HTTP API of a running "nitronimbus serve".

The service is taken from --server, or found on the local network with
--discover. Without either, the configured listen address on this host is used.`,
}

var remoteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the service is connected to its device",
	Run: func(cmd *cobra.Command, args []string) {
		c := remoteClient(cmd)
		status, err := c.Status(cmd.Context())
		if err != nil {
			exitWithError("%v", err)
		}
		printJSON(status)
	},
}

var remoteToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Connect or disconnect the service's device link",
	Run: func(cmd *cobra.Command, args []string) {
		c := remoteClient(cmd)
		status, err := c.Toggle(cmd.Context())
		if err != nil {
			exitWithError("%v", err)
		}
		printJSON(status)
	},
}

var remoteLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the service's most recent reading",
	Run: func(cmd *cobra.Command, args []string) {
		c := remoteClient(cmd)
		reading, err := c.Latest(cmd.Context())
		if errors.Is(err, client.ErrNoData) {
			fmt.Println("No readings found.")
			return
		}
		if err != nil {
			exitWithError("%v", err)
		}
		printJSON(reading)
	},
}

var remoteStatisticsCmd = &cobra.Command{
	Use:   "statistics",
	Short: "Print the service's statistics for today",
	Run: func(cmd *cobra.Command, args []string) {
		c := remoteClient(cmd)
		stat, err := c.StatisticsToday(cmd.Context())
		if errors.Is(err, client.ErrNoData) {
			fmt.Println("No statistics for today.")
			return
		}
		if err != nil {
			exitWithError("%v", err)
		}
		printJSON(stat)
	},
}

var remoteHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List the service's readings from the last N hours",
	Run: func(cmd *cobra.Command, args []string) {
		c := remoteClient(cmd)
		list, err := c.History(cmd.Context(), remoteHours)
		if err != nil {
			exitWithError("%v", err)
		}
		printReadings(list)
	},
}

func remoteClient(cmd *cobra.Command) *client.Client {
	server := remoteServer

	switch {
	case server != "":
	case remoteDiscover:
		endpoint, err := discovery.First(cmd.Context(), discovery.BROWSE_TIMEOUT, globals.Logger)
		if err != nil {
			exitWithError("%v", err)
		}
		globals.Logger.Info("Discovered query service", "instance", endpoint.Instance, "url", endpoint.URL())
		server = endpoint.URL()
	default:
		server = localAddress(globals.Settings.ListenAddress)
	}

	return client.NewClient(server, globals.Logger)
}

// localAddress turns a listen address such as ":5000" into one to dial.
func localAddress(listen string) string {
	if len(listen) > 0 && listen[0] == ':' {
		return "127.0.0.1" + listen
	}
	return listen
}

func init() {
	rootCmd.AddCommand(remoteCmd)

	remoteCmd.PersistentFlags().StringVarP(&remoteServer, "server", "s", "", "Base URL or host:port of the service")
	remoteCmd.PersistentFlags().BoolVar(&remoteDiscover, "discover", false, "Find the service over mDNS")
	remoteHistoryCmd.Flags().UintVar(&remoteHours, "hours", 24, "Size of the window in hours")

	remoteCmd.AddCommand(remoteStatusCmd)
	remoteCmd.AddCommand(remoteToggleCmd)
	remoteCmd.AddCommand(remoteLatestCmd)
	remoteCmd.AddCommand(remoteStatisticsCmd)
	remoteCmd.AddCommand(remoteHistoryCmd)
}
