package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/device"
	"github.com/nitronimbus/nitronimbus/internal/globals"
)

// deviceCmd represents the device command
var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"d"},
	Short:   "Inspect the measurement device link",
	Long:    `Commands for finding the serial port the measurement device is attached to.`,
}

// devicePortsCmd represents the device ports command
var devicePortsCmd = &cobra.Command{
	Use:     "ports",
	Aliases: []string{"ls"},
	Short:   "List serial ports",
	Long:    `List the serial ports present on this machine. The configured port is marked with an asterisk.`,
	Run:     runDevicePorts,
}

func runDevicePorts(cmd *cobra.Command, args []string) {
	ports, err := device.ListPorts()
	if err != nil {
		exitWithError("failed to list serial ports: %v", err)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return
	}

	for _, port := range ports {
		marker := " "
		if port == globals.Settings.SerialPort {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, port)
	}

	globals.Logger.Debug("Port list completed", "count", len(ports))
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(devicePortsCmd)
}
