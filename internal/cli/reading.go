package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/globals"
	"github.com/nitronimbus/nitronimbus/internal/ingest"
	"github.com/nitronimbus/nitronimbus/internal/readings"
	"github.com/nitronimbus/nitronimbus/internal/statistics"
)

var (
	readingLimit uint
	readingHours uint
)

// readingCmd represents the reading command
var readingCmd = &cobra.Command{
	Use:     "reading",
	Aliases: []string{"r", "readings"},
	Short:   "Query and import sensor readings",
	Long:    `Commands for reading the local store of sensor readings and importing recorded device output.`,
}

var readingLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent reading as JSON",
	Run:   runReadingLatest,
}

var readingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the most recent readings, newest first",
	Run:     runReadingList,
}

var readingHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List readings from the last N hours, newest first",
	Run:   runReadingHistory,
}

var readingImportCmd = &cobra.Command{
	Use:   "import [file|-]",
	Short: "Import recorded device frames",
	Long: `Import newline-delimited device frames from a file, or from standard input
when the file is "-" or omitted. Malformed frames are skipped. The daily
statistics of every date that received readings are recomputed afterwards.

Examples:
  nitronimbus reading import capture.jsonl
  cat /dev/ttyACM0 | head -n 100 | nitronimbus reading import -`,
	Args: cobra.MaximumNArgs(1),
	Run:  runReadingImport,
}

func runReadingLatest(cmd *cobra.Command, args []string) {
	openStore()

	latest, err := readings.NewStore(globals.Store).Latest(context.Background(), 1)
	if err != nil {
		exitWithError("failed to fetch latest reading: %v", err)
	}

	if len(latest) == 0 {
		fmt.Println("No readings found.")
		return
	}

	printJSON(latest[0])
}

func runReadingList(cmd *cobra.Command, args []string) {
	if readingLimit > readings.MAX_LIMIT {
		exitWithError("limit must not exceed %d", readings.MAX_LIMIT)
	}
	openStore()

	list, err := readings.NewStore(globals.Store).Latest(context.Background(), int(readingLimit))
	if err != nil {
		exitWithError("failed to fetch readings: %v", err)
	}

	printReadings(list)
	globals.Logger.Debug("Reading list completed", "count", len(list))
}

func runReadingHistory(cmd *cobra.Command, args []string) {
	openStore()

	list, err := readings.NewStore(globals.Store).Within(context.Background(), readingHours)
	if err != nil {
		exitWithError("failed to fetch history: %v", err)
	}

	printReadings(list)
	globals.Logger.Debug("Reading history completed", "hours", readingHours, "count", len(list))
}

func runReadingImport(cmd *cobra.Command, args []string) {
	input, source, err := openImportSource(args)
	if err != nil {
		exitWithError("%v", err)
	}

	result, err := importReadings(cmd.Context(), input, source)
	_ = input.Close()
	if err != nil {
		exitWithError("import failed after %d readings: %v", result.Stored, err)
	}

	fmt.Printf("Stored %d readings, skipped %d malformed frames, %d failed.\n", result.Stored, result.Skipped, result.Failed)
	for _, date := range result.Recomputed {
		fmt.Printf("Recomputed statistics for %s\n", date)
	}
}

// openImportSource opens the named file, or stdin for "-" or no argument.
// Closing the stdin source leaves stdin open.
func openImportSource(args []string) (io.ReadCloser, string, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}

	file, err := os.Open(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", args[0], err)
	}

	return file, args[0], nil
}

func importReadings(ctx context.Context, input io.Reader, source string) (ingest.ImportResult, error) {
	if _, err := globals.OpenStore(); err != nil {
		return ingest.ImportResult{}, fmt.Errorf("failed to open database: %w", err)
	}

	importer := ingest.NewImporter(
		readings.NewStore(globals.Store),
		statistics.NewAggregator(globals.Store),
		globals.Logger,
	)

	globals.Logger.Info("Importing frames", "source", source)
	return importer.Import(ctx, input)
}

func init() {
	rootCmd.AddCommand(readingCmd)

	readingCmd.AddCommand(readingLatestCmd)
	readingCmd.AddCommand(readingListCmd)
	readingCmd.AddCommand(readingHistoryCmd)
	readingCmd.AddCommand(readingImportCmd)

	readingListCmd.Flags().UintVarP(&readingLimit, "limit", "n", readings.DEFAULT_LIMIT, "Number of readings to show")
	readingHistoryCmd.Flags().UintVar(&readingHours, "hours", 24, "Size of the window in hours")
}
