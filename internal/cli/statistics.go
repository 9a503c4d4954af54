package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/globals"
	"github.com/nitronimbus/nitronimbus/internal/models"
	"github.com/nitronimbus/nitronimbus/internal/statistics"
)

// statisticsCmd represents the statistics command
var statisticsCmd = &cobra.Command{
	Use:     "statistics",
	Aliases: []string{"s", "stats"},
	Short:   "Show and rebuild daily statistics",
}

var statisticsShowCmd = &cobra.Command{
	Use:   "show [YYYY-MM-DD]",
	Short: "Print the statistics for a date (default today) as JSON",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatisticsShow,
}

var statisticsRecomputeCmd = &cobra.Command{
	Use:   "recompute [YYYY-MM-DD]",
	Short: "Rebuild the statistics for a date (default today) from stored readings",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatisticsRecompute,
}

func statisticsDay(aggregator *statistics.Aggregator, args []string) time.Time {
	if len(args) == 0 {
		return aggregator.Today()
	}

	day, err := aggregator.ParseDate(args[0])
	if err != nil {
		exitWithError("%v", err)
	}

	return day
}

func runStatisticsShow(cmd *cobra.Command, args []string) {
	openStore()

	aggregator := statistics.NewAggregator(globals.Store)
	day := statisticsDay(aggregator, args)

	stat, err := aggregator.Get(context.Background(), day)
	if err != nil {
		exitWithError("failed to fetch statistics: %v", err)
	}

	if stat == nil {
		fmt.Printf("No statistics for %s.\n", day.Format(models.DateLayout))
		return
	}

	printJSON(stat)
}

func runStatisticsRecompute(cmd *cobra.Command, args []string) {
	openStore()

	aggregator := statistics.NewAggregator(globals.Store)
	day := statisticsDay(aggregator, args)

	stat, err := aggregator.Recompute(context.Background(), day)
	if err != nil {
		exitWithError("failed to recompute statistics: %v", err)
	}

	if stat == nil {
		fmt.Printf("No readings for %s, nothing written.\n", day.Format(models.DateLayout))
		return
	}

	globals.Logger.Info("Statistics recomputed", "date", stat.Date, "readings", stat.ReadingCount)
	printJSON(stat)
}

func init() {
	rootCmd.AddCommand(statisticsCmd)

	statisticsCmd.AddCommand(statisticsShowCmd)
	statisticsCmd.AddCommand(statisticsRecomputeCmd)
}
