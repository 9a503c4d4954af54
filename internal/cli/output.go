package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nitronimbus/nitronimbus/internal/models"
)

func printJSON(v any) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitWithError("failed to format response: %v", err)
	}

	fmt.Println(string(output))
}

func printReadings(readings []models.SensorReading) {
	if len(readings) == 0 {
		fmt.Println("No readings found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TIMESTAMP\tCO BEFORE\tNOX BEFORE\tCO AFTER\tNOX AFTER\tCO RED. %\tNOX RED. %")
	fmt.Fprintln(w, "---------\t---------\t----------\t--------\t---------\t---------\t----------")

	for _, r := range readings {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f\t%.1f\n",
			r.Timestamp.Format(time.RFC3339),
			r.COBefore,
			r.NOxBefore,
			r.COAfter,
			r.NOxAfter,
			r.COReduction,
			r.NOxReduction,
		)
	}
}
