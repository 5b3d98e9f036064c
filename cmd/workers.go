package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/property-research/internal/worker"
)

var workersJSON bool

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List the registered research workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, _, err := buildRegistry(cfg)
		if err != nil {
			return err
		}
		if workersJSON {
			return printJSON(os.Stdout, describeWorkers(reg))
		}
		formatWorkers(os.Stdout, reg)
		return nil
	},
}

// workerInfo is the listing form of a worker.
type workerInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Set         string `json:"set"`
	Critical    bool   `json:"critical"`
	TimeoutSecs int    `json:"timeout_secs"`
	Label       string `json:"label"`
}

func describeWorkers(reg *worker.Registry) []workerInfo {
	all := reg.All()
	out := make([]workerInfo, 0, len(all))
	for _, w := range all {
		timeout := w.Timeout()
		if timeout <= 0 {
			timeout = worker.DefaultTimeout
		}
		out = append(out, workerInfo{
			Name:        w.Name(),
			Category:    string(w.Category()),
			Set:         w.Set().String(),
			Critical:    w.Critical(),
			TimeoutSecs: int(timeout.Seconds()),
			Label:       w.Label(),
		})
	}
	return out
}

// formatWorkers writes the registry as a table.
func formatWorkers(out io.Writer, reg *worker.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCATEGORY\tSET\tCRITICAL\tTIMEOUT\tLABEL")
	for _, info := range describeWorkers(reg) {
		critical := ""
		if info.Critical {
			critical = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%ds\t%s\n",
			info.Name, info.Category, info.Set, critical, info.TimeoutSecs, info.Label)
	}
	_ = w.Flush()
}

func init() {
	workersCmd.Flags().BoolVar(&workersJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(workersCmd)
}
