package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-research/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Write a completed job's output to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, closeFn, err := openReader(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		out, err := o.GetOutput(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}

		path := exportOut
		if path == "" {
			path = fmt.Sprintf("research-%s.xlsx", truncateID(out.JobID))
		}
		if err := export.Save(path, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default research-<job>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
