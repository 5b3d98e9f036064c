package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-research/internal/model"
	"github.com/sells-group/property-research/internal/research"
)

var (
	runReq     research.Request
	runDossier bool
	runTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a single property and wait for the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "run", nil)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout())
			defer cancel()
			if err := env.Close(closeCtx); err != nil {
				zap.L().Warn("close environment", zap.Error(err))
			}
		}()

		res, err := env.Orchestrator.RunAndWait(ctx, runReq, runTimeout)
		if err != nil {
			if res != nil && errors.Is(err, model.ErrStillRunning) {
				fmt.Fprintf(os.Stderr, "Job %s is still %s (%d%%); check it with `jobs status %s`.\n",
					res.Job.ID, res.Job.Status, res.Job.Progress, res.Job.ID)
			}
			return eris.Wrap(err, "research run")
		}

		zap.L().Info("research complete",
			zap.String("job_id", res.Job.ID),
			zap.String("subject", res.Job.Subject.NormalizedAddress),
			zap.Float64("recommended_offer", res.Output.Underwriting.RecommendedOffer),
			zap.Float64("data_confidence", res.Output.Risk.DataConfidence),
		)
		return writeResult(os.Stdout, res.Output, runDossier)
	},
}

// writeResult prints the dossier text or the output as indented JSON.
func writeResult(w io.Writer, out *model.ResearchOutput, dossier bool) error {
	if dossier {
		_, err := io.WriteString(w, out.Dossier)
		return err
	}
	return printJSON(w, out)
}

// shutdownTimeout is how long background jobs may finish before they are
// cancelled.
func shutdownTimeout() time.Duration {
	if cfg != nil && cfg.Server.ShutdownSecs > 0 {
		return time.Duration(cfg.Server.ShutdownSecs) * time.Second
	}
	return 30 * time.Second
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runReq.Address, "address", "", "street address, optionally with city, state and zip (required)")
	f.StringVar(&runReq.City, "city", "", "city")
	f.StringVar(&runReq.State, "state", "", "state name or abbreviation")
	f.StringVar(&runReq.Zip, "zip", "", "postal code")
	f.StringVar(&runReq.Strategy, "strategy", "wholesale", "investment strategy (flip, rental, wholesale)")
	f.StringVar(&runReq.RehabTier, "tier", "medium", "rehab tier (light, medium, heavy)")
	f.BoolVar(&runReq.Extended, "extended", false, "also run the extended worker set")
	f.BoolVar(&runDossier, "dossier", false, "print the dossier instead of JSON")
	f.DurationVar(&runTimeout, "timeout", 0, "how long to wait for the job (default from config)")
	_ = runCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(runCmd)
}
