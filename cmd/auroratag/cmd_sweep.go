package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/auroratag/internal/app"
	"github.com/yairfalse/auroratag/pkg/resource"
)

var (
	sweepMode string
	sweepKey  string
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Tag every cluster and instance with its cluster identifier",
	Long: `Make one pass over all Aurora clusters in the region, tagging each
cluster and each of its instances with the cluster identifier.

In checked mode (default, key aurora_cluster) a resource that already
carries the key is left alone. In unconditional mode (default key
cluster) every resource is written.`,
	Example: `  auroratag sweep                          # Checked sweep
  auroratag sweep --mode unconditional     # Write every resource
  auroratag sweep --key owner_cluster      # Custom tag key
  auroratag --dry-run sweep                # Show what would be tagged`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVar(&sweepMode, "mode", "", "Tagging mode: checked or unconditional")
	sweepCmd.Flags().StringVar(&sweepKey, "key", "", "Tag key to write")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sweepMode != "" {
		cfg.Tagging.Mode = sweepMode
	}
	if sweepKey != "" {
		cfg.Tagging.Key = sweepKey
	}

	a, err := newApp(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	report, err := a.Sweeper.Sweep(ctx)
	if emitErr := a.Emitter.EmitSweep(ctx, report, err); emitErr != nil {
		a.Logger.Warn().Err(emitErr).Msg("failed to emit sweep report")
	}
	printSweep(cmd.OutOrStdout(), report)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

func printSweep(w io.Writer, report resource.SweepReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KIND\tID\tCLUSTER\tACTION\tREASON")
	for _, o := range report.Outcomes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Kind, o.ID, o.ClusterID, o.Action, o.Reason)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\n%d resources, key %q, mode %s", len(report.Outcomes), report.Key, report.Mode)
	if report.DryRun {
		_, _ = fmt.Fprint(w, " (dry run)")
	}
	_, _ = fmt.Fprintln(w)
}
