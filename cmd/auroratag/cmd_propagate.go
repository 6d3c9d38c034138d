package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/spf13/cobra"

	"github.com/yairfalse/auroratag/internal/app"
	"github.com/yairfalse/auroratag/internal/handler"
	"github.com/yairfalse/auroratag/pkg/resource"
)

var propagateEvent string

// propagateCmd represents the propagate command
var propagateCmd = &cobra.Command{
	Use:   "propagate [instance-id]",
	Short: "Replace an instance's tags with its cluster's tags",
	Long: `Remove every tag on an Aurora instance and copy its cluster's tags
onto it. An instance that is not part of a cluster is left untouched.

With --event, replay an SNS event JSON file exactly as the
aurora-propagate Lambda function would receive it.`,
	Example: `  auroratag propagate orders-3             # One instance
  auroratag propagate --event event.json   # Replay an SNS delivery
  auroratag --dry-run propagate orders-3   # Show the planned change`,
	Args: func(_ *cobra.Command, args []string) error {
		switch {
		case propagateEvent != "" && len(args) > 0:
			return errors.New("give an instance id or --event, not both")
		case propagateEvent == "" && len(args) != 1:
			return errors.New("requires an instance id or --event")
		}
		return nil
	},
	RunE: runPropagate,
}

func init() {
	rootCmd.AddCommand(propagateCmd)

	propagateCmd.Flags().StringVar(&propagateEvent, "event", "", "SNS event JSON file to replay")
}

func runPropagate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	if propagateEvent != "" {
		ev, err := readEvent(propagateEvent)
		if err != nil {
			return err
		}
		resp, err := handler.NewPropagate(a.Propagator, a.Emitter, a.Logger).Handle(ctx, ev)
		if err != nil {
			if handler.IsMalformed(err) {
				return fmt.Errorf("unreadable event in %s: %w", propagateEvent, err)
			}
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Body)
		return nil
	}

	report, err := a.Propagator.Propagate(ctx, args[0])
	if emitErr := a.Emitter.EmitPropagation(ctx, report, err); emitErr != nil {
		a.Logger.Warn().Err(emitErr).Msg("failed to emit propagation report")
	}
	if err != nil {
		return fmt.Errorf("propagate %s: %w", args[0], err)
	}
	printPropagation(cmd.OutOrStdout(), report)
	return nil
}

// readEvent loads an SNS event as delivered to Lambda.
func readEvent(path string) (events.SNSEvent, error) {
	var ev events.SNSEvent
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator input
	if err != nil {
		return ev, fmt.Errorf("read event: %w", err)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("parse event: %w", err)
	}
	return ev, nil
}

func printPropagation(w io.Writer, report resource.PropagationReport) {
	if report.Orphan {
		_, _ = fmt.Fprintf(w, "instance %s is not part of a cluster; nothing to do\n", report.InstanceID)
		return
	}
	if report.Outcome.Action == resource.ActionSkipped {
		_, _ = fmt.Fprintf(w, "instance %s skipped: %s\n", report.InstanceID, report.Outcome.Reason)
		return
	}

	_, _ = fmt.Fprintf(w, "instance %s <- cluster %s (%s)\n", report.InstanceID, report.ClusterID, report.Outcome.Action)
	for _, key := range report.Diff.Remove {
		if _, kept := report.Diff.Add[key]; !kept {
			_, _ = fmt.Fprintf(w, "  - %s\n", key)
		}
	}
	for _, key := range report.Diff.Add.Keys() {
		_, _ = fmt.Fprintf(w, "  + %s=%s\n", key, report.Diff.Add[key])
	}
}
