package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recut/internal/daemonrun"
	"recut/internal/progress"
	"recut/internal/project"
	"recut/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <project> [step]",
		Short: "Run a pipeline step and stream its progress",
		Long: "Run a pipeline step in the foreground. Without a step, the next step for the " +
			"project's current stage runs. Interrupting the command cancels the step and " +
			"leaves the project at its last committed stage.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				step, err := resolveStep(runCtx, rt, args)
				if err != nil {
					return err
				}
				stream, err := rt.Runner.Start(runCtx, args[0], step)
				if err != nil {
					return err
				}
				return ctx.followStream(cmd, args[0], step, stream)
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <project>",
		Short: "Rewind a failed project and rerun the step that failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				p, err := rt.Runner.Get(runCtx, args[0])
				if err != nil {
					return err
				}
				if p.Failure == nil {
					return services.Wrap(services.ErrConflict, "cli", "retry", fmt.Sprintf("project %s has not failed", p.ID), nil)
				}
				stream, err := rt.Runner.Retry(runCtx, args[0])
				if err != nil {
					return err
				}
				return ctx.followStream(cmd, args[0], p.Failure.Step, stream)
			})
		},
	}
}

func resolveStep(ctx context.Context, rt *daemonrun.Runtime, args []string) (project.Step, error) {
	if len(args) > 1 {
		return project.ParseStep(args[1])
	}
	p, err := rt.Runner.Get(ctx, args[0])
	if err != nil {
		return "", err
	}
	step, ok := project.NextStep(p.Effective())
	if !ok {
		return "", services.Wrap(services.ErrConflict, "cli", "run", fmt.Sprintf("project %s has no next step from stage %s", p.ID, p.Stage), nil)
	}
	return step, nil
}

// followStream prints events until the step ends. With --json every event
// is written as one NDJSON line.
func (c *commandContext) followStream(cmd *cobra.Command, projectID string, step project.Step, stream *progress.Stream) error {
	out := cmd.OutOrStdout()
	var sink func(progress.Event) error
	if c.jsonOutput() {
		sink = progress.NewEncoder(out).Encode
	} else {
		sink = eventPrinter(out, step, shouldColorize(out))
	}
	err := stream.Drain(sink)
	if services.IsAborted(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s cancelled; project %s unchanged\n", step, projectID)
	}
	return err
}

func eventPrinter(out io.Writer, step project.Step, colorize bool) func(progress.Event) error {
	label := string(step)
	return func(evt progress.Event) error {
		switch evt.Status {
		case progress.StatusComplete:
			fmt.Fprintln(out, renderStatusLine(label, statusOK, evt.Message, colorize))
		case progress.StatusError:
			fmt.Fprintln(out, renderStatusLine(label, statusError, evt.Error, colorize))
		default:
			fmt.Fprintln(out, renderStatusLine(label, statusInfo, evt.String(), colorize))
		}
		return nil
	}
}
