package main

import (
	"fmt"
	"io"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"recut/internal/api"
	"recut/internal/config"
	"recut/internal/daemonrun"
	"recut/internal/pipeline"
	"recut/internal/preflight"
	"recut/internal/project"
)

type statusReport struct {
	Daemon       daemonState            `json:"daemon"`
	Stages       map[string]int         `json:"stages"`
	Steps        []pipeline.Health      `json:"steps"`
	Checks       []preflight.Result     `json:"checks"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
}

type daemonState struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Bind    string `json:"bind"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, project, and dependency health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{Daemon: probeDaemon(cfg)}
			err = ctx.withRuntime(cmd, func(rt *daemonrun.Runtime) error {
				counts, err := rt.Store.StageCounts(cmd.Context())
				if err != nil {
					return err
				}
				report.Stages = make(map[string]int, len(counts))
				for stage, n := range counts {
					report.Stages[string(stage)] = n
				}
				report.Steps = rt.Runner.Health()
				return nil
			})
			if err != nil {
				return err
			}
			report.Checks = preflight.RunAll(cmd.Context(), cfg)
			report.Dependencies = preflight.CheckSystemDeps(cfg)
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, report, shouldColorize(out))
			return nil
		},
	}
}

// probeDaemon treats a held instance lock as a running daemon.
func probeDaemon(cfg *config.Config) daemonState {
	state := daemonState{Bind: cfg.API.Bind}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return state
	}
	if locked {
		_ = lock.Unlock()
		return state
	}
	state.Running = true
	state.PID = daemonrun.ReadPID(cfg)
	return state
}

func renderStatus(out io.Writer, r statusReport, colorize bool) {
	printLines(out, renderSectionHeader("Daemon", colorize)...)
	if r.Daemon.Running {
		msg := "Running on " + r.Daemon.Bind
		if r.Daemon.PID > 0 {
			msg = fmt.Sprintf("%s (pid %d)", msg, r.Daemon.PID)
		}
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, msg, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}

	fmt.Fprintln(out)
	printLines(out, renderSectionHeader("Projects", colorize)...)
	total := 0
	for _, stage := range project.AllStages() {
		n := r.Stages[string(stage)]
		total += n
		if n == 0 {
			continue
		}
		fmt.Fprintln(out, renderStatusLine(string(stage), statusInfo, fmt.Sprintf("%d", n), colorize))
	}
	if total == 0 {
		fmt.Fprintln(out, renderStatusLine("Projects", statusInfo, "None", colorize))
	}

	fmt.Fprintln(out)
	printLines(out, renderSectionHeader("Steps", colorize)...)
	for _, h := range r.Steps {
		if h.Ready {
			fmt.Fprintln(out, renderStatusLine(string(h.Step), statusOK, "Ready", colorize))
		} else {
			fmt.Fprintln(out, renderStatusLine(string(h.Step), statusWarn, h.Detail, colorize))
		}
	}

	fmt.Fprintln(out)
	printLines(out, renderSectionHeader("Checks", colorize)...)
	for _, c := range r.Checks {
		kind := statusOK
		if !c.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(c.Name, kind, c.Detail, colorize))
	}
	for _, dep := range r.Dependencies {
		kind := statusOK
		detail := dep.Command
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			detail = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}
