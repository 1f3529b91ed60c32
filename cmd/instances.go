package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spc/internal/formatter"
	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
	"github.com/desertthunder/spc/internal/ui"
)

func inputFromFlags(cmd *cli.Command) models.WorkflowInput {
	return models.WorkflowInput{
		PlaylistID:   cmd.String("playlist"),
		State:        cmd.String("state"),
		Contributors: cmd.StringSlice("contributor"),
	}
}

func parseStatus(s string) (models.Status, error) {
	switch status := models.Status(strings.ToLower(s)); status {
	case "", models.StatusRunning, models.StatusFailed, models.StatusTerminated:
		return status, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q (running, failed, terminated)", shared.ErrInvalidArgument, s)
	}
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// Start asks the running server to start the recurring cleanup for a playlist.
func (r *Runner) Start(ctx context.Context, cmd *cli.Command) error {
	input := inputFromFlags(cmd)
	if len(input.Contributors) == 0 {
		return fmt.Errorf("%w: at least one --contributor is required", shared.ErrMissingArgument)
	}

	r.logger.Info("starting cleanup", "playlist", input.PlaylistID, "state", input.State, "contributors", len(input.Contributors))

	links, err := r.api.StartCleanup(ctx, input)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(links, true)
	}

	r.writePlain("%s %s\n", ui.Styles().OK("✓ Started"), links.ID)
	r.writePlain("Status:    %s\n", links.StatusQueryGetURI)
	r.writePlain("Terminate: %s\n", links.TerminatePostURI)
	return nil
}

// InstancesList lists instances in the requested format, to stdout or a file.
func (r *Runner) InstancesList(ctx context.Context, cmd *cli.Command) error {
	status, err := parseStatus(cmd.String("status"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	checkpoints, err := r.api.Instances(ctx, status)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteInstancesExport(checkpoints, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("instances exported", "path", written, "count", len(checkpoints))
		return r.writePlain("✓ Exported %d instance(s) to %s\n", len(checkpoints), written)
	}

	data, err := formatter.Instances(checkpoints, format)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// InstancesShow prints one instance's checkpoint.
func (r *Runner) InstancesShow(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	cp, err := r.api.Instance(ctx, id)
	if err != nil {
		return err
	}

	styles := ui.Styles()
	r.writePlainHeader(cp.InstanceID)
	r.writePlain("Status:       %s\n", styles.Status(cp.Status))
	r.writePlain("Phase:        %s (attempt %d)\n", cp.Phase, cp.Attempt)
	r.writePlain("Generation:   %d (run %s)\n", cp.Generation, cp.RunID)
	r.writePlain("Playlist:     %s\n", cp.Input.PlaylistID)
	r.writePlain("State:        %s\n", cp.Input.State)
	r.writePlain("Contributors: %s\n", strings.Join(cp.Input.Contributors, ", "))
	if cp.WakeAt != nil {
		r.writePlain("Wakes at:     %s\n", cp.WakeAt.Local().Format("2006-01-02 15:04:05"))
	}
	if cp.LastResult != "" {
		r.writePlain("Last result:  %s\n", cp.LastResult)
	}
	if cp.Error != "" {
		r.writePlain("Error:        %s\n", styles.Err(cp.Error))
	}
	return nil
}

// InstancesHistory prints the current generation's history of an instance.
func (r *Runner) InstancesHistory(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	events, err := r.api.History(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(events, true)
	}

	data, err := formatter.HistoryToText(events)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// InstancesTerminate terminates an instance.
func (r *Runner) InstancesTerminate(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	if err := r.api.Terminate(ctx, id, cmd.String("reason")); err != nil {
		return err
	}
	r.logger.Info("instance terminated", "instance", id)
	return r.writePlain("✓ Terminated %s\n", id)
}

// CounterGet prints the removal count for a state.
func (r *Runner) CounterGet(ctx context.Context, cmd *cli.Command) error {
	state, err := requireArg(cmd, "state")
	if err != nil {
		return err
	}

	st, err := r.api.Counter(ctx, state)
	if err != nil {
		return err
	}
	if !st.Exists {
		return r.writePlain("%s: no removals recorded\n", state)
	}
	return r.writePlain("%s: %d song(s) removed\n", state, st.Value)
}

// CounterReset sets the removal count for a state to zero.
func (r *Runner) CounterReset(ctx context.Context, cmd *cli.Command) error {
	state, err := requireArg(cmd, "state")
	if err != nil {
		return err
	}

	st, err := r.api.ResetCounter(ctx, state)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s reset to %d\n", state, st.Value)
}

// CounterHistory prints recent counter operations for a state, newest first.
func (r *Runner) CounterHistory(ctx context.Context, cmd *cli.Command) error {
	state, err := requireArg(cmd, "state")
	if err != nil {
		return err
	}

	entries, err := r.api.CounterHistory(ctx, state, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	data, err := formatter.CounterHistoryToText(entries)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// Watch launches the interactive instance monitor against the running server.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	status, err := parseStatus(cmd.String("status"))
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.api, status, cmd.Duration("every"))
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
