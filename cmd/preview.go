package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spc/internal/tasks"
	"github.com/desertthunder/spc/internal/ui"
)

// Preview computes the removal set for a playlist with the local configuration and vault.
//
// Nothing is removed and the counter is not touched.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	input := inputFromFlags(cmd)

	s, err := r.buildStack()
	if err != nil {
		return err
	}
	defer s.close(context.Background())

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	uris, err := s.cleaner.Preview(ctx, input, progress)
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"playlistId": input.PlaylistID,
			"rule":       r.config.Cleanup.ContributorRule,
			"remove":     uris,
		}, true)
	}

	styles := ui.Styles()
	r.writePlainHeader("Cleanup preview: " + input.PlaylistID)
	if len(uris) == 0 {
		return r.writePlain("%s\n", styles.OK("Nothing to remove"))
	}
	for _, uri := range uris {
		r.writePlain("  %s\n", uri)
	}
	return r.writePlainln("%s", styles.Warn(formatCount(len(uris))))
}

func formatCount(n int) string {
	if n == 1 {
		return "1 track would be removed"
	}
	return fmt.Sprintf("%d tracks would be removed", n)
}
