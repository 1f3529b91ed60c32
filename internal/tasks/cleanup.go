package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/counter"
	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
)

// InvalidInputResult is returned by [Cleaner.Cleanup] for input without a playlist or state.
const InvalidInputResult = "Invalid input"

// Cleaner runs one cleanup pass over a playlist.
type Cleaner struct {
	vault    Vault
	provider services.Provider
	diff     *DiffEngine
	counter  Counter
	logger   *log.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(vault Vault, provider services.Provider, diff *DiffEngine, ctr Counter, logger *log.Logger) *Cleaner {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Cleaner{vault: vault, provider: provider, diff: diff, counter: ctr, logger: logger}
}

// Cleanup removes the entries the diff marks and records how many were removed.
//
// Invalid input returns [InvalidInputResult] with no error and touches nothing. The returned
// summary reports the counter's previous total plus this run's removals, or 0 when the counter
// did not exist yet.
func (c *Cleaner) Cleanup(ctx context.Context, input models.WorkflowInput) (string, error) {
	return c.run(ctx, input, nil)
}

func (c *Cleaner) run(ctx context.Context, input models.WorkflowInput, progress chan<- ProgressUpdate) (string, error) {
	if err := input.Validate(); err != nil {
		c.logger.Warn("skipping cleanup", "error", err)
		return InvalidInputResult, nil
	}

	logger := shared.WithLogger(c.logger, "state", input.State, "playlist", input.PlaylistID)

	creds, err := loadCredentials(ctx, c.vault, input.State)
	if err != nil {
		return "", err
	}

	api := c.provider.Playlists(creds.AccessToken)

	uris, err := c.diff.Diff(ctx, api, input.PlaylistID, input.Contributors, progress)
	if err != nil {
		return "", err
	}

	key := models.CounterKey(input.State)
	removed := len(uris)
	if removed > 0 {
		sendProgress(progress, removingTracksUpdate(removed))
		if n, err := api.RemoveTracks(ctx, input.PlaylistID, uris); err != nil {
			// removed tracks are gone from the next diff, so they are counted now or never
			if n > 0 {
				if serr := c.counter.Signal(key, counter.OpAdd, int64(n)); serr != nil {
					return "", errors.Join(err, serr)
				}
				logger.Warn("partial removal recorded", "removed", n, "of", removed, "error", err)
			}
			return "", err
		}
	}

	prev, err := c.counter.Read(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read removal counter: %w", err)
	}
	if err := c.counter.Signal(key, counter.OpAdd, int64(removed)); err != nil {
		return "", fmt.Errorf("failed to signal removal counter: %w", err)
	}
	sendProgress(progress, recordedCountUpdate(removed))

	total := int64(0)
	if prev.Exists {
		total = prev.Value + int64(removed)
	}

	logger.Info("cleanup complete", "removed", removed, "total", total)
	return fmt.Sprintf("Removed songs: %d", total), nil
}

// Preview computes the removal set for input without removing anything or touching the counter.
func (c *Cleaner) Preview(ctx context.Context, input models.WorkflowInput, progress chan<- ProgressUpdate) ([]string, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	creds, err := loadCredentials(ctx, c.vault, input.State)
	if err != nil {
		return nil, err
	}
	return c.diff.Diff(ctx, c.provider.Playlists(creds.AccessToken), input.PlaylistID, input.Contributors, progress)
}
