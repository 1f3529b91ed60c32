package tasks

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
)

// DefaultPageSize is the largest page the playlist API serves.
const DefaultPageSize = 100

// ContributorRule decides whether an entry added by addedBy should be removed.
type ContributorRule interface {
	Remove(addedBy string, contributors []string) bool
}

// MismatchRule removes an entry when any contributor differs from its adder.
//
// With two or more contributors this marks every entry, including those added by a contributor.
type MismatchRule struct{}

func (MismatchRule) Remove(addedBy string, contributors []string) bool {
	for _, c := range contributors {
		if c != addedBy {
			return true
		}
	}
	return false
}

// MembershipRule removes an entry when its adder is not one of the contributors.
type MembershipRule struct{}

func (MembershipRule) Remove(addedBy string, contributors []string) bool {
	return !slices.Contains(contributors, addedBy)
}

// RuleByName returns the rule configured as name ([shared.RuleMismatch] or [shared.RuleMembership]).
func RuleByName(name string) (ContributorRule, error) {
	switch name {
	case "", shared.RuleMismatch:
		return MismatchRule{}, nil
	case shared.RuleMembership:
		return MembershipRule{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown contributor rule %q", shared.ErrInvalidConfig, name)
	}
}

// SelectRemovals returns, in playlist order, the URIs of items the rule marks. Items without a URI are skipped.
func SelectRemovals(items []models.TrackItem, contributors []string, rule ContributorRule) []string {
	uris := []string{}
	for _, item := range items {
		if item.URI == "" {
			continue
		}
		if rule.Remove(item.AddedBy, contributors) {
			uris = append(uris, item.URI)
		}
	}
	return uris
}

// DiffOpts contains configuration for a [DiffEngine].
type DiffOpts struct {
	PageSize          int             // Entries per page request (default: 100)
	MaxConcurrency    int             // Page requests in flight (default: 4)
	RequestsPerSecond float64         // Page request pacing; non-positive disables it
	Rule              ContributorRule // Removal rule (default: MismatchRule)
}

// DiffEngine computes which playlist entries to remove.
type DiffEngine struct {
	pageSize       int
	maxConcurrency int
	limiter        *rate.Limiter
	rule           ContributorRule
}

// NewDiffEngine creates a DiffEngine, filling defaults for unset options.
func NewDiffEngine(opts DiffOpts) *DiffEngine {
	if opts.PageSize <= 0 || opts.PageSize > DefaultPageSize {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.Rule == nil {
		opts.Rule = MismatchRule{}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &DiffEngine{
		pageSize:       opts.PageSize,
		maxConcurrency: opts.MaxConcurrency,
		limiter:        rate.NewLimiter(limit, opts.MaxConcurrency),
		rule:           opts.Rule,
	}
}

// Diff returns the URIs of playlistID's entries that the rule marks for removal.
func (e *DiffEngine) Diff(
	ctx context.Context,
	api services.PlaylistAPI,
	playlistID string,
	contributors []string,
	progress chan<- ProgressUpdate,
) ([]string, error) {
	items, err := e.Fetch(ctx, api, playlistID, progress)
	if err != nil {
		return nil, err
	}

	uris := SelectRemovals(items, contributors, e.rule)
	sendProgress(progress, selectedTracksUpdate(len(uris), len(items)))
	return uris, nil
}

// Fetch returns every entry of playlistID in playlist order.
//
// The page count is total/pageSize + 1, so a total that is an exact multiple of the page
// size requests one trailing empty page. Any page failure cancels the others and is returned.
func (e *DiffEngine) Fetch(ctx context.Context, api services.PlaylistAPI, playlistID string, progress chan<- ProgressUpdate) ([]models.TrackItem, error) {
	sendProgress(progress, fetchingTotalUpdate(playlistID))

	total, err := api.TrackTotal(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}

	pages := total/e.pageSize + 1
	results := make([][]models.TrackItem, pages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for i := range pages {
		offset := i * e.pageSize
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}

			page, err := api.TrackPage(gctx, playlistID, offset, e.pageSize)
			if err != nil {
				return fmt.Errorf("failed to fetch tracks at offset %d: %w", offset, err)
			}

			results[i] = page.Items
			sendProgress(progress, fetchedPageUpdate(i+1, pages, offset))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]models.TrackItem, 0, total)
	for _, page := range results {
		items = append(items, page...)
	}
	return items, nil
}
