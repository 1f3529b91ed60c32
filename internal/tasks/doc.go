// Package tasks implements the activities of the playlist cleanup workflow.
//
// # Activities
//
//  1. [Refresher.Refresh] : keeps the access token for a state valid across the next cycle
//     - Reads the access token expiry and the refresh token from the [Vault]
//     - Renews when [NeedsRenewal] says the token would expire within the slack
//     - Renewal problems are logged, never returned
//
//  2. [Cleaner.Cleanup] : removes tracks added by users outside the contributor list
//     - Loads the access token from the [Vault]
//     - Computes the removal set with a [DiffEngine]
//     - Removes the tracks and signals the removal counter
//
// # Track Diff
//
// [DiffEngine] counts the playlist entries, then fetches every page concurrently (bounded by
// an errgroup limit and paced by a rate limiter) and joins them in playlist order. A
// [ContributorRule] decides which entries to remove:
//   - [MismatchRule] : removed when any contributor differs from the adder
//   - [MembershipRule] : removed when the adder is not a contributor
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate] values. Updates use select with
// default so reporting never blocks the work.
package tasks
