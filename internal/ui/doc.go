// Package ui implements a terminal monitor for cleanup instances using bubbletea's Elm architecture.
//
// The monitor has three views:
//  1. [InstanceListView] : Browse instances with their status, phase and generation
//  2. [HistoryView] : Inspect the current generation's history of the selected instance
//  3. [ConfirmView] : Confirm terminating the selected instance
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the [Msg] union type.
// Instances are polled from a [Source] (normally the running server's API) on a fixed tick.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, t, y/n, r, q) with contextual help
// displayed via charmbracelet/bubbles/help. [Palette] also colors plain CLI output.
package ui
