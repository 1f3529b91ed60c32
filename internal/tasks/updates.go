package tasks

import "fmt"

// ProgressUpdate represents a progress event during a cleanup run.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchTotal Phase = iota
	FetchPages
	SelectTracks
	RemoveTracks
	RecordCount
)

func (p Phase) String() string {
	switch p {
	case FetchTotal:
		return "fetch_total"
	case FetchPages:
		return "fetch_pages"
	case SelectTracks:
		return "select_tracks"
	case RemoveTracks:
		return "remove_tracks"
	case RecordCount:
		return "record_count"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchingTotalUpdate(playlistID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTotal,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Counting tracks in playlist %s...", playlistID),
	}
}

func fetchedPageUpdate(step, total, offset int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPages,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetched page at offset %d", offset),
	}
}

func selectedTracksUpdate(marked, scanned int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SelectTracks,
		Step:    marked,
		Total:   scanned,
		Message: fmt.Sprintf("Marked %d of %d tracks for removal", marked, scanned),
	}
}

func removingTracksUpdate(n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RemoveTracks,
		Step:    0,
		Total:   n,
		Message: fmt.Sprintf("Removing %d tracks...", n),
	}
}

func recordedCountUpdate(n int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RecordCount,
		Step:    n,
		Total:   n,
		Message: fmt.Sprintf("Signalled counter with %d removals", n),
	}
}
