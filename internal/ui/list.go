package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/spc/internal/models"
)

var (
	_ list.Item = instanceItem{}
	_ list.Item = eventItem{}
)

// instanceItem wraps [models.Checkpoint] to implement [list.Item].
type instanceItem struct {
	checkpoint *models.Checkpoint
}

func (i instanceItem) FilterValue() string { return i.checkpoint.InstanceID }
func (i instanceItem) Title() string {
	return fmt.Sprintf("%s  %s", i.checkpoint.InstanceID, styles.Status(i.checkpoint.Status))
}
func (i instanceItem) Description() string {
	cp := i.checkpoint
	desc := fmt.Sprintf("gen %d • %s • playlist %s", cp.Generation, cp.Phase, cp.Input.PlaylistID)
	if cp.WakeAt != nil {
		desc = fmt.Sprintf("%s • wakes %s", desc, cp.WakeAt.Local().Format(time.Kitchen))
	}
	if cp.Error != "" {
		desc = fmt.Sprintf("%s • %s", desc, cp.Error)
	} else if cp.LastResult != "" {
		desc = fmt.Sprintf("%s • %s", desc, cp.LastResult)
	}
	return desc
}

// eventItem wraps [models.HistoryEvent] to implement [list.Item].
type eventItem struct {
	event models.HistoryEvent
}

func (i eventItem) FilterValue() string { return string(i.event.Kind) }
func (i eventItem) Title() string {
	return fmt.Sprintf("#%d %s", i.event.Sequence, i.event.Kind)
}
func (i eventItem) Description() string {
	desc := i.event.CreatedAt.Local().Format(time.DateTime)
	if i.event.Phase != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.event.Phase)
	}
	if i.event.Detail != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.event.Detail)
	}
	return desc
}
