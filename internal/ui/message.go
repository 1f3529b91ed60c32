package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spc/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the monitor (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgInstancesFetched MsgKind = iota
	MsgHistoryFetched
	MsgTerminated
	MsgTick
)

type instancesFetched struct {
	checkpoints []*models.Checkpoint
	err         error
}

type historyFetched struct {
	id     string
	events []models.HistoryEvent
	err    error
}

// instancesFetchedMsg is the constructor for [MsgInstancesFetched]
func instancesFetchedMsg(checkpoints []*models.Checkpoint, err error) Msg {
	return Msg{kind: MsgInstancesFetched, data: instancesFetched{checkpoints, err}}
}

// historyFetchedMsg is the constructor for [MsgHistoryFetched]
func historyFetchedMsg(id string, events []models.HistoryEvent, err error) Msg {
	return Msg{kind: MsgHistoryFetched, data: historyFetched{id, events, err}}
}

// terminatedMsg is the constructor for [MsgTerminated]
func terminatedMsg(err error) Msg {
	return Msg{kind: MsgTerminated, data: err}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
