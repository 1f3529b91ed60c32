package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spc/internal/models"
)

// ViewState represents the current view in the monitor.
type ViewState int

const (
	InstanceListView ViewState = iota
	HistoryView
	ConfirmView
)

// Source is where the monitor reads instances from and sends terminations to.
type Source interface {
	Instances(ctx context.Context, status models.Status) ([]*models.Checkpoint, error)
	History(ctx context.Context, id string) ([]models.HistoryEvent, error)
	Terminate(ctx context.Context, id, reason string) error
}

// Model represents the monitor state.
type Model struct {
	ctx          context.Context
	view         ViewState
	previous     ViewState
	source       Source
	status       models.Status
	interval     time.Duration
	width        int
	height       int
	instanceList list.Model
	historyList  list.Model
	selected     *models.Checkpoint
	fetchedAt    time.Time
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a monitor polling source every interval, listing instances with status
// (every status when empty).
func NewModel(ctx context.Context, source Source, status models.Status, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	instances := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	instances.Title = "Cleanup Instances"
	history := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	history.Title = "History"

	return &Model{
		ctx:          ctx,
		view:         InstanceListView,
		source:       source,
		status:       status,
		interval:     interval,
		instanceList: instances,
		historyList:  history,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init fetches the instance list and starts the poll tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchInstances(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.instanceList.SetSize(msg.Width-4, msg.Height-8)
		m.historyList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case InstanceListView:
			return m.handleInstanceKeys(msg)
		case HistoryView:
			return m.handleHistoryKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgInstancesFetched:
		data := msg.data.(instancesFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.fetchedAt = time.Now()

		items := make([]list.Item, len(data.checkpoints))
		for i, cp := range data.checkpoints {
			items[i] = instanceItem{checkpoint: cp}
			if m.selected != nil && cp.InstanceID == m.selected.InstanceID {
				m.selected = cp
			}
		}
		return m, m.instanceList.SetItems(items)

	case MsgHistoryFetched:
		data := msg.data.(historyFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil

		items := make([]list.Item, len(data.events))
		for i, ev := range data.events {
			items[i] = eventItem{event: ev}
		}
		m.historyList.Title = fmt.Sprintf("History of %s", data.id)
		cmd := m.historyList.SetItems(items)
		if m.view == InstanceListView {
			m.view = HistoryView
		}
		return m, cmd

	case MsgTerminated:
		if err, _ := msg.data.(error); err != nil {
			m.err = err
		}
		m.view = m.previous
		return m, m.fetchInstances()

	case MsgTick:
		cmds := []tea.Cmd{m.fetchInstances(), m.tick()}
		if m.view == HistoryView && m.selected != nil {
			cmds = append(cmds, m.fetchHistory(m.selected.InstanceID))
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var banner string
	if m.err != nil {
		banner = styles.Err(fmt.Sprintf("Error: %v", m.err)) + "\n\n"
	}

	switch m.view {
	case InstanceListView:
		return banner + m.renderInstances()
	case HistoryView:
		return banner + m.renderHistory()
	case ConfirmView:
		return banner + m.renderConfirm()
	default:
		return ""
	}
}

// Err returns the last fetch or terminate error, nil once a later fetch succeeds.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) handleInstanceKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.instanceList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchInstances()
	case key.Matches(msg, m.keys.enter):
		if cp := m.current(); cp != nil {
			m.selected = cp
			return m, m.fetchHistory(cp.InstanceID)
		}
		return m, nil
	case key.Matches(msg, m.keys.terminate):
		if cp := m.current(); cp != nil && cp.Status == models.StatusRunning {
			m.selected = cp
			m.previous = InstanceListView
			m.view = ConfirmView
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = InstanceListView
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchHistory(m.selected.InstanceID)
	case key.Matches(msg, m.keys.terminate):
		if m.selected.Status == models.StatusRunning {
			m.previous = HistoryView
			m.view = ConfirmView
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.terminate(m.selected.InstanceID)
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = m.previous
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case InstanceListView:
		m.instanceList, cmd = m.instanceList.Update(msg)
	case HistoryView:
		m.historyList, cmd = m.historyList.Update(msg)
	}
	return m, cmd
}

func (m *Model) current() *models.Checkpoint {
	if item, ok := m.instanceList.SelectedItem().(instanceItem); ok {
		return item.checkpoint
	}
	return nil
}

func (m *Model) fetchInstances() tea.Cmd {
	return func() tea.Msg {
		checkpoints, err := m.source.Instances(m.ctx, m.status)
		return instancesFetchedMsg(checkpoints, err)
	}
}

func (m *Model) fetchHistory(id string) tea.Cmd {
	return func() tea.Msg {
		events, err := m.source.History(m.ctx, id)
		return historyFetchedMsg(id, events, err)
	}
}

func (m *Model) terminate(id string) tea.Cmd {
	return func() tea.Msg {
		return terminatedMsg(m.source.Terminate(m.ctx, id, "terminated from monitor"))
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) renderInstances() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.terminate, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	var updated string
	if !m.fetchedAt.IsZero() {
		updated = styles.Help(fmt.Sprintf("updated %s", m.fetchedAt.Format(time.TimeOnly)))
	}
	return fmt.Sprintf("%s\n\n%s\n%s", m.instanceList.View(), updated, helpView)
}

func (m *Model) renderHistory() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.terminate, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.historyList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	cp := m.selected
	title := styles.Title(fmt.Sprintf("Terminate '%s'?", cp.InstanceID))
	info := fmt.Sprintf("\nPlaylist: %s\nGeneration: %d\nPhase: %s\n", cp.Input.PlaylistID, cp.Generation, cp.Phase)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}
