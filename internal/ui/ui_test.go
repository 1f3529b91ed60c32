package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spc/internal/models"
)

type fakeSource struct {
	checkpoints []*models.Checkpoint
	events      []models.HistoryEvent
	err         error
	terminated  []string
}

func (f *fakeSource) Instances(context.Context, models.Status) ([]*models.Checkpoint, error) {
	return f.checkpoints, f.err
}

func (f *fakeSource) History(_ context.Context, id string) ([]models.HistoryEvent, error) {
	return f.events, f.err
}

func (f *fakeSource) Terminate(_ context.Context, id, reason string) error {
	f.terminated = append(f.terminated, id)
	return f.err
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(src *fakeSource) *Model {
	m := NewModel(context.Background(), src, "", 0)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(m.fetchInstances()())
	return m
}

func TestModel(t *testing.T) {
	running := &models.Checkpoint{
		InstanceID: "playlist-cleanup:S1",
		Generation: 3,
		Status:     models.StatusRunning,
		Phase:      models.PhaseWaiting,
		Input:      models.WorkflowInput{PlaylistID: "P1", State: "S1"},
		LastResult: "Removed songs: 4",
	}

	t.Run("Lists Instances", func(t *testing.T) {
		m := newTestModel(&fakeSource{checkpoints: []*models.Checkpoint{running}})

		if got := len(m.instanceList.Items()); got != 1 {
			t.Fatalf("expected 1 item, got %d", got)
		}
		view := m.View()
		if !strings.Contains(view, "playlist-cleanup:S1") {
			t.Errorf("view missing instance id:\n%s", view)
		}
	})

	t.Run("Shows History On Enter", func(t *testing.T) {
		src := &fakeSource{
			checkpoints: []*models.Checkpoint{running},
			events:      []models.HistoryEvent{{Sequence: 1, Kind: models.EventContinuedAsNew, Detail: "from generation 2"}},
		}
		m := newTestModel(src)

		_, cmd := m.Update(keyPress("enter"))
		if cmd == nil {
			t.Fatal("expected a history fetch")
		}
		m.Update(cmd())

		if m.view != HistoryView {
			t.Fatalf("view = %v, want HistoryView", m.view)
		}
		if !strings.Contains(m.View(), "continued_as_new") {
			t.Errorf("history view missing event:\n%s", m.View())
		}

		m.Update(keyPress("esc"))
		if m.view != InstanceListView {
			t.Errorf("esc should return to the instance list")
		}
	})

	t.Run("Terminate Requires Confirmation", func(t *testing.T) {
		src := &fakeSource{checkpoints: []*models.Checkpoint{running}}
		m := newTestModel(src)

		m.Update(keyPress("t"))
		if m.view != ConfirmView {
			t.Fatalf("view = %v, want ConfirmView", m.view)
		}
		m.Update(keyPress("n"))
		if m.view != InstanceListView || len(src.terminated) != 0 {
			t.Fatalf("declining should not terminate")
		}

		m.Update(keyPress("t"))
		_, cmd := m.Update(keyPress("y"))
		m.Update(cmd())
		if len(src.terminated) != 1 || src.terminated[0] != running.InstanceID {
			t.Errorf("terminated = %v", src.terminated)
		}
		if m.view != InstanceListView {
			t.Errorf("view = %v after terminate", m.view)
		}
	})

	t.Run("Finished Instances Cannot Be Terminated", func(t *testing.T) {
		failed := *running
		failed.Status = models.StatusFailed
		m := newTestModel(&fakeSource{checkpoints: []*models.Checkpoint{&failed}})

		m.Update(keyPress("t"))
		if m.view != InstanceListView {
			t.Errorf("view = %v, want InstanceListView", m.view)
		}
	})

	t.Run("Fetch Errors Are Shown And Cleared", func(t *testing.T) {
		src := &fakeSource{err: errors.New("connection refused")}
		m := newTestModel(src)

		if m.Err() == nil || !strings.Contains(m.View(), "connection refused") {
			t.Fatalf("expected error banner, got %q", m.View())
		}

		src.err = nil
		src.checkpoints = []*models.Checkpoint{running}
		m.Update(m.fetchInstances()())
		if m.Err() != nil {
			t.Errorf("error should clear after a successful fetch")
		}
	})
}

func TestPaletteStatus(t *testing.T) {
	for _, status := range []models.Status{models.StatusRunning, models.StatusFailed, models.StatusTerminated} {
		if got := Styles().Status(status); !strings.Contains(got, string(status)) {
			t.Errorf("Status(%s) = %q", status, got)
		}
	}
}
