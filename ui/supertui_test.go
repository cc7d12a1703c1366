package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui/common"
)

func testAccount() (*domain.Account, *domain.Actor) {
	id := int64(1)
	acc := &domain.Account{Id: id, Username: "alice", Name: "Alice", CreatedAt: time.Now()}
	actor := &domain.Actor{Id: 1, AccountId: &id, URI: "https://example.com/users/alice", Handle: "@alice@example.com"}
	return acc, actor
}

func update(t *testing.T, m MainModel, msg tea.Msg) MainModel {
	t.Helper()
	next, _ := m.Update(msg)
	mm, ok := next.(MainModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm
}

func TestNewModelWithoutAccountStartsAtSetup(t *testing.T) {
	m := NewModel(nil, nil, nil, 120, 40)
	if m.State() != common.CreateUserView {
		t.Fatalf("Expected setup view, got %d", m.State())
	}

	// tab must not leave the setup form
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.State() != common.CreateUserView {
		t.Errorf("Tab should not leave setup, got %d", m.State())
	}
	// nor may a view switch message
	m = update(t, m, common.FollowersView)
	if m.State() != common.CreateUserView {
		t.Errorf("View switch should be ignored during setup, got %d", m.State())
	}

	acc, actor := testAccount()
	m = update(t, m, common.AccountReadyMsg{Account: acc, Actor: actor})
	if m.State() != common.CreateNoteView {
		t.Errorf("Expected composer after setup, got %d", m.State())
	}
}

func TestTabCycle(t *testing.T) {
	acc, actor := testAccount()
	m := NewModel(nil, acc, actor, 120, 40)
	if m.State() != common.CreateNoteView {
		t.Fatalf("Expected composer, got %d", m.State())
	}

	want := []common.SessionState{
		common.ListNotesView,
		common.TimelineView,
		common.FollowUserView,
		common.FollowersView,
		common.FollowingView,
		common.CreateNoteView,
	}
	for _, w := range want {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
		if m.State() != w {
			t.Fatalf("Expected %d, got %d", w, m.State())
		}
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.State() != common.FollowingView {
		t.Errorf("Shift+tab should go back to following, got %d", m.State())
	}
}

func TestViewRendersHandle(t *testing.T) {
	acc, actor := testAccount()
	m := NewModel(nil, acc, actor, 160, 50)
	m = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 50})
	if v := m.View(); v == "" {
		t.Error("View should not be empty")
	}
	if v := m.headerModel.View(); !strings.Contains(v, "@alice@example.com") {
		t.Errorf("Header should show the handle, got %q", v)
	}
}

