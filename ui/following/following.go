package following

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui/common"
)

const loadLimit = 200

var (
	itemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(0).
			Foreground(lipgloss.Color("86")).
			Bold(true)
)

// Model lists the actors whose Accept has arrived.
type Model struct {
	Following []domain.FollowingActor
	Selected  int
	Width     int
	Height    int
	Err       error
	fed       *activitypub.Federation
	username  string
}

func InitialModel(fed *activitypub.Federation, username string, width, height int) Model {
	return Model{
		Width:    width,
		Height:   height,
		fed:      fed,
		username: username,
	}
}

func (m Model) Init() tea.Cmd {
	return loadFollowing(m.fed, m.username)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case followingLoadedMsg:
		m.Following = msg.following
		m.Err = msg.err
		if m.Selected >= len(m.Following) {
			m.Selected = 0
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Selected > 0 {
				m.Selected--
			}
		case "down", "j":
			if m.Selected < len(m.Following)-1 {
				m.Selected++
			}
		case "r":
			return m, loadFollowing(m.fed, m.username)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("following (%d)", len(m.Following))))
	s.WriteString("\n\n")

	switch {
	case m.Err != nil:
		s.WriteString(common.ErrorStyle.Render(m.Err.Error()))
	case len(m.Following) == 0:
		s.WriteString(common.EmptyStyle.Render("You're not following anyone yet.\nUse the follow user view to start following!"))
	default:
		start := 0
		if m.Selected >= 10 {
			start = m.Selected - 9
		}
		end := min(start+10, len(m.Following))
		for i := start; i < end; i++ {
			a := m.Following[i]
			userText := fmt.Sprintf("• %s (%s)", a.DisplayName(), a.Handle)
			if i == m.Selected {
				s.WriteString("→ " + selectedStyle.Render(userText))
			} else {
				s.WriteString("  " + itemStyle.Render(userText))
			}
			s.WriteString("\n")
		}
		if rest := len(m.Following) - end; rest > 0 {
			s.WriteString(itemStyle.Render(fmt.Sprintf("... and %d more", rest)))
			s.WriteString("\n")
		}
	}

	return s.String()
}

type followingLoadedMsg struct {
	following []domain.FollowingActor
	err       error
}

func loadFollowing(fed *activitypub.Federation, username string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		_, actor, err := fed.LocalActor(ctx, username)
		if err != nil {
			return followingLoadedMsg{err: err}
		}
		following, err := fed.DB().ReadFollowing(ctx, actor.Id, loadLimit, 0)
		return followingLoadedMsg{following: following, err: err}
	}
}
