package followuser

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/ui/common"
)

type Model struct {
	TextInput textinput.Model
	Status    string
	Error     string
	Busy      bool
	fed       *activitypub.Federation
	username  string
}

func InitialModel(fed *activitypub.Federation, username string) Model {
	ti := textinput.New()
	ti.Placeholder = "user@mastodon.social"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		TextInput: ti,
		fed:       fed,
		username:  username,
	}
}

// followResultMsg reports the outcome of a follow request.
type followResultMsg struct {
	target string
	err    error
}

func followCmd(fed *activitypub.Federation, username string, target string) tea.Cmd {
	return func() tea.Msg {
		err := fed.RequestFollow(context.Background(), username, target)
		return followResultMsg{target: target, err: err}
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case followResultMsg:
		m.Busy = false
		if msg.err != nil {
			m.Error = fmt.Sprintf("Failed: %v", msg.err)
			m.Status = ""
			return m, nil
		}
		m.Status = fmt.Sprintf("✓ Sent follow request to %s", msg.target)
		m.Error = ""
		m.TextInput.SetValue("")
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.Busy {
				return m, nil
			}
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				m.Error = "Please enter user@domain or an actor URL"
				return m, nil
			}
			if !activitypub.LooksLikeActorReference(input) {
				m.Error = "Invalid format. Use: user@domain.com or https://..."
				return m, nil
			}

			m.Busy = true
			m.Status = fmt.Sprintf("Following %s...", input)
			m.Error = ""
			return m, followCmd(m.fed, m.username, input)
		case "esc":
			m.TextInput.SetValue("")
			m.Status = ""
			m.Error = ""
			return m, nil
		}
	}

	m.TextInput, cmd = m.TextInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render("follow remote user"))
	s.WriteString("\n\n")
	s.WriteString("Enter ActivityPub address (e.g., user@mastodon.social):\n\n")
	s.WriteString(m.TextInput.View())
	s.WriteString("\n\n")

	if m.Status != "" {
		s.WriteString(common.StatusStyle.Render(m.Status))
		s.WriteString("\n")
	}

	if m.Error != "" {
		s.WriteString(common.ErrorStyle.Render(m.Error))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(common.HelpStyle.Render("enter: follow • esc: clear • tab: switch view • shift+tab: prev view"))

	return s.String()
}
