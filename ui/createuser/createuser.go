package createuser

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/ui/common"
	"github.com/deemkeen/microblog/util"
)

var (
	Style = lipgloss.NewStyle().Height(25).Width(80).
		Align(lipgloss.Center, lipgloss.Center).
		BorderStyle(lipgloss.ThickBorder()).
		Margin(0, 3)
)

// Model is the first-run form that creates the single local account.
type Model struct {
	TextInput   textinput.Model
	DisplayName textinput.Model
	Step        int // 0=username, 1=display name
	Busy        bool
	Err         error
	fed         *activitypub.Federation
}

func InitialModel(fed *activitypub.Federation) Model {
	ti := textinput.New()
	ti.Placeholder = "alice"
	ti.Focus()
	ti.CharLimit = 50
	ti.Width = 30

	displayName := textinput.New()
	displayName.Placeholder = "Alice Liddell"
	displayName.CharLimit = 100
	displayName.Width = 50

	return Model{
		TextInput:   ti,
		DisplayName: displayName,
		fed:         fed,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func createAccountCmd(fed *activitypub.Federation, username string, name string) tea.Cmd {
	return func() tea.Msg {
		acc, actor, err := fed.CreateLocalAccount(context.Background(), username, name)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		return common.AccountReadyMsg{Account: acc, Actor: actor}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case common.ErrMsg:
		m.Err = msg.Err
		m.Busy = false
		return m, nil
	case tea.KeyMsg:
		if m.Busy {
			return m, nil
		}
		switch msg.String() {
		case "enter":
			if m.Step == 0 {
				if strings.TrimSpace(m.TextInput.Value()) == "" {
					m.Err = fmt.Errorf("username must not be empty")
					return m, nil
				}
				m.Err = nil
				m.Step = 1
				m.DisplayName.Focus()
				m.TextInput.Blur()
				return m, nil
			}
			name := strings.TrimSpace(m.DisplayName.Value())
			if name == "" {
				name = strings.TrimSpace(m.TextInput.Value())
			}
			m.Busy = true
			m.Err = nil
			return m, createAccountCmd(m.fed, m.TextInput.Value(), name)
		case "esc":
			if m.Step == 1 {
				m.Step = 0
				m.TextInput.Focus()
				m.DisplayName.Blur()
				return m, nil
			}
		}
	}

	switch m.Step {
	case 0:
		m.TextInput, cmd = m.TextInput.Update(msg)
	case 1:
		m.DisplayName, cmd = m.DisplayName.Update(msg)
	}

	return m, cmd
}

func (m Model) View() string {
	var prompt string
	var input string
	var help string

	switch m.Step {
	case 0:
		prompt = "This node has no account yet. Choose the username for it:"
		input = m.TextInput.View()
		help = "(enter to continue, ctrl-c to quit)"
	case 1:
		prompt = fmt.Sprintf("Username: %s\n\nChoose your display name (optional):", m.TextInput.Value())
		input = m.DisplayName.View()
		help = "(enter to create the account, esc to go back)"
	}

	status := ""
	if m.Busy {
		status = "\n\n" + common.StatusStyle.Render("creating account and keys...")
	}
	if m.Err != nil {
		status = "\n\n" + common.ErrorStyle.Render(m.Err.Error())
	}

	return fmt.Sprintf(
		"Setting up %s\n\n%s\n\n%s\n\n%s%s",
		util.GetNameAndVersion(),
		prompt,
		input,
		help,
		status,
	) + "\n"
}

// ViewWithWidth renders the view with proper width accounting for border and margins
func (m Model) ViewWithWidth(termWidth, termHeight int) string {
	// border (2) plus margins (6)
	contentWidth := termWidth - 8
	if contentWidth < 40 {
		contentWidth = 40
	}

	bordered := Style.Width(contentWidth).Render(m.View())
	return lipgloss.Place(termWidth, termHeight, lipgloss.Center, lipgloss.Center, bordered)
}
