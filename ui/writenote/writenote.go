package writenote

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/ui/common"
)

const MaxLetters = 500

type Model struct {
	Textarea    textarea.Model
	Err         error
	Status      string
	fed         *activitypub.Federation
	username    string
	lettersLeft int
	width       int
}

func InitialNote(contentWidth int, fed *activitypub.Federation, username string) Model {
	width := common.DefaultCreateNoteWidth(contentWidth)
	ti := textarea.New()
	ti.Placeholder = "enter your message"
	ti.CharLimit = MaxLetters
	ti.ShowLineNumbers = false
	ti.SetWidth(30)

	return Model{
		Textarea:    ti,
		fed:         fed,
		username:    username,
		lettersLeft: MaxLetters,
		width:       width,
	}
}

// notePublishedMsg reports a stored post. Delivery to followers happens
// inside Publish.
type notePublishedMsg struct {
	uri string
}

func publishCmd(fed *activitypub.Federation, username string, content string) tea.Cmd {
	return func() tea.Msg {
		post, err := fed.Publish(context.Background(), username, content)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		return notePublishedMsg{uri: post.URI}
	}
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlA:
			if m.Textarea.Focused() {
				m.Textarea.Blur()
			}
		case tea.KeyCtrlS:
			value := m.Textarea.Value()
			if strings.TrimSpace(value) == "" {
				m.Err = fmt.Errorf("nothing to publish")
				return m, nil
			}
			m.Textarea.SetValue("")
			m.lettersLeft = MaxLetters
			m.Err = nil
			return m, publishCmd(m.fed, m.username, value)
		case tea.KeyCtrlC:
			return m, tea.Quit
		default:
			if !m.Textarea.Focused() {
				cmd = m.Textarea.Focus()
				cmds = append(cmds, cmd)
			}
		}

	case notePublishedMsg:
		m.Status = "published"
		return m, func() tea.Msg { return common.UpdateNoteList }

	case common.ErrMsg:
		m.Err = msg.Err
		m.Status = ""
		return m, nil
	}

	m.Textarea, cmd = m.Textarea.Update(msg)
	m.lettersLeft = m.CharCount()
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) CharCount() int {
	return m.Textarea.CharLimit - m.Textarea.Length() + m.Textarea.LineCount() - 1
}

func (m Model) View() string {
	styledTextarea := lipgloss.NewStyle().PaddingLeft(5).PaddingRight(5).Margin(2).Render(m.Textarea.View())
	charsLeft := common.HelpStyle.PaddingLeft(7).Render(fmt.Sprintf("characters left: %d\n\npost message: ctrl+s",
		m.lettersLeft))
	caption := common.CaptionStyle.PaddingLeft(7).Render("new note")

	status := ""
	if m.Err != nil {
		status = common.ErrorStyle.PaddingLeft(7).Render(m.Err.Error())
	} else if m.Status != "" {
		status = common.StatusStyle.PaddingLeft(7).Render(m.Status)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n\n%s", caption, styledTextarea, charsLeft, status)
}
