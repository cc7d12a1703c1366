package listnotes

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui/common"
	"github.com/deemkeen/microblog/util"
)

const pageSize = 50

var (
	timeStyle = lipgloss.NewStyle().
			Align(lipgloss.Left).
			Foreground(lipgloss.Color(common.COLOR_PURPLE))

	linkStyle = lipgloss.NewStyle().
			Align(lipgloss.Left).
			Foreground(lipgloss.Color(common.COLOR_LIGHTBLUE))

	contentStyle = lipgloss.NewStyle().
			Align(lipgloss.Left)
)

// Model lists the posts of the local account, newest first.
type Model struct {
	Notes    []domain.Post
	Total    int
	Offset   int
	width    int
	height   int
	fed      *activitypub.Federation
	username string
}

func NewPager(fed *activitypub.Federation, username string, width int, height int) Model {
	return Model{
		width:    width,
		height:   height,
		fed:      fed,
		username: username,
	}
}

func (m Model) Init() tea.Cmd {
	return loadNotes(m.fed, m.username)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case notesLoadedMsg:
		m.Notes = msg.notes
		m.Total = msg.total
		m.Offset = 0
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k", "left":
			if m.Offset > 0 {
				m.Offset--
			}
		case "down", "j", "right":
			if len(m.Notes) > 0 && m.Offset < len(m.Notes)-1 {
				m.Offset++
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("notes list (%d notes)", m.Total)))
	s.WriteString("\n\n")

	if len(m.Notes) == 0 {
		s.WriteString(common.EmptyStyle.Render("No notes yet.\nCreate your first note!"))
		return s.String()
	}

	itemsPerPage := 10
	end := min(m.Offset+itemsPerPage, len(m.Notes))
	for _, note := range m.Notes[m.Offset:end] {
		timeStr := timeStyle.Render(common.FormatTime(note.CreatedAt))
		linkStr := linkStyle.Render(note.URI)
		contentStr := contentStyle.Render(util.Truncate(common.PlainText(note.Content), 150))

		s.WriteString(lipgloss.JoinVertical(lipgloss.Left, timeStr, linkStr, contentStr))
		s.WriteString("\n\n")
	}

	return s.String()
}

type notesLoadedMsg struct {
	notes []domain.Post
	total int
}

func loadNotes(fed *activitypub.Federation, username string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		_, actor, err := fed.LocalActor(ctx, username)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		notes, err := fed.DB().ReadPostsByActorId(ctx, actor.Id, pageSize, 0)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		total, err := fed.DB().CountPostsByActorId(ctx, actor.Id)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		return notesLoadedMsg{notes: notes, total: total}
	}
}
