package followers

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/ui/common"
)

var (
	itemStyle = lipgloss.NewStyle().
		PaddingLeft(2).
		MarginBottom(0)
)

const visibleItems = 10

// Model pages through the followers collection the same way a remote
// server does, one cursor at a time.
type Model struct {
	Followers []activitypub.Recipient
	Total     int
	Offset    int
	Width     int
	Height    int
	Err       error
	fed       *activitypub.Federation
	username  string
	cursor    string
	next      string
	history   []string
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
	return loadFollowers(m.fed, m.username, "")
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case followersLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, nil
		}
		if msg.cursor == "" {
			m.history = nil
		}
		m.Err = nil
		m.Followers = msg.page.Items
		m.Total = msg.total
		m.cursor = msg.cursor
		m.next = msg.page.NextCursor
		m.Offset = 0
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Offset > 0 {
				m.Offset--
			}
		case "down", "j":
			if len(m.Followers) > 0 && m.Offset < len(m.Followers)-1 {
				m.Offset++
			}
		case "n", "right":
			if m.next != "" {
				m.history = append(m.history, m.cursor)
				return m, loadFollowers(m.fed, m.username, m.next)
			}
		case "p", "left":
			if len(m.history) > 0 {
				prev := m.history[len(m.history)-1]
				m.history = m.history[:len(m.history)-1]
				return m, loadFollowers(m.fed, m.username, prev)
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(common.CaptionStyle.Render(fmt.Sprintf("followers (%d)", m.Total)))
	s.WriteString("\n\n")

	switch {
	case m.Err != nil:
		s.WriteString(common.ErrorStyle.Render(m.Err.Error()))
	case len(m.Followers) == 0:
		s.WriteString(common.EmptyStyle.Render("No followers yet. Share your handle to get followers!"))
	default:
		end := min(m.Offset+visibleItems, len(m.Followers))
		for _, f := range m.Followers[m.Offset:end] {
			s.WriteString(itemStyle.Render("• " + f.ID))
			s.WriteString("\n")
		}
		if m.next != "" || len(m.history) > 0 {
			s.WriteString("\n")
			s.WriteString(common.HelpStyle.Render("n: next page • p: previous page"))
		}
	}

	return s.String()
}

type followersLoadedMsg struct {
	page   *activitypub.FollowersPage
	total  int
	cursor string
	err    error
}

func loadFollowers(fed *activitypub.Federation, username string, cursor string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		page, err := fed.DispatchFollowers(ctx, username, cursor)
		if err != nil {
			return followersLoadedMsg{err: err}
		}
		if page == nil {
			return followersLoadedMsg{err: activitypub.ErrNotFound}
		}
		total, err := fed.CountFollowers(ctx, username)
		if err != nil {
			return followersLoadedMsg{err: err}
		}
		return followersLoadedMsg{page: page, total: total, cursor: cursor}
	}
}
