package timeline

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

const timelineSize = 50

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	postStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			MarginBottom(1)

	authorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	contentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Faint(true)
)

// Model shows the home timeline: own posts and posts of followed actors.
type Model struct {
	Posts    []domain.PostWithActor
	Offset   int
	Width    int
	Height   int
	fed      *activitypub.Federation
	username string
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
	return loadTimeline(m.fed, m.username)
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case postsLoadedMsg:
		m.Posts = msg.posts
		m.Offset = 0
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.Offset > 0 {
				m.Offset--
			}
		case "down", "j":
			if m.Offset < len(m.Posts)-1 {
				m.Offset++
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render(fmt.Sprintf("Home Timeline (%d posts)", len(m.Posts))))
	s.WriteString("\n\n")

	if len(m.Posts) == 0 {
		s.WriteString(common.EmptyStyle.Render("Nothing here yet.\nFollow some accounts to see their posts here!"))
		return s.String()
	}

	end := min(m.Offset+5, len(m.Posts))
	for _, post := range m.Posts[m.Offset:end] {
		postContent := fmt.Sprintf("%s %s\n%s\n%s",
			authorStyle.Render(post.Author.DisplayName()),
			timeStyle.Render(post.Author.Handle),
			contentStyle.Render(util.Truncate(common.PlainText(post.Content), 280)),
			timeStyle.Render(common.FormatTime(post.CreatedAt)),
		)
		s.WriteString(postStyle.Render(postContent))
		s.WriteString("\n")
	}

	if rest := len(m.Posts) - end; rest > 0 {
		s.WriteString(common.EmptyStyle.Render(fmt.Sprintf("... and %d more posts", rest)))
		s.WriteString("\n")
	}

	return s.String()
}

type postsLoadedMsg struct {
	posts []domain.PostWithActor
}

func loadTimeline(fed *activitypub.Federation, username string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		_, actor, err := fed.LocalActor(ctx, username)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		posts, err := fed.DB().ReadHomeTimeline(ctx, actor.Id, timelineSize)
		if err != nil {
			return common.ErrMsg{Err: err}
		}
		return postsLoadedMsg{posts: posts}
	}
}
