package header

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui/common"
	"github.com/deemkeen/microblog/util"
)

type Model struct {
	Width int
	Acc   *domain.Account
	Actor *domain.Actor
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) View() string {
	if m.Acc == nil || m.Actor == nil {
		return ""
	}
	return GetHeaderStyle(m.Acc, m.Actor, m.Width)
}

// GetHeaderStyle renders the handle, the version and the registration date
// as one bar of width.
func GetHeaderStyle(acc *domain.Account, actor *domain.Actor, width int) string {
	// three boxes, each padded by one cell on both sides
	overhead := 6
	availableWidth := width - overhead

	if availableWidth < 40 {
		availableWidth = 40
	}

	handleWidth := availableWidth / 3
	versionWidth := availableWidth / 3
	createdWidth := availableWidth - handleWidth - versionWidth

	handle := lipgloss.
		NewStyle().
		SetString(actor.Handle).
		Align(lipgloss.Left).
		Background(lipgloss.Color(common.COLOR_PURPLE)).
		Padding(1).
		Height(2).
		Width(handleWidth).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	version := lipgloss.
		NewStyle().
		SetString(util.GetNameAndVersion()).
		Width(versionWidth).
		Height(2).
		Background(lipgloss.Color(common.COLOR_GREY)).
		Padding(1).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	created := lipgloss.
		NewStyle().
		SetString("registered: "+acc.CreatedAt.Format(util.DateTimeFormat())).
		Background(lipgloss.Color(common.COLOR_MAGENTA)).
		Padding(1).
		Align(lipgloss.Left).
		Height(2).
		Width(createdWidth).
		Border(lipgloss.NormalBorder(), true, false, true, false).
		BorderForeground(lipgloss.Color(common.COLOR_MAGENTA)).
		String()

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		handle,
		version,
		created,
	)
}
