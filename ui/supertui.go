package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui/common"
	"github.com/deemkeen/microblog/ui/createuser"
	"github.com/deemkeen/microblog/ui/followers"
	"github.com/deemkeen/microblog/ui/following"
	"github.com/deemkeen/microblog/ui/followuser"
	"github.com/deemkeen/microblog/ui/header"
	"github.com/deemkeen/microblog/ui/listnotes"
	"github.com/deemkeen/microblog/ui/timeline"
	"github.com/deemkeen/microblog/ui/writenote"
)

var (
	modelStyle = lipgloss.NewStyle().
			Align(lipgloss.Top, lipgloss.Top).
			BorderStyle(lipgloss.HiddenBorder()).MarginLeft(1)
	focusedModelStyle = lipgloss.NewStyle().
				Align(lipgloss.Top, lipgloss.Top).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color(common.COLOR_LIGHTBLUE)).MarginLeft(1)
)

// rightPanels is the tab order of the views shown next to the composer.
var rightPanels = []common.SessionState{
	common.ListNotesView,
	common.TimelineView,
	common.FollowUserView,
	common.FollowersView,
	common.FollowingView,
}

type MainModel struct {
	width          int
	height         int
	fed            *activitypub.Federation
	account        *domain.Account
	actor          *domain.Actor
	state          common.SessionState
	lastPanel      common.SessionState
	headerModel    header.Model
	newUserModel   createuser.Model
	createModel    writenote.Model
	listModel      listnotes.Model
	timelineModel  timeline.Model
	followModel    followuser.Model
	followersModel followers.Model
	followingModel following.Model
}

// NewModel builds the session model. A nil account starts at the setup form.
func NewModel(fed *activitypub.Federation, acc *domain.Account, actor *domain.Actor, width int, height int) MainModel {
	m := MainModel{
		fed:          fed,
		width:        common.DefaultWindowWidth(width),
		height:       common.DefaultWindowHeight(height),
		state:        common.CreateUserView,
		lastPanel:    common.ListNotesView,
		newUserModel: createuser.InitialModel(fed),
	}
	if acc != nil && actor != nil {
		m = m.withAccount(acc, actor)
	}
	return m
}

func (m MainModel) withAccount(acc *domain.Account, actor *domain.Actor) MainModel {
	m.account = acc
	m.actor = actor
	m.state = common.CreateNoteView
	m.headerModel = header.Model{Width: m.width, Acc: acc, Actor: actor}
	m.createModel = writenote.InitialNote(m.width, m.fed, acc.Username)
	m.listModel = listnotes.NewPager(m.fed, acc.Username, m.width, m.height)
	m.timelineModel = timeline.InitialModel(m.fed, acc.Username, m.width, m.height)
	m.followModel = followuser.InitialModel(m.fed, acc.Username)
	m.followersModel = followers.InitialModel(m.fed, acc.Username, m.width, m.height)
	m.followingModel = following.InitialModel(m.fed, acc.Username, m.width, m.height)
	return m
}

// State returns the active view.
func (m MainModel) State() common.SessionState {
	return m.state
}

func (m MainModel) Init() tea.Cmd {
	if m.account == nil {
		return m.newUserModel.Init()
	}
	return tea.Batch(m.createModel.Init(), m.listModel.Init())
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.headerModel.Width = msg.Width
		return m, nil

	case common.AccountReadyMsg:
		m = m.withAccount(msg.Account, msg.Actor)
		return m, m.Init()

	case common.SessionState:
		if msg == common.UpdateNoteList {
			return m, tea.Batch(m.listModel.Init(), m.timelineModel.Init())
		}
		if m.account != nil && msg != common.CreateUserView {
			m.state = msg
			return m, m.viewInitCmd(msg)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.state == common.CreateUserView {
				break
			}
			step := 1
			if msg.String() == "shift+tab" {
				step = -1
			}
			m.state = m.cycle(step)
			if m.state != common.CreateNoteView {
				m.lastPanel = m.state
			}
			return m, m.viewInitCmd(m.state)
		}
	}

	if m.state == common.CreateUserView {
		m.newUserModel, cmd = m.newUserModel.Update(msg)
		return m, cmd
	}

	// data messages reach every view, keys only the focused one
	if _, isKeyMsg := msg.(tea.KeyMsg); !isKeyMsg {
		m.headerModel, _ = m.headerModel.Update(msg)
		m.createModel, cmd = m.createModel.Update(msg)
		cmds = append(cmds, cmd)
		m.listModel, cmd = m.listModel.Update(msg)
		cmds = append(cmds, cmd)
		m.timelineModel, cmd = m.timelineModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followModel, cmd = m.followModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followersModel, cmd = m.followersModel.Update(msg)
		cmds = append(cmds, cmd)
		m.followingModel, cmd = m.followingModel.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	switch m.state {
	case common.CreateNoteView:
		m.createModel, cmd = m.createModel.Update(msg)
	case common.ListNotesView:
		m.listModel, cmd = m.listModel.Update(msg)
	case common.TimelineView:
		m.timelineModel, cmd = m.timelineModel.Update(msg)
	case common.FollowUserView:
		m.followModel, cmd = m.followModel.Update(msg)
	case common.FollowersView:
		m.followersModel, cmd = m.followersModel.Update(msg)
	case common.FollowingView:
		m.followingModel, cmd = m.followingModel.Update(msg)
	}
	return m, cmd
}

// cycle moves step places through the composer followed by the right panels.
func (m MainModel) cycle(step int) common.SessionState {
	order := append([]common.SessionState{common.CreateNoteView}, rightPanels...)
	for i, s := range order {
		if s == m.state {
			return order[(i+step+len(order))%len(order)]
		}
	}
	return common.CreateNoteView
}

func (m MainModel) viewInitCmd(state common.SessionState) tea.Cmd {
	switch state {
	case common.ListNotesView:
		return m.listModel.Init()
	case common.TimelineView:
		return m.timelineModel.Init()
	case common.FollowersView:
		return m.followersModel.Init()
	case common.FollowingView:
		return m.followingModel.Init()
	default:
		return nil
	}
}

func (m MainModel) panelView(state common.SessionState) string {
	switch state {
	case common.TimelineView:
		return m.timelineModel.View()
	case common.FollowUserView:
		return m.followModel.View()
	case common.FollowersView:
		return m.followersModel.View()
	case common.FollowingView:
		return m.followingModel.View()
	default:
		return m.listModel.View()
	}
}

func (m MainModel) View() string {
	if m.state == common.CreateUserView {
		return m.newUserModel.ViewWithWidth(m.width, m.height)
	}

	availableHeight := m.height - 10
	leftPanelWidth := m.width / 3
	rightPanelWidth := m.width - leftPanelWidth - 6

	left := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(leftPanelWidth).
		MaxWidth(leftPanelWidth).
		Render(m.createModel.View())

	panel := m.lastPanel
	if m.state != common.CreateNoteView {
		panel = m.state
	}
	right := lipgloss.NewStyle().
		MaxHeight(availableHeight).
		Height(availableHeight).
		Width(rightPanelWidth).
		MaxWidth(rightPanelWidth).
		Margin(1).
		Render(m.panelView(panel))

	s := m.headerModel.View() + "\n"
	if m.state == common.CreateNoteView {
		s += lipgloss.JoinHorizontal(lipgloss.Top, focusedModelStyle.Render(left), modelStyle.Render(right))
	} else {
		s += lipgloss.JoinHorizontal(lipgloss.Top, modelStyle.Render(left), focusedModelStyle.Render(right))
	}

	var viewCommands string
	switch m.state {
	case common.ListNotesView, common.TimelineView:
		viewCommands = "↑/↓: scroll"
	case common.FollowUserView:
		viewCommands = "enter: follow"
	case common.FollowersView:
		viewCommands = "↑/↓: scroll • n/p: page"
	case common.FollowingView:
		viewCommands = "↑/↓: select • r: reload"
	default:
		viewCommands = "ctrl+s: publish"
	}

	s += common.HelpStyle.Render(fmt.Sprintf(
		"focused > %s\t\tkeys > tab: next • shift+tab: prev • %s • ctrl-c: exit",
		m.currentFocusedModel(), viewCommands))
	return s
}

func (m MainModel) currentFocusedModel() string {
	switch m.state {
	case common.CreateNoteView:
		return "new note"
	case common.ListNotesView:
		return "notes list"
	case common.TimelineView:
		return "home timeline"
	case common.FollowUserView:
		return "follow user"
	case common.FollowersView:
		return "followers"
	case common.FollowingView:
		return "following"
	default:
		return "setup"
	}
}
