package middleware

import (
	"context"
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	bm "github.com/charmbracelet/wish/bubbletea"
	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/ui"
	"github.com/muesli/termenv"
)

// MainTui serves the terminal interface of the local account. Before the
// account exists the session opens on the setup form.
func MainTui(fed *activitypub.Federation, logger *slog.Logger) wish.Middleware {
	teaHandler := func(s ssh.Session) *tea.Program {
		pty, _, active := s.Pty()
		if !active {
			wish.Println(s, "no active terminal, skipping")
			return nil
		}

		acc, actor, err := currentAccount(s.Context(), fed)
		if err != nil {
			logger.Error("could not load the local account", "err", err)
			wish.Println(s, "could not load the local account")
			return nil
		}

		m := ui.NewModel(fed, acc, actor, pty.Window.Width, pty.Window.Height)
		return tea.NewProgram(m, tea.WithInput(s), tea.WithOutput(s), tea.WithAltScreen())
	}
	return bm.MiddlewareWithProgramHandler(teaHandler, termenv.ANSI256)
}

func currentAccount(ctx context.Context, fed *activitypub.Federation) (*domain.Account, *domain.Actor, error) {
	acc, err := fed.DB().ReadFirstAccount(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return fed.LocalActor(ctx, acc.Username)
}
