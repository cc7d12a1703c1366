package common

import (
	"github.com/deemkeen/microblog/domain"
)

type SessionState uint

const (
	CreateNoteView SessionState = iota
	ListNotesView
	CreateUserView
	UpdateNoteList
	TimelineView
	FollowUserView
	FollowersView
	FollowingView
)

// ErrMsg carries a failed command back into the update loop.
type ErrMsg struct{ Err error }

func (e ErrMsg) Error() string { return e.Err.Error() }

// AccountReadyMsg is sent once the local account exists.
type AccountReadyMsg struct {
	Account *domain.Account
	Actor   *domain.Actor
}
