package activitypub

import (
	"context"
	"fmt"
	"net/url"

	"github.com/deemkeen/microblog/domain"
)

// ActorUpserter is the atomic insert-or-update primitive PersistActor needs.
// Both *db.DB and *db.Tx provide it.
type ActorUpserter interface {
	UpsertActor(ctx context.Context, a *domain.Actor) (*domain.Actor, error)
}

// PersistActor writes the cached row of a remote actor. It is the only path
// remote actor rows are written through: one upsert keyed by uri, with the
// given document overwriting handle, name, inboxes and url.
func PersistActor(ctx context.Context, store ActorUpserter, actor *RemoteActor) (*domain.Actor, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: no actor", ErrActorRejected)
	}
	if !isAbsoluteURL(actor.ID) {
		return nil, fmt.Errorf("%w: unusable id %q", ErrActorRejected, actor.ID)
	}
	if !isAbsoluteURL(actor.Inbox) {
		return nil, fmt.Errorf("%w: unusable inbox %q for %s", ErrActorRejected, actor.Inbox, actor.ID)
	}
	handle := actor.Handle()
	if handle == "" {
		return nil, fmt.Errorf("%w: no handle for %s", ErrActorRejected, actor.ID)
	}

	row := &domain.Actor{
		URI:      actor.ID,
		Handle:   handle,
		Name:     actor.Name,
		InboxURL: actor.Inbox,
	}
	if actor.SharedInbox != nil && isAbsoluteURL(*actor.SharedInbox) {
		row.SharedInboxURL = actor.SharedInbox
	}
	if actor.URL != nil && isAbsoluteURL(*actor.URL) {
		row.URL = actor.URL
	}
	return store.UpsertActor(ctx, row)
}

func isAbsoluteURL(s string) bool {
	if !isHTTPURL(s) {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}
