package activitypub

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"

	"github.com/deemkeen/microblog/domain"
)

// FollowersPageSize is the number of followers per collection page.
const FollowersPageSize = 20

// FollowersPage is one page of a followers collection, newest follow first.
// NextCursor is empty on the last page.
type FollowersPage struct {
	Items      []Recipient
	NextCursor string
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, validationErrorf("invalid cursor")
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, validationErrorf("invalid cursor")
	}
	return offset, nil
}

// DispatchFollowers returns the followers page starting at cursor. An empty
// cursor is the first page. Unknown accounts yield nil.
func (f *Federation) DispatchFollowers(ctx context.Context, identifier string, cursor string) (*FollowersPage, error) {
	offset, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	_, actor, err := f.LocalActor(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := f.db.ReadFollowers(ctx, actor.Id, FollowersPageSize+1, offset)
	if err != nil {
		return nil, err
	}

	page := &FollowersPage{Items: make([]Recipient, 0, len(rows))}
	if len(rows) > FollowersPageSize {
		rows = rows[:FollowersPageSize]
		page.NextCursor = encodeCursor(offset + FollowersPageSize)
	}
	for _, r := range rows {
		page.Items = append(page.Items, recipientOf(&r.Actor))
	}
	return page, nil
}

// CountFollowers returns the follower count of a local account, or
// ErrNotFound.
func (f *Federation) CountFollowers(ctx context.Context, identifier string) (int, error) {
	_, actor, err := f.LocalActor(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return f.db.CountFollowers(ctx, actor.Id)
}

// AllFollowers walks every followers page of the account's actor.
func (f *Federation) AllFollowers(ctx context.Context, identifier string) ([]Recipient, error) {
	var all []Recipient
	cursor := ""
	for {
		page, err := f.DispatchFollowers(ctx, identifier, cursor)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return nil, ErrNotFound
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func recipientOf(a *domain.Actor) Recipient {
	r := Recipient{ID: a.URI, Inbox: a.InboxURL}
	if a.SharedInboxURL != nil {
		r.SharedInbox = *a.SharedInboxURL
	}
	return r
}
