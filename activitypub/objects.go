package activitypub

import (
	"context"
	"errors"
	"time"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
)

// noteFromPost renders a local post as a public Note addressed to the
// author's followers.
func (f *Federation) noteFromPost(identifier string, post *domain.Post) *Note {
	note := &Note{
		ID:           post.URI,
		Type:         "Note",
		AttributedTo: Ref(f.Actor(identifier)),
		Content:      post.Content,
		MediaType:    "text/html",
		Published:    post.CreatedAt.UTC().Format(time.RFC3339),
		To:           Refs{PublicCollection},
		Cc:           Refs{f.Followers(identifier)},
	}
	if post.URL != nil {
		note.URL = Ref(*post.URL)
	} else {
		note.URL = Ref(post.URI)
	}
	return note
}

// DispatchNote returns the Note for a local post. Unknown accounts, unknown
// posts and posts of another actor yield nil.
func (f *Federation) DispatchNote(ctx context.Context, identifier string, postID int64) (*Note, error) {
	_, actor, err := f.LocalActor(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	post, err := f.db.ReadPostById(ctx, postID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if post.ActorId != actor.Id {
		return nil, nil
	}

	note := f.noteFromPost(identifier, post)
	note.Context = ActivityStreamsContext
	return note, nil
}
