package activitypub

import (
	"context"
	"errors"
	"strings"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/telemetry"
	"github.com/deemkeen/microblog/util"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateFor wraps the Note of a local post in its Create activity. The
// activity id is derived from the note id, so it is stable across calls.
func (f *Federation) CreateFor(identifier string, post *domain.Post) (*Activity, error) {
	note := f.noteFromPost(identifier, post)
	create := &Activity{
		ID:        note.ID + "#activity",
		Type:      "Create",
		Actor:     note.AttributedTo,
		To:        note.To,
		Cc:        note.Cc,
		Published: note.Published,
	}
	if err := create.SetObject(note); err != nil {
		return nil, err
	}
	return create, nil
}

// Publish stores a new post by the local account and sends Create(Note) to
// every follower. The content is HTML escaped, not sanitized. Delivery
// problems are logged; only validation and store errors are returned.
func (f *Federation) Publish(ctx context.Context, identifier string, content string) (*domain.Post, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "outbox.publish", trace.WithAttributes(
		attribute.String("account", identifier),
	))
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return nil, validationErrorf("content must not be empty")
	}
	acc, actor, err := f.LocalActor(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var post *domain.Post
	err = f.db.WithTx(ctx, func(tx *db.Tx) error {
		// the row id is only known after insert, so the uri starts out as a
		// unique placeholder and is replaced before commit
		inserted, err := tx.InsertPost(ctx, &domain.Post{
			URI:     "urn:uuid:" + uuid.NewString(),
			ActorId: actor.Id,
			Content: util.NormalizeInput(content),
		})
		if err != nil {
			return err
		}
		uri := f.Post(identifier, inserted.Id)
		if err := tx.UpdatePostLinks(ctx, inserted.Id, uri, uri); err != nil {
			return err
		}
		inserted.URI = uri
		inserted.URL = &uri
		post = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("post.uri", post.URI))

	create, err := f.CreateFor(identifier, post)
	if err != nil {
		return nil, err
	}
	create.Context = ActivityStreamsContext

	followers, err := f.AllFollowers(ctx, identifier)
	if err != nil {
		f.logger.Warn("failed to list followers", "account", identifier, "err", err)
		return post, nil
	}
	if len(followers) == 0 {
		f.logger.Debug("no followers to deliver to", "post", post.URI)
		return post, nil
	}
	if err := f.transport.SendActivity(ctx, acc.Id, followers, create); err != nil {
		f.logger.Warn("failed to send create", "post", post.URI, "err", err)
		return post, nil
	}
	f.logger.Info("published note", "post", post.URI, "followers", len(followers))
	return post, nil
}

// RequestFollow sends a Follow from the local account to the actor named by
// a handle or actor URI. The edge itself is only stored when the remote side
// answers with Accept.
func (f *Federation) RequestFollow(ctx context.Context, identifier string, handleOrURI string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "outbox.follow", trace.WithAttributes(
		attribute.String("account", identifier),
		attribute.String("target", handleOrURI),
	))
	defer span.End()

	handleOrURI = strings.TrimSpace(handleOrURI)
	if !LooksLikeActorReference(handleOrURI) {
		return validationErrorf("%q is neither a handle nor an actor URI", handleOrURI)
	}
	acc, actor, err := f.LocalActor(ctx, identifier)
	if err != nil {
		return err
	}

	target, err := f.transport.LookupActor(ctx, handleOrURI)
	if err != nil {
		if errors.Is(err, ErrNotActor) {
			return validationErrorf("%s is not an actor", handleOrURI)
		}
		f.logger.Debug("follow target lookup failed", "target", handleOrURI, "err", err)
		return validationErrorf("could not resolve %s", handleOrURI)
	}
	if target.ID == actor.URI {
		return validationErrorf("cannot follow yourself")
	}

	follow := &Activity{
		Context: ActivityStreamsContext,
		ID:      f.FollowActivity(identifier, uuid.NewString()),
		Type:    "Follow",
		Actor:   Ref(actor.URI),
		To:      Refs{target.ID},
	}
	if err := follow.SetObject(target.ID); err != nil {
		return err
	}
	if err := f.transport.SendActivity(ctx, acc.Id, []Recipient{target.Recipient()}, follow); err != nil {
		f.logger.Warn("failed to send follow", "target", target.ID, "err", err)
		return nil
	}
	f.logger.Info("requested follow", "target", target.ID)
	return nil
}
