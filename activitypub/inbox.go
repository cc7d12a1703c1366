package activitypub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/deemkeen/microblog/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outgoing is an activity produced by an inbox transition, to be handed to
// the transport after the transaction commits.
type Outgoing struct {
	SenderAccountID int64
	Recipients      []Recipient
	Activity        *Activity
}

// transition is one state change applied inside the inbox transaction.
type transition func(ctx context.Context, tx *db.Tx) (*Outgoing, error)

// InboxProcessor applies signature-verified inbound activities.
type InboxProcessor struct {
	fed    *Federation
	logger *slog.Logger
}

func NewInboxProcessor(fed *Federation) *InboxProcessor {
	return &InboxProcessor{fed: fed, logger: fed.logger.With("component", "inbox")}
}

// Process applies one activity. Unsupported and malformed activities are
// dropped with a debug log; only store failures are returned. A redelivered
// activity id is applied at most once.
func (p *InboxProcessor) Process(ctx context.Context, activity *Activity) error {
	ctx, span := telemetry.Tracer().Start(ctx, "inbox.process", trace.WithAttributes(
		attribute.String("activity.type", activity.Type),
		attribute.String("activity.id", activity.ID),
	))
	defer span.End()

	err := p.process(ctx, activity)
	if err != nil && !dropped(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("failed to process activity", "type", activity.Type, "id", activity.ID, "err", err)
		return err
	}
	if err != nil {
		p.logger.Debug("dropped activity", "type", activity.Type, "id", activity.ID, "actor", activity.Actor, "err", err)
	}
	return nil
}

func (p *InboxProcessor) process(ctx context.Context, activity *Activity) error {
	kind := activity.Kind()
	if kind == KindUnsupported {
		p.logger.Debug("ignoring unsupported activity", "type", activity.Type, "id", activity.ID)
		return nil
	}
	if activity.ID == "" || activity.Actor == "" {
		return malformedf("%s without id or actor", activity.Type)
	}

	if _, err := p.fed.db.ReadInboxRecord(ctx, activity.ID); err == nil {
		p.logger.Debug("skipping redelivered activity", "id", activity.ID)
		return nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	var step transition
	var err error
	switch kind {
	case KindFollow:
		step, err = p.onFollow(ctx, activity)
	case KindUndo:
		step, err = p.onUndo(ctx, activity)
	case KindAccept:
		step, err = p.onAccept(ctx, activity)
	case KindCreate:
		step, err = p.onCreate(ctx, activity)
	}
	if err != nil {
		return err
	}
	return p.apply(ctx, activity, step)
}

// apply runs step and records the activity id in one transaction, then
// hands any produced activity to the transport.
func (p *InboxProcessor) apply(ctx context.Context, activity *Activity, step transition) error {
	var out *Outgoing
	err := p.fed.db.WithTx(ctx, func(tx *db.Tx) error {
		out = nil
		first, err := tx.RecordInbox(ctx, &domain.InboxRecord{
			ActivityURI:  activity.ID,
			ActivityType: activity.Type,
			ActorURI:     activity.Actor.String(),
		})
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		out, err = step(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	if out != nil {
		if err := p.fed.transport.SendActivity(ctx, out.SenderAccountID, out.Recipients, out.Activity); err != nil {
			p.logger.Warn("failed to dispatch reply", "type", out.Activity.Type, "err", err)
		}
	}
	return nil
}

// dropped reports whether err means the input was unusable rather than
// that the store failed.
func dropped(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrActorRejected) ||
		errors.Is(err, ErrNotActor) ||
		errors.Is(err, errUnresolved)
}

var errUnresolved = errors.New("actor unresolved")

// resolveActor looks up a remote actor through the transport.
func (p *InboxProcessor) resolveActor(ctx context.Context, uri string) (*RemoteActor, error) {
	if kind, _, _ := p.fed.ParseURI(uri); kind != URIUnknown {
		return nil, malformedf("activity from local uri %s", uri)
	}
	actor, err := p.fed.transport.LookupActor(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errUnresolved, uri, err)
	}
	if actor.ID != uri {
		return nil, malformedf("actor %s resolved to %s", uri, actor.ID)
	}
	return actor, nil
}

// onFollow: a remote actor follows a local one. The edge is stored and an
// Accept is sent back.
func (p *InboxProcessor) onFollow(ctx context.Context, follow *Activity) (transition, error) {
	target := follow.ObjectRef()
	if target == "" {
		return nil, malformedf("Follow without object")
	}
	acc, local, err := p.fed.localActorFor(ctx, target)
	if err != nil {
		return nil, err
	}
	remote, err := p.resolveActor(ctx, follow.Actor.String())
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, tx *db.Tx) (*Outgoing, error) {
		follower, err := PersistActor(ctx, tx, remote)
		if err != nil {
			return nil, err
		}
		if follower.Id == local.Id {
			return nil, malformedf("self follow of %s", local.URI)
		}
		if _, err := tx.CreateFollow(ctx, local.Id, follower.Id); err != nil {
			return nil, err
		}

		accept := &Activity{
			Context: ActivityStreamsContext,
			ID:      local.URI + "#accepts/" + uuid.NewString(),
			Type:    "Accept",
			Actor:   Ref(local.URI),
			To:      Refs{follower.URI},
		}
		echo := *follow
		echo.Context = nil
		if err := accept.SetObject(&echo); err != nil {
			return nil, err
		}
		p.logger.Info("accepted follow", "follower", follower.Handle, "following", local.Handle)
		return &Outgoing{
			SenderAccountID: acc.Id,
			Recipients:      []Recipient{{ID: remote.ID, Inbox: remote.Inbox}},
			Activity:        accept,
		}, nil
	}, nil
}

// onUndo: only Undo(Follow) is supported. The follow edge from the undoing
// actor to the local actor is removed; a missing edge is fine.
func (p *InboxProcessor) onUndo(ctx context.Context, undo *Activity) (transition, error) {
	inner, err := undo.EmbeddedActivity()
	if err != nil {
		return nil, err
	}
	if inner.Kind() != KindFollow {
		return nil, malformedf("Undo of %q is not supported", inner.Type)
	}
	if inner.Actor != "" && inner.Actor != undo.Actor {
		return nil, malformedf("Undo by %s of a Follow by %s", undo.Actor, inner.Actor)
	}
	_, local, err := p.fed.localActorFor(ctx, inner.ObjectRef())
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, tx *db.Tx) (*Outgoing, error) {
		removed, err := tx.DeleteFollowByFollowerURI(ctx, local.Id, undo.Actor.String())
		if err != nil {
			return nil, err
		}
		if removed {
			p.logger.Info("removed follow", "follower", undo.Actor, "following", local.Handle)
		}
		return nil, nil
	}, nil
}

// onAccept: a remote actor accepted a Follow sent by a local actor.
func (p *InboxProcessor) onAccept(ctx context.Context, accept *Activity) (transition, error) {
	var followerURI string
	if inner, err := accept.EmbeddedActivity(); err == nil {
		if inner.Kind() != KindFollow {
			return nil, malformedf("Accept of %q is not supported", inner.Type)
		}
		if obj := inner.ObjectRef(); obj != "" && obj != accept.Actor.String() {
			return nil, malformedf("Accept by %s of a Follow of %s", accept.Actor, obj)
		}
		followerURI = inner.Actor.String()
	} else {
		// bare reference to one of our own Follow ids
		ref := accept.ObjectRef()
		kind, identifier, _ := p.fed.ParseURI(ref)
		if kind != URIFollowActivity {
			return nil, malformedf("Accept of unknown object %q", ref)
		}
		followerURI = p.fed.Actor(identifier)
	}

	_, local, err := p.fed.localActorFor(ctx, followerURI)
	if err != nil {
		return nil, err
	}
	remote, err := p.resolveActor(ctx, accept.Actor.String())
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, tx *db.Tx) (*Outgoing, error) {
		following, err := PersistActor(ctx, tx, remote)
		if err != nil {
			return nil, err
		}
		if following.Id == local.Id {
			return nil, malformedf("self accept of %s", local.URI)
		}
		if _, err := tx.CreateFollow(ctx, following.Id, local.Id); err != nil {
			return nil, err
		}
		p.logger.Info("follow accepted", "following", following.Handle, "follower", local.Handle)
		return nil, nil
	}, nil
}

// onCreate: a remote Note is stored with its author.
func (p *InboxProcessor) onCreate(ctx context.Context, create *Activity) (transition, error) {
	note, err := create.EmbeddedNote()
	if err != nil {
		return nil, err
	}
	if note.ID == "" || !isAbsoluteURL(note.ID) {
		return nil, malformedf("Note without usable id")
	}
	if note.AttributedTo != create.Actor {
		return nil, malformedf("Note %s attributed to %s but created by %s", note.ID, note.AttributedTo, create.Actor)
	}
	if kind, _, _ := p.fed.ParseURI(note.ID); kind != URIUnknown {
		return nil, malformedf("remote Create of local object %s", note.ID)
	}
	author, err := p.resolveActor(ctx, create.Actor.String())
	if err != nil {
		return nil, err
	}

	post := &domain.Post{
		URI:     note.ID,
		Content: p.fed.sanitizer.Sanitize(note.Content),
	}
	noteURL := note.URL.String()
	if !isAbsoluteURL(noteURL) {
		noteURL = note.ID
	}
	post.URL = &noteURL
	if published, err := time.Parse(time.RFC3339, note.Published); err == nil {
		post.CreatedAt = published
	}

	return func(ctx context.Context, tx *db.Tx) (*Outgoing, error) {
		actor, err := PersistActor(ctx, tx, author)
		if err != nil {
			return nil, err
		}
		post.ActorId = actor.Id
		if now := tx.Now(); post.CreatedAt.After(now) {
			post.CreatedAt = now
		}
		if _, err := tx.InsertPost(ctx, post); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return nil, nil
			}
			return nil, err
		}
		p.logger.Info("stored note", "uri", note.ID, "author", actor.Handle)
		return nil, nil
	}, nil
}
