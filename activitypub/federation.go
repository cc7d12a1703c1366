package activitypub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/microcosm-cc/bluemonday"
)

// URIKind classifies a locally owned URI.
type URIKind int

const (
	URIUnknown URIKind = iota
	URIActor
	URIInbox
	URISharedInbox
	URIFollowers
	URIFollowing
	URIOutbox
	URIPost
	URIFollowActivity
)

// URLs builds and parses the URIs of local resources. Origin is scheme and
// authority without a trailing slash.
type URLs struct {
	Origin string
}

func (u URLs) Actor(identifier string) string {
	return u.Origin + "/users/" + url.PathEscape(identifier)
}

func (u URLs) Inbox(identifier string) string {
	return u.Actor(identifier) + "/inbox"
}

func (u URLs) SharedInbox() string {
	return u.Origin + "/inbox"
}

func (u URLs) Followers(identifier string) string {
	return u.Actor(identifier) + "/followers"
}

func (u URLs) Following(identifier string) string {
	return u.Actor(identifier) + "/following"
}

func (u URLs) Outbox(identifier string) string {
	return u.Actor(identifier) + "/outbox"
}

func (u URLs) Post(identifier string, postID int64) string {
	return u.Actor(identifier) + "/posts/" + strconv.FormatInt(postID, 10)
}

func (u URLs) KeyID(identifier string) string {
	return u.Actor(identifier) + "#main-key"
}

func (u URLs) FollowActivity(identifier string, id string) string {
	return u.Actor(identifier) + "#follows/" + id
}

// Host is the authority part of the origin, used in handles.
func (u URLs) Host() string {
	parsed, err := url.Parse(u.Origin)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// ParseURI resolves a locally owned URI into its kind, the owning account
// identifier and, for posts, the post id. Foreign or unknown URIs yield
// URIUnknown.
func (u URLs) ParseURI(uri string) (kind URIKind, identifier string, postID int64) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme+"://"+parsed.Host != u.Origin {
		return URIUnknown, "", 0
	}

	parts := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	if len(parts) == 1 && parts[0] == "inbox" {
		return URISharedInbox, "", 0
	}
	if len(parts) < 2 || parts[0] != "users" {
		return URIUnknown, "", 0
	}
	identifier, err = url.PathUnescape(parts[1])
	if err != nil || identifier == "" {
		return URIUnknown, "", 0
	}

	switch {
	case len(parts) == 2 && strings.HasPrefix(parsed.Fragment, "follows/"):
		return URIFollowActivity, identifier, 0
	case len(parts) == 2:
		return URIActor, identifier, 0
	case len(parts) == 3 && parts[2] == "inbox":
		return URIInbox, identifier, 0
	case len(parts) == 3 && parts[2] == "followers":
		return URIFollowers, identifier, 0
	case len(parts) == 3 && parts[2] == "following":
		return URIFollowing, identifier, 0
	case len(parts) == 3 && parts[2] == "outbox":
		return URIOutbox, identifier, 0
	case len(parts) == 4 && parts[2] == "posts":
		id, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || id <= 0 {
			return URIUnknown, "", 0
		}
		return URIPost, identifier, id
	}
	return URIUnknown, "", 0
}

// Federation is the protocol engine. It is built once at start and shared
// read-only by the web layer, the inbox and the ssh UI.
type Federation struct {
	URLs
	db        *db.DB
	keys      *KeyManager
	transport Transport
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

// New builds the engine for the given public origin.
func New(origin string, database *db.DB, keys *KeyManager, transport Transport, logger *slog.Logger) (*Federation, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" || strings.Trim(parsed.Path, "/") != "" {
		return nil, fmt.Errorf("invalid origin %q: want scheme://host[:port]", origin)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Federation{
		URLs:      URLs{Origin: parsed.Scheme + "://" + parsed.Host},
		db:        database,
		keys:      keys,
		transport: transport,
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// DB exposes the store for the plain listing reads of the web and ssh UIs.
func (f *Federation) DB() *db.DB {
	return f.db
}

func (f *Federation) Keys() *KeyManager {
	return f.keys
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// CreateLocalAccount creates the single local account together with its
// actor row, then generates its keys. A second call fails with
// ErrAccountExists.
func (f *Federation) CreateLocalAccount(ctx context.Context, username string, name string) (*domain.Account, *domain.Actor, error) {
	username = strings.TrimSpace(username)
	name = strings.TrimSpace(name)
	if len(username) == 0 || len(username) > 50 || !usernamePattern.MatchString(username) {
		return nil, nil, validationErrorf("username must be 1 to 50 characters of a-z, 0-9, _ or -")
	}
	if name == "" {
		return nil, nil, validationErrorf("name must not be empty")
	}

	var acc *domain.Account
	var actor *domain.Actor
	err := f.db.WithTx(ctx, func(tx *db.Tx) error {
		n, err := tx.CountAccounts(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAccountExists
		}
		acc, err = tx.InsertAccount(ctx, username, name)
		if errors.Is(err, db.ErrDuplicate) {
			return ErrAccountExists
		}
		if err != nil {
			return err
		}
		actorURI := f.Actor(username)
		sharedInbox := f.SharedInbox()
		actor, err = tx.UpsertActor(ctx, &domain.Actor{
			AccountId:      &acc.Id,
			URI:            actorURI,
			Handle:         "@" + username + "@" + f.Host(),
			Name:           &name,
			InboxURL:       f.Inbox(username),
			SharedInboxURL: &sharedInbox,
			URL:            &actorURI,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if _, err := f.keys.GetOrCreateKeyPairs(ctx, acc.Id); err != nil {
		return nil, nil, fmt.Errorf("generating keys: %w", err)
	}
	f.logger.Info("created local account", "username", username, "actor", actor.URI)
	return acc, actor, nil
}

// LocalActor returns the account and actor row for identifier, or ErrNotFound.
func (f *Federation) LocalActor(ctx context.Context, identifier string) (*domain.Account, *domain.Actor, error) {
	acc, err := f.db.ReadAccountByUsername(ctx, identifier)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	actor, err := f.db.ReadActorByAccountId(ctx, acc.Id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return acc, actor, nil
}

// localActorFor resolves a URI that must name a local actor.
func (f *Federation) localActorFor(ctx context.Context, uri string) (*domain.Account, *domain.Actor, error) {
	kind, identifier, _ := f.ParseURI(uri)
	if kind != URIActor {
		return nil, nil, malformedf("%q is not a local actor", uri)
	}
	acc, actor, err := f.LocalActor(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, malformedf("no local account %q", identifier)
	}
	return acc, actor, err
}
