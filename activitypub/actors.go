package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/deemkeen/microblog/db"
)

// RemoteActor is a resolved actor document, reduced to what this node
// stores or verifies.
type RemoteActor struct {
	ID                string
	Type              string
	PreferredUsername string
	Name              *string
	Inbox             string
	SharedInbox       *string
	URL               *string
	PublicKeyID       string
	PublicKeyPem      string
}

// Recipient returns the delivery target of the actor.
func (a *RemoteActor) Recipient() Recipient {
	r := Recipient{ID: a.ID, Inbox: a.Inbox}
	if a.SharedInbox != nil {
		r.SharedInbox = *a.SharedInbox
	}
	return r
}

// Handle returns @preferredUsername@host, falling back to the last path
// segment of the id when no username is given.
func (a *RemoteActor) Handle() string {
	u, err := url.Parse(a.ID)
	if err != nil {
		return ""
	}
	name := a.PreferredUsername
	if name == "" {
		name = strings.TrimPrefix(path.Base(u.Path), "@")
	}
	if name == "" || name == "/" || name == "." {
		return ""
	}
	return "@" + name + "@" + u.Host
}

// remoteActorFromPerson validates and reduces a fetched actor document.
func remoteActorFromPerson(p *Person) (*RemoteActor, error) {
	if !actorTypes[p.Type] {
		return nil, fmt.Errorf("%w: %q has type %q", ErrNotActor, p.ID, p.Type)
	}
	a := &RemoteActor{
		ID:                p.ID,
		Type:              p.Type,
		PreferredUsername: p.PreferredUsername,
		Inbox:             p.Inbox,
	}
	if p.Name != "" {
		name := p.Name
		a.Name = &name
	}
	if p.Endpoints != nil && p.Endpoints.SharedInbox != "" {
		shared := p.Endpoints.SharedInbox
		a.SharedInbox = &shared
	}
	if p.URL != "" {
		u := p.URL.String()
		a.URL = &u
	}
	if p.PublicKey != nil {
		a.PublicKeyID = p.PublicKey.ID
		a.PublicKeyPem = p.PublicKey.PublicKeyPem
	}
	return a, nil
}

// DispatchActor builds the actor document of a local account. Missing keys
// are generated on the way. An unknown identifier yields (nil, nil).
func (f *Federation) DispatchActor(ctx context.Context, identifier string) (*Person, error) {
	acc, err := f.db.ReadAccountByUsername(ctx, identifier)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pairs, err := f.keys.GetOrCreateKeyPairs(ctx, acc.Id)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	actorURI := f.Actor(identifier)
	pubPEM, err := pairs[0].PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	methods := make([]Multikey, 0, len(pairs))
	for i, kp := range pairs {
		mb, err := kp.PublicKeyMultibase()
		if err != nil {
			return nil, fmt.Errorf("encoding multikey: %w", err)
		}
		methods = append(methods, Multikey{
			ID:                 fmt.Sprintf("%s#key-%d", actorURI, i+1),
			Type:               "Multikey",
			Controller:         actorURI,
			PublicKeyMultibase: mb,
		})
	}

	return &Person{
		Context:                   []any{ActivityStreamsContext, SecurityContext, MultikeyContext},
		ID:                        actorURI,
		Type:                      "Person",
		PreferredUsername:         acc.Username,
		Name:                      acc.Name,
		Inbox:                     f.Inbox(identifier),
		Outbox:                    f.Outbox(identifier),
		Followers:                 f.Followers(identifier),
		Following:                 f.Following(identifier),
		Endpoints:                 &Endpoints{SharedInbox: f.SharedInbox()},
		URL:                       Ref(actorURI),
		ManuallyApprovesFollowers: false,
		Discoverable:              true,
		PublicKey: &CryptographicKey{
			ID:           f.KeyID(identifier),
			Type:         "CryptographicKey",
			Owner:        actorURI,
			PublicKeyPem: pubPEM,
		},
		AssertionMethod: methods,
	}, nil
}
