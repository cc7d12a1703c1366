package activitypub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const acceptActivity = ContentTypeActivityJSON + ", " + ContentTypeLDJSON

// ParseHandle splits @user@host or user@host. ok is false for anything else.
func ParseHandle(s string) (user string, host string, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	user, host, found := strings.Cut(s, "@")
	if !found || user == "" || host == "" || strings.ContainsAny(user, "/ ") || strings.ContainsAny(host, "/@ ") {
		return "", "", false
	}
	return user, host, true
}

// LooksLikeActorReference is the syntactic check applied before any lookup:
// an absolute http(s) URL or a handle.
func LooksLikeActorReference(s string) bool {
	s = strings.TrimSpace(s)
	if isHTTPURL(s) {
		return isAbsoluteURL(s)
	}
	_, _, ok := ParseHandle(s)
	return ok
}

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Links   []webfingerLink `json:"links"`
}

// LookupActor resolves a handle through WebFinger, or fetches an actor URI
// directly. Results are cached under both the input and the actor id.
func (t *HTTPTransport) LookupActor(ctx context.Context, handleOrURI string) (*RemoteActor, error) {
	handleOrURI = strings.TrimSpace(handleOrURI)
	if cached, ok := t.cache.Get("actor:" + handleOrURI); ok {
		return cached.(*RemoteActor), nil
	}

	actorURI := handleOrURI
	if !isHTTPURL(handleOrURI) {
		user, host, ok := ParseHandle(handleOrURI)
		if !ok {
			return nil, fmt.Errorf("%q is neither a handle nor a URL", handleOrURI)
		}
		var err error
		actorURI, err = t.webfinger(ctx, user, host)
		if err != nil {
			return nil, err
		}
	}

	actor, err := t.fetchActor(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	t.cache.SetWithTTL("actor:"+handleOrURI, actor, 1, t.cacheTTL)
	t.cache.SetWithTTL("actor:"+actor.ID, actor, 1, t.cacheTTL)
	return actor, nil
}

func (t *HTTPTransport) webfinger(ctx context.Context, user string, host string) (string, error) {
	resource := "acct:" + user + "@" + host
	endpoint := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s", t.scheme, host, url.QueryEscape(resource))

	var wf webfingerResponse
	if err := t.fetchJSON(ctx, endpoint, "application/jrd+json, application/json", &wf); err != nil {
		return "", fmt.Errorf("webfinger %s: %w", resource, err)
	}
	for _, link := range wf.Links {
		if link.Rel != "self" || link.Href == "" {
			continue
		}
		if link.Type == ContentTypeActivityJSON || strings.HasPrefix(link.Type, "application/ld+json") {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("webfinger %s: %w: no self link", resource, ErrNotActor)
}

func (t *HTTPTransport) fetchActor(ctx context.Context, actorURI string) (*RemoteActor, error) {
	var p Person
	if err := t.fetchJSON(ctx, actorURI, acceptActivity, &p); err != nil {
		return nil, err
	}
	actor, err := remoteActorFromPerson(&p)
	if err != nil {
		return nil, err
	}
	if actor.ID == "" || actor.Inbox == "" {
		return nil, fmt.Errorf("actor %s missing required fields", actorURI)
	}
	return actor, nil
}

// publicKeyOwner is a key as found under a keyId: owner and PEM.
type publicKeyOwner struct {
	Owner string
	Pem   string
}

// resolveKey fetches the document behind a signature keyId. Both a bare
// key document and an actor embedding the key are accepted. Unless the key
// came from the owner's own actor document, the owner is fetched and must
// list the same key. cached reports whether the key came from the cache;
// refresh bypasses it.
func (t *HTTPTransport) resolveKey(ctx context.Context, keyID string, refresh bool) (key *publicKeyOwner, cached bool, err error) {
	if !refresh {
		if hit, ok := t.cache.Get("key:" + keyID); ok {
			return hit.(*publicKeyOwner), true, nil
		}
	}

	docURL, err := url.Parse(keyID)
	if err != nil || !isAbsoluteURL(keyID) {
		return nil, false, fmt.Errorf("invalid keyId %q", keyID)
	}
	docURL.Fragment = ""

	var doc struct {
		Person
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	}
	if err := t.fetchJSON(ctx, docURL.String(), acceptActivity, &doc); err != nil {
		return nil, false, err
	}

	ownDocument := false
	switch {
	case doc.Owner != "" && doc.PublicKeyPem != "":
		key = &publicKeyOwner{Owner: doc.Owner, Pem: doc.PublicKeyPem}
	case actorTypes[doc.Type] && doc.PublicKey != nil && doc.PublicKey.ID == keyID:
		key = &publicKeyOwner{Owner: doc.PublicKey.Owner, Pem: doc.PublicKey.PublicKeyPem}
		if key.Owner == "" {
			key.Owner = doc.ID
		}
		ownDocument = key.Owner == doc.ID && doc.ID == docURL.String()
	default:
		return nil, false, fmt.Errorf("no public key %s in %s", keyID, docURL)
	}

	if !sameHost(key.Owner, keyID) {
		return nil, false, fmt.Errorf("key %s claims owner %s on another host", keyID, key.Owner)
	}
	if !ownDocument {
		if err := t.confirmKeyOwner(ctx, keyID, key); err != nil {
			return nil, false, err
		}
	}
	t.cache.SetWithTTL("key:"+keyID, key, 1, t.cacheTTL)
	return key, false, nil
}

// confirmKeyOwner checks that the owner's actor document publishes the key.
func (t *HTTPTransport) confirmKeyOwner(ctx context.Context, keyID string, key *publicKeyOwner) error {
	owner, err := t.fetchActor(ctx, key.Owner)
	if err != nil {
		return fmt.Errorf("key owner %s: %w", key.Owner, err)
	}
	if owner.ID != key.Owner || owner.PublicKeyID != keyID {
		return fmt.Errorf("actor %s does not publish key %s", key.Owner, keyID)
	}
	claimed, err := ParsePublicKey(key.Pem)
	if err != nil {
		return err
	}
	listed, err := ParsePublicKey(owner.PublicKeyPem)
	if err != nil {
		return err
	}
	if !claimed.Equal(listed) {
		return fmt.Errorf("actor %s lists a different key under %s", key.Owner, keyID)
	}
	return nil
}

func sameHost(a string, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
