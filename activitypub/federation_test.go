package activitypub

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://example.com"

type steppingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type sentActivity struct {
	Sender     int64
	Recipients []Recipient
	Activity   *Activity
}

// fakeTransport resolves actors from a fixed table and records sends.
type fakeTransport struct {
	mu      sync.Mutex
	actors  map[string]*RemoteActor
	lookups []string
	sent    []sentActivity
	sendErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{actors: make(map[string]*RemoteActor)}
}

func (ft *fakeTransport) add(a *RemoteActor, aliases ...string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.actors[a.ID] = a
	for _, alias := range aliases {
		ft.actors[alias] = a
	}
}

func (ft *fakeTransport) LookupActor(ctx context.Context, handleOrURI string) (*RemoteActor, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.lookups = append(ft.lookups, handleOrURI)
	a, ok := ft.actors[handleOrURI]
	if !ok {
		return nil, fmt.Errorf("no actor %s", handleOrURI)
	}
	cp := *a
	return &cp, nil
}

func (ft *fakeTransport) SendActivity(ctx context.Context, sender int64, recipients []Recipient, activity *Activity) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.sent = append(ft.sent, sentActivity{Sender: sender, Recipients: recipients, Activity: activity})
	return ft.sendErr
}

func (ft *fakeTransport) Sent() []sentActivity {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]sentActivity(nil), ft.sent...)
}

func (ft *fakeTransport) Lookups() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.lookups...)
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	clock := &steppingClock{t: time.Now().UTC().Add(-time.Hour)}
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), db.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())
	return database
}

func newTestFederation(t *testing.T) (*Federation, *fakeTransport) {
	t.Helper()
	database := openTestDB(t)
	ft := newFakeTransport()
	fed, err := New(testOrigin, database, NewKeyManager(database), ft, nil)
	require.NoError(t, err)
	return fed, ft
}

// newTestFederationWithAlice also creates the local account alice.
func newTestFederationWithAlice(t *testing.T) (*Federation, *fakeTransport, *domain.Actor) {
	t.Helper()
	fed, ft := newTestFederation(t)
	_, actor, err := fed.CreateLocalAccount(context.Background(), "alice", "Alice")
	require.NoError(t, err)
	return fed, ft, actor
}

func remoteActor(name string) *RemoteActor {
	id := "https://remote.example/users/" + name
	shared := "https://remote.example/inbox"
	return &RemoteActor{
		ID:                id,
		Type:              "Person",
		PreferredUsername: name,
		Inbox:             id + "/inbox",
		SharedInbox:       &shared,
	}
}

func TestNewRejectsBadOrigin(t *testing.T) {
	for _, origin := range []string{"", "example.com", "ftp://example.com", "https://example.com/sub"} {
		_, err := New(origin, nil, nil, nil, nil)
		assert.Error(t, err, origin)
	}
}

func TestCreateLocalAccount(t *testing.T) {
	fed, _ := newTestFederation(t)
	ctx := context.Background()

	acc, actor, err := fed.CreateLocalAccount(ctx, " alice ", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Username)
	assert.Equal(t, "https://example.com/users/alice", actor.URI)
	assert.Equal(t, "@alice@example.com", actor.Handle)
	assert.Equal(t, "https://example.com/users/alice/inbox", actor.InboxURL)
	require.NotNil(t, actor.SharedInboxURL)
	assert.Equal(t, "https://example.com/inbox", *actor.SharedInboxURL)
	assert.True(t, actor.IsLocal())

	keys, err := fed.DB().ReadKeysByAccountId(ctx, acc.Id)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	_, _, err = fed.CreateLocalAccount(ctx, "bob", "Bob")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestCreateLocalAccountValidation(t *testing.T) {
	fed, _ := newTestFederation(t)
	tests := []struct {
		username string
		name     string
	}{
		{"", "Alice"},
		{"Alice", "Alice"},
		{"al ice", "Alice"},
		{"alice", "   "},
		{"a123456789a123456789a123456789a123456789a123456789x", "Alice"},
	}
	for _, tt := range tests {
		_, _, err := fed.CreateLocalAccount(context.Background(), tt.username, tt.name)
		assert.True(t, IsValidation(err), "%q/%q: %v", tt.username, tt.name, err)
	}
}

func TestLocalActorNotFound(t *testing.T) {
	fed, _ := newTestFederation(t)
	_, _, err := fed.LocalActor(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseURI(t *testing.T) {
	u := URLs{Origin: testOrigin}
	tests := []struct {
		uri        string
		kind       URIKind
		identifier string
		postID     int64
	}{
		{"https://example.com/users/alice", URIActor, "alice", 0},
		{"https://example.com/users/alice/inbox", URIInbox, "alice", 0},
		{"https://example.com/inbox", URISharedInbox, "", 0},
		{"https://example.com/users/alice/followers", URIFollowers, "alice", 0},
		{"https://example.com/users/alice/following", URIFollowing, "alice", 0},
		{"https://example.com/users/alice/outbox", URIOutbox, "alice", 0},
		{"https://example.com/users/alice/posts/42", URIPost, "alice", 42},
		{"https://example.com/users/alice#follows/abc", URIFollowActivity, "alice", 0},
		{"https://example.com/users/alice/posts/x", URIUnknown, "", 0},
		{"https://example.com/users/alice/posts/0", URIUnknown, "", 0},
		{"https://other.example/users/alice", URIUnknown, "", 0},
		{"http://example.com/users/alice", URIUnknown, "", 0},
		{"https://example.com/notes/1", URIUnknown, "", 0},
		{"not a uri", URIUnknown, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			kind, identifier, postID := u.ParseURI(tt.uri)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.identifier, identifier)
			assert.Equal(t, tt.postID, postID)
		})
	}
}

func TestURLsRoundTrip(t *testing.T) {
	u := URLs{Origin: testOrigin}
	kind, identifier, postID := u.ParseURI(u.Post("alice", 7))
	assert.Equal(t, URIPost, kind)
	assert.Equal(t, "alice", identifier)
	assert.Equal(t, int64(7), postID)
	assert.Equal(t, "example.com", u.Host())
	assert.Equal(t, "https://example.com/users/alice#main-key", u.KeyID("alice"))
}
