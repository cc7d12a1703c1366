package activitypub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchActor(t *testing.T) {
	fed, _, _ := newTestFederationWithAlice(t)

	p, err := fed.DispatchActor(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "https://example.com/users/alice", p.ID)
	assert.Equal(t, "Person", p.Type)
	assert.Equal(t, "alice", p.PreferredUsername)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "https://example.com/users/alice/inbox", p.Inbox)
	assert.Equal(t, "https://example.com/users/alice/followers", p.Followers)
	assert.Equal(t, "https://example.com/users/alice/outbox", p.Outbox)
	require.NotNil(t, p.Endpoints)
	assert.Equal(t, "https://example.com/inbox", p.Endpoints.SharedInbox)

	require.NotNil(t, p.PublicKey)
	assert.Equal(t, "https://example.com/users/alice#main-key", p.PublicKey.ID)
	assert.Equal(t, p.ID, p.PublicKey.Owner)
	_, err = ParsePublicKey(p.PublicKey.PublicKeyPem)
	assert.NoError(t, err)

	require.Len(t, p.AssertionMethod, 2)
	assert.Equal(t, "https://example.com/users/alice#key-1", p.AssertionMethod[0].ID)
	assert.Equal(t, "https://example.com/users/alice#key-2", p.AssertionMethod[1].ID)
	for _, m := range p.AssertionMethod {
		assert.Equal(t, "Multikey", m.Type)
		assert.Equal(t, p.ID, m.Controller)
		assert.NotEmpty(t, m.PublicKeyMultibase)
	}
}

func TestDispatchActorUnknown(t *testing.T) {
	fed, _, _ := newTestFederationWithAlice(t)
	p, err := fed.DispatchActor(context.Background(), "bob")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestRemoteActorHandle(t *testing.T) {
	tests := []struct {
		name  string
		actor RemoteActor
		want  string
	}{
		{"preferred username", RemoteActor{ID: "https://mastodon.social/users/bob", PreferredUsername: "bob"}, "@bob@mastodon.social"},
		{"path fallback", RemoteActor{ID: "https://pixel.example/@carol"}, "@carol@pixel.example"},
		{"no path", RemoteActor{ID: "https://bare.example/"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.Handle())
		})
	}
}

func TestRemoteActorFromPerson(t *testing.T) {
	a, err := remoteActorFromPerson(&Person{
		ID:                "https://remote.example/users/bob",
		Type:              "Service",
		PreferredUsername: "bob",
		Inbox:             "https://remote.example/users/bob/inbox",
		Endpoints:         &Endpoints{SharedInbox: "https://remote.example/inbox"},
		PublicKey:         &CryptographicKey{ID: "https://remote.example/users/bob#main-key", PublicKeyPem: "pem"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://remote.example/inbox", a.Recipient().DeliveryInbox())
	assert.Equal(t, "https://remote.example/users/bob#main-key", a.PublicKeyID)

	_, err = remoteActorFromPerson(&Person{ID: "https://remote.example/notes/1", Type: "Note"})
	assert.ErrorIs(t, err, ErrNotActor)
}
