package activitypub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistActorLastWriteWins(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	bob := remoteActor("bob")
	first, err := PersistActor(ctx, database, bob)
	require.NoError(t, err)
	assert.Equal(t, "@bob@remote.example", first.Handle)
	assert.False(t, first.IsLocal())

	renamed := *bob
	name := "Robert"
	renamed.Name = &name
	renamed.PreferredUsername = "robert"
	renamed.SharedInbox = nil
	second, err := PersistActor(ctx, database, &renamed)
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, "@robert@remote.example", second.Handle)
	require.NotNil(t, second.Name)
	assert.Equal(t, "Robert", *second.Name)
	assert.Nil(t, second.SharedInboxURL)
}

func TestPersistActorRejectsUnusableDocuments(t *testing.T) {
	database := openTestDB(t)
	tests := []struct {
		name  string
		actor *RemoteActor
	}{
		{"nil", nil},
		{"relative id", &RemoteActor{ID: "/users/bob", Inbox: "https://remote.example/inbox", PreferredUsername: "bob"}},
		{"no inbox", &RemoteActor{ID: "https://remote.example/users/bob", PreferredUsername: "bob"}},
		{"relative inbox", &RemoteActor{ID: "https://remote.example/users/bob", Inbox: "inbox", PreferredUsername: "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PersistActor(context.Background(), database, tt.actor)
			assert.ErrorIs(t, err, ErrActorRejected)
		})
	}
}

func TestPersistActorDropsRelativeOptionalURLs(t *testing.T) {
	database := openTestDB(t)
	bob := remoteActor("bob")
	bad := "not-a-url"
	bob.SharedInbox = &bad
	bob.URL = &bad

	row, err := PersistActor(context.Background(), database, bob)
	require.NoError(t, err)
	assert.Nil(t, row.SharedInboxURL)
	assert.Nil(t, row.URL)
}
