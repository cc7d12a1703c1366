package activitypub

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addFollowers stores n remote followers of alice in creation order.
func addFollowers(t *testing.T, fed *Federation, aliceID int64, n int) []string {
	t.Helper()
	ctx := context.Background()
	uris := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		a, err := PersistActor(ctx, fed.DB(), remoteActor(fmt.Sprintf("f%d", i)))
		require.NoError(t, err)
		_, err = fed.DB().CreateFollow(ctx, aliceID, a.Id)
		require.NoError(t, err)
		uris = append(uris, a.URI)
	}
	return uris
}

func TestDispatchFollowersNewestFirst(t *testing.T) {
	fed, _, alice := newTestFederationWithAlice(t)
	uris := addFollowers(t, fed, alice.Id, 3)

	page, err := fed.DispatchFollowers(context.Background(), "alice", "")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Empty(t, page.NextCursor)
	require.Len(t, page.Items, 3)
	assert.Equal(t, uris[2], page.Items[0].ID)
	assert.Equal(t, uris[1], page.Items[1].ID)
	assert.Equal(t, uris[0], page.Items[2].ID)
	assert.Equal(t, "https://remote.example/inbox", page.Items[0].SharedInbox)
	assert.Equal(t, uris[2]+"/inbox", page.Items[0].Inbox)

	count, err := fed.CountFollowers(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDispatchFollowersPaging(t *testing.T) {
	fed, _, alice := newTestFederationWithAlice(t)
	addFollowers(t, fed, alice.Id, FollowersPageSize+5)
	ctx := context.Background()

	first, err := fed.DispatchFollowers(ctx, "alice", "")
	require.NoError(t, err)
	assert.Len(t, first.Items, FollowersPageSize)
	require.NotEmpty(t, first.NextCursor)

	second, err := fed.DispatchFollowers(ctx, "alice", first.NextCursor)
	require.NoError(t, err)
	assert.Len(t, second.Items, 5)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, "https://remote.example/users/f1", second.Items[4].ID)

	all, err := fed.AllFollowers(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, FollowersPageSize+5)
}

func TestDispatchFollowersInvalidCursor(t *testing.T) {
	fed, _, _ := newTestFederationWithAlice(t)
	for _, cursor := range []string{"!!!", "LTE", "YWJj"} {
		_, err := fed.DispatchFollowers(context.Background(), "alice", cursor)
		assert.True(t, IsValidation(err), "cursor %q: %v", cursor, err)
	}
}

func TestDispatchFollowersUnknownAccount(t *testing.T) {
	fed, _, _ := newTestFederationWithAlice(t)
	page, err := fed.DispatchFollowers(context.Background(), "bob", "")
	assert.NoError(t, err)
	assert.Nil(t, page)

	_, err = fed.CountFollowers(context.Background(), "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}
