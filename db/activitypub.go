package db

import (
	"context"
	"time"

	"github.com/deemkeen/microblog/domain"
	"github.com/google/uuid"
)

// Actors
const (
	actorColumns = `actors.id, actors.account_id, actors.uri, actors.handle, actors.name, actors.inbox_url, actors.shared_inbox_url, actors.url, actors.created`

	// Last write wins on every mutable attribute. account_id is never
	// rewritten so a local actor keeps its account link.
	sqlUpsertActor = `INSERT INTO actors(account_id, uri, handle, name, inbox_url, shared_inbox_url, url, created)
                      VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                      ON CONFLICT (uri) DO UPDATE SET
                          handle = excluded.handle,
                          name = excluded.name,
                          inbox_url = excluded.inbox_url,
                          shared_inbox_url = excluded.shared_inbox_url,
                          url = excluded.url
                      RETURNING id, account_id, uri, handle, name, inbox_url, shared_inbox_url, url, created`
	sqlSelectActorById        = `SELECT ` + actorColumns + ` FROM actors WHERE actors.id = ?`
	sqlSelectActorByURI       = `SELECT ` + actorColumns + ` FROM actors WHERE actors.uri = ?`
	sqlSelectActorByAccountId = `SELECT ` + actorColumns + ` FROM actors WHERE actors.account_id = ?`
)

// UpsertActor inserts the actor or, when an actor with the same uri exists, replaces
// its mutable attributes. The stored row is returned.
func (q *queries) UpsertActor(ctx context.Context, a *domain.Actor) (*domain.Actor, error) {
	return scanActor(q.q.QueryRowContext(ctx, sqlUpsertActor,
		a.AccountId,
		a.URI,
		a.Handle,
		a.Name,
		a.InboxURL,
		a.SharedInboxURL,
		a.URL,
		q.Now(),
	))
}

func (q *queries) ReadActorById(ctx context.Context, id int64) (*domain.Actor, error) {
	return scanActor(q.q.QueryRowContext(ctx, sqlSelectActorById, id))
}

func (q *queries) ReadActorByURI(ctx context.Context, uri string) (*domain.Actor, error) {
	return scanActor(q.q.QueryRowContext(ctx, sqlSelectActorByURI, uri))
}

func (q *queries) ReadActorByAccountId(ctx context.Context, accountId int64) (*domain.Actor, error) {
	return scanActor(q.q.QueryRowContext(ctx, sqlSelectActorByAccountId, accountId))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanActor(row scanner) (*domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.Id, &a.AccountId, &a.URI, &a.Handle, &a.Name, &a.InboxURL, &a.SharedInboxURL, &a.URL, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// Keys
const (
	sqlInsertKeyIfAbsent = `INSERT INTO keys(account_id, type, private_key, public_key, created) VALUES (?, ?, ?, ?, ?)
                            ON CONFLICT (account_id, type) DO NOTHING`
	sqlSelectKeysByAccountId = `SELECT account_id, type, private_key, public_key, created FROM keys WHERE account_id = ?`
	sqlSelectKey             = `SELECT account_id, type, private_key, public_key, created FROM keys WHERE account_id = ? AND type = ?`
)

// InsertKeyIfAbsent stores k unless the account already has a key of that
// type. It reports whether k was written.
func (q *queries) InsertKeyIfAbsent(ctx context.Context, k *domain.Key) (bool, error) {
	res, err := q.q.ExecContext(ctx, sqlInsertKeyIfAbsent, k.AccountId, string(k.Type), k.PrivateKey, k.PublicKey, q.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReadKeysByAccountId returns every stored key of the account, keyed by type.
func (q *queries) ReadKeysByAccountId(ctx context.Context, accountId int64) (map[domain.KeyType]domain.Key, error) {
	rows, err := q.q.QueryContext(ctx, sqlSelectKeysByAccountId, accountId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[domain.KeyType]domain.Key)
	for rows.Next() {
		var k domain.Key
		var kt string
		if err := rows.Scan(&k.AccountId, &kt, &k.PrivateKey, &k.PublicKey, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Type = domain.KeyType(kt)
		keys[k.Type] = k
	}
	return keys, rows.Err()
}

func (q *queries) ReadKey(ctx context.Context, accountId int64, kt domain.KeyType) (*domain.Key, error) {
	var k domain.Key
	var t string
	err := q.q.QueryRowContext(ctx, sqlSelectKey, accountId, string(kt)).Scan(&k.AccountId, &t, &k.PrivateKey, &k.PublicKey, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	k.Type = domain.KeyType(t)
	return &k, nil
}

// Follows
const (
	sqlInsertFollow = `INSERT INTO follows(following_id, follower_id, created) VALUES (?, ?, ?)
                       ON CONFLICT (following_id, follower_id) DO NOTHING`
	sqlDeleteFollowByFollowerURI = `DELETE FROM follows
                                    WHERE following_id = ?
                                      AND follower_id = (SELECT id FROM actors WHERE uri = ?)`
	sqlSelectFollow = `SELECT following_id, follower_id, created FROM follows WHERE following_id = ? AND follower_id = ?`
	// follower_id breaks ties between follows created in the same instant
	sqlSelectFollowers = `SELECT ` + actorColumns + `, follows.created FROM follows
                          INNER JOIN actors ON actors.id = follows.follower_id
                          WHERE follows.following_id = ?
                          ORDER BY follows.created DESC, follows.follower_id DESC
                          LIMIT ? OFFSET ?`
	sqlCountFollowers  = `SELECT count(*) FROM follows WHERE following_id = ?`
	sqlSelectFollowing = `SELECT ` + actorColumns + `, follows.created FROM follows
                          INNER JOIN actors ON actors.id = follows.following_id
                          WHERE follows.follower_id = ?
                          ORDER BY follows.created DESC, follows.following_id DESC
                          LIMIT ? OFFSET ?`
	sqlCountFollowing        = `SELECT count(*) FROM follows WHERE follower_id = ?`
	sqlSelectFollowerInboxes = `SELECT DISTINCT coalesce(actors.shared_inbox_url, actors.inbox_url) FROM follows
                                INNER JOIN actors ON actors.id = follows.follower_id
                                WHERE follows.following_id = ?`
)

// CreateFollow records that follower follows following. It reports whether
// a new edge was written; an existing edge keeps its original timestamp.
func (q *queries) CreateFollow(ctx context.Context, followingId int64, followerId int64) (bool, error) {
	res, err := q.q.ExecContext(ctx, sqlInsertFollow, followingId, followerId, q.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteFollowByFollowerURI removes the edge from the actor with the given
// uri to followingId in one statement. Missing actor or edge is not an error.
func (q *queries) DeleteFollowByFollowerURI(ctx context.Context, followingId int64, followerURI string) (bool, error) {
	res, err := q.q.ExecContext(ctx, sqlDeleteFollowByFollowerURI, followingId, followerURI)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q *queries) ReadFollow(ctx context.Context, followingId int64, followerId int64) (*domain.Follow, error) {
	var f domain.Follow
	err := q.q.QueryRowContext(ctx, sqlSelectFollow, followingId, followerId).Scan(&f.FollowingId, &f.FollowerId, &f.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// ReadFollowers returns one page of the actors following actorId, most
// recent follow first.
func (q *queries) ReadFollowers(ctx context.Context, actorId int64, limit int, offset int) ([]domain.FollowingActor, error) {
	return q.readFollowActors(ctx, sqlSelectFollowers, actorId, limit, offset)
}

func (q *queries) CountFollowers(ctx context.Context, actorId int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, sqlCountFollowers, actorId).Scan(&n)
	return n, err
}

// ReadFollowing returns one page of the actors actorId follows.
func (q *queries) ReadFollowing(ctx context.Context, actorId int64, limit int, offset int) ([]domain.FollowingActor, error) {
	return q.readFollowActors(ctx, sqlSelectFollowing, actorId, limit, offset)
}

func (q *queries) CountFollowing(ctx context.Context, actorId int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, sqlCountFollowing, actorId).Scan(&n)
	return n, err
}

// ReadFollowerInboxes returns the distinct delivery endpoints of everyone
// following actorId, preferring shared inboxes.
func (q *queries) ReadFollowerInboxes(ctx context.Context, actorId int64) ([]string, error) {
	rows, err := q.q.QueryContext(ctx, sqlSelectFollowerInboxes, actorId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inboxes []string
	for rows.Next() {
		var inbox string
		if err := rows.Scan(&inbox); err != nil {
			return nil, err
		}
		inboxes = append(inboxes, inbox)
	}
	return inboxes, rows.Err()
}

func (q *queries) readFollowActors(ctx context.Context, query string, actorId int64, limit int, offset int) ([]domain.FollowingActor, error) {
	rows, err := q.q.QueryContext(ctx, query, actorId, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []domain.FollowingActor
	for rows.Next() {
		var fa domain.FollowingActor
		a := &fa.Actor
		if err := rows.Scan(&a.Id, &a.AccountId, &a.URI, &a.Handle, &a.Name, &a.InboxURL, &a.SharedInboxURL, &a.URL, &a.CreatedAt, &fa.FollowedAt); err != nil {
			return nil, err
		}
		actors = append(actors, fa)
	}
	return actors, rows.Err()
}

// Inbox log
const (
	sqlInsertInboxRecord = `INSERT INTO inbox_log(activity_uri, activity_type, actor_uri, created) VALUES (?, ?, ?, ?)
                            ON CONFLICT (activity_uri) DO NOTHING`
	sqlSelectInboxRecord = `SELECT activity_uri, activity_type, actor_uri, created FROM inbox_log WHERE activity_uri = ?`
)

// RecordInbox marks an inbound activity id as applied. It reports false when
// the id was already recorded.
func (q *queries) RecordInbox(ctx context.Context, rec *domain.InboxRecord) (bool, error) {
	res, err := q.q.ExecContext(ctx, sqlInsertInboxRecord, rec.ActivityURI, rec.ActivityType, rec.ActorURI, q.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (q *queries) ReadInboxRecord(ctx context.Context, activityURI string) (*domain.InboxRecord, error) {
	var rec domain.InboxRecord
	err := q.q.QueryRowContext(ctx, sqlSelectInboxRecord, activityURI).Scan(&rec.ActivityURI, &rec.ActivityType, &rec.ActorURI, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// Delivery queue
const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, account_id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, account_id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
	sqlCountDeliveries         = `SELECT count(*) FROM delivery_queue`
)

func (q *queries) EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error {
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	now := q.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.NextRetryAt.IsZero() {
		item.NextRetryAt = now
	}
	_, err := q.q.ExecContext(ctx, sqlInsertDeliveryQueue,
		item.Id.String(),
		item.AccountId,
		item.InboxURI,
		item.ActivityJSON,
		item.Attempts,
		item.NextRetryAt.UTC(),
		item.CreatedAt.UTC(),
	)
	return err
}

// ReadPendingDeliveries returns up to limit items whose retry time has come.
func (q *queries) ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := q.q.QueryContext(ctx, sqlSelectPendingDeliveries, q.Now(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr string
		if err := rows.Scan(&idStr, &item.AccountId, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Id, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *queries) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error {
	_, err := q.q.ExecContext(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetry.UTC(), id.String())
	return err
}

func (q *queries) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	_, err := q.q.ExecContext(ctx, sqlDeleteDelivery, id.String())
	return err
}

func (q *queries) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, sqlCountDeliveries).Scan(&n)
	return n, err
}
