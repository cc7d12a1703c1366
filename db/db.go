package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/deemkeen/microblog/domain"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by single-row reads that match nothing.
	ErrNotFound = errors.New("db: not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	ErrDuplicate = errors.New("db: duplicate")
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every read and write. It is embedded by both DB and Tx so the
// same methods run against the pool or inside a transaction.
type queries struct {
	q   dbtx
	now func() time.Time
}

// DB is the database handle.
type DB struct {
	queries
	db *sql.DB
}

// Tx is a running transaction handed to WithTx callbacks.
type Tx struct {
	queries
}

// Option configures Open.
type Option func(*DB)

// WithClock replaces time.Now for every timestamp the store writes.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open opens (or creates) the sqlite database at path. Migrations are not
// applied; call RunMigrations.
func Open(path string, opts ...Option) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate&_time_format=sqlite", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(time.Hour)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{db: sqldb}
	db.q = sqldb
	db.now = time.Now
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	return db.db.Close()
}

// Now returns the store clock in UTC.
func (q *queries) Now() time.Time {
	return q.now().UTC()
}

// WithTx runs f inside a single immediate transaction. The whole transaction
// is retried with backoff when sqlite reports the database as busy.
func (db *DB) WithTx(ctx context.Context, f func(tx *Tx) error) error {
	return retry.Do(
		func() error {
			return db.runTx(ctx, f)
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(25*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("retrying busy transaction", "attempt", n+1, "err", err)
		}),
	)
}

func (db *DB) runTx(ctx context.Context, f func(tx *Tx) error) error {
	sqltx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := f(&Tx{queries{q: sqltx, now: db.now}}); err != nil {
		if rerr := sqltx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			slog.Error("error rolling back transaction", "err", rerr)
		}
		return err
	}
	return sqltx.Commit()
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code&0xff == sqlitelib.SQLITE_BUSY || code&0xff == sqlitelib.SQLITE_LOCKED
}

func isConstraint(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Accounts
const (
	sqlInsertAccount           = `INSERT INTO accounts(id, username, name, created) VALUES (1, ?, ?, ?) RETURNING id, username, name, created`
	sqlSelectAccountById       = `SELECT id, username, name, created FROM accounts WHERE id = ?`
	sqlSelectAccountByUsername = `SELECT id, username, name, created FROM accounts WHERE username = ?`
	sqlSelectFirstAccount      = `SELECT id, username, name, created FROM accounts ORDER BY id LIMIT 1`
	sqlCountAccounts           = `SELECT count(*) FROM accounts`
)

// InsertAccount creates the instance account. Only one account may exist;
// a second insert fails with ErrDuplicate.
func (q *queries) InsertAccount(ctx context.Context, username string, name string) (*domain.Account, error) {
	var acc domain.Account
	err := q.q.QueryRowContext(ctx, sqlInsertAccount, username, name, q.Now()).
		Scan(&acc.Id, &acc.Username, &acc.Name, &acc.CreatedAt)
	if err != nil {
		if isConstraint(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &acc, nil
}

func (q *queries) ReadAccountById(ctx context.Context, id int64) (*domain.Account, error) {
	return q.scanAccount(q.q.QueryRowContext(ctx, sqlSelectAccountById, id))
}

func (q *queries) ReadAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return q.scanAccount(q.q.QueryRowContext(ctx, sqlSelectAccountByUsername, username))
}

// ReadFirstAccount returns the instance account, or ErrNotFound before setup.
func (q *queries) ReadFirstAccount(ctx context.Context) (*domain.Account, error) {
	return q.scanAccount(q.q.QueryRowContext(ctx, sqlSelectFirstAccount))
}

func (q *queries) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, sqlCountAccounts).Scan(&n)
	return n, err
}

func (q *queries) scanAccount(row *sql.Row) (*domain.Account, error) {
	var acc domain.Account
	if err := row.Scan(&acc.Id, &acc.Username, &acc.Name, &acc.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &acc, nil
}

// Posts
const (
	postColumns = `posts.id, posts.uri, posts.actor_id, posts.content, posts.url, posts.created`

	sqlInsertPost = `INSERT INTO posts(uri, actor_id, content, url, created) VALUES (?, ?, ?, ?, ?)
                     ON CONFLICT (uri) DO NOTHING
                     RETURNING id, uri, actor_id, content, url, created`
	sqlUpdatePostLinks    = `UPDATE posts SET uri = ?, url = ? WHERE id = ?`
	sqlSelectPostById     = `SELECT ` + postColumns + ` FROM posts WHERE posts.id = ?`
	sqlSelectPostByURI    = `SELECT ` + postColumns + ` FROM posts WHERE posts.uri = ?`
	sqlSelectPostsByActor = `SELECT ` + postColumns + ` FROM posts WHERE posts.actor_id = ? ORDER BY posts.created DESC, posts.id DESC LIMIT ? OFFSET ?`
	sqlCountPostsByActor  = `SELECT count(*) FROM posts WHERE actor_id = ?`
	sqlSelectHomeTimeline = `SELECT ` + postColumns + `, ` + actorColumns + ` FROM posts
                              INNER JOIN actors ON actors.id = posts.actor_id
                              WHERE posts.actor_id = ?
                                 OR posts.actor_id IN (SELECT following_id FROM follows WHERE follower_id = ?)
                              ORDER BY posts.created DESC, posts.id DESC
                              LIMIT ?`
)

// InsertPost stores p. A post whose uri already exists is left untouched and
// ErrDuplicate is returned.
func (q *queries) InsertPost(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	created := p.CreatedAt
	if created.IsZero() {
		created = q.Now()
	}
	post, err := scanPost(q.q.QueryRowContext(ctx, sqlInsertPost, p.URI, p.ActorId, p.Content, p.URL, created.UTC()))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrDuplicate
	}
	return post, err
}

// UpdatePostLinks rewrites the canonical uri and url of a post once its id is known.
func (q *queries) UpdatePostLinks(ctx context.Context, id int64, uri string, url string) error {
	res, err := q.q.ExecContext(ctx, sqlUpdatePostLinks, uri, url, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *queries) ReadPostById(ctx context.Context, id int64) (*domain.Post, error) {
	return scanPost(q.q.QueryRowContext(ctx, sqlSelectPostById, id))
}

func (q *queries) ReadPostByURI(ctx context.Context, uri string) (*domain.Post, error) {
	return scanPost(q.q.QueryRowContext(ctx, sqlSelectPostByURI, uri))
}

// ReadPostsByActorId returns a page of the actor's posts, newest first.
func (q *queries) ReadPostsByActorId(ctx context.Context, actorId int64, limit int, offset int) ([]domain.Post, error) {
	rows, err := q.q.QueryContext(ctx, sqlSelectPostsByActor, actorId, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.Id, &p.URI, &p.ActorId, &p.Content, &p.URL, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (q *queries) CountPostsByActorId(ctx context.Context, actorId int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, sqlCountPostsByActor, actorId).Scan(&n)
	return n, err
}

// ReadHomeTimeline returns the newest posts written by the actor or by
// anyone the actor follows.
func (q *queries) ReadHomeTimeline(ctx context.Context, actorId int64, limit int) ([]domain.PostWithActor, error) {
	rows, err := q.q.QueryContext(ctx, sqlSelectHomeTimeline, actorId, actorId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.PostWithActor
	for rows.Next() {
		var p domain.PostWithActor
		a := &p.Author
		if err := rows.Scan(&p.Id, &p.URI, &p.ActorId, &p.Content, &p.URL, &p.CreatedAt,
			&a.Id, &a.AccountId, &a.URI, &a.Handle, &a.Name, &a.InboxURL, &a.SharedInboxURL, &a.URL, &a.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row *sql.Row) (*domain.Post, error) {
	var p domain.Post
	if err := row.Scan(&p.Id, &p.URI, &p.ActorId, &p.Content, &p.URL, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
