package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor is the cached representation of a local or remote ActivityPub actor.
// Remote rows have a nil AccountId.
type Actor struct {
	Id             int64
	AccountId      *int64
	URI            string
	Handle         string
	Name           *string
	InboxURL       string
	SharedInboxURL *string
	URL            *string
	CreatedAt      time.Time
}

// IsLocal reports whether the actor belongs to the local account.
func (a *Actor) IsLocal() bool {
	return a.AccountId != nil
}

// DisplayName returns the name when set, the handle otherwise.
func (a *Actor) DisplayName() string {
	if a.Name != nil && *a.Name != "" {
		return *a.Name
	}
	return a.Handle
}

// Link returns the profile URL when known, the actor URI otherwise.
func (a *Actor) Link() string {
	if a.URL != nil && *a.URL != "" {
		return *a.URL
	}
	return a.URI
}

// KeyType is an asymmetric key algorithm family.
type KeyType string

const (
	KeyTypeRSA     KeyType = "RSASSA-PKCS1-v1_5"
	KeyTypeEd25519 KeyType = "Ed25519"
)

// KeyTypes lists the supported families in the order they are served.
// The first entry is the primary signing key.
var KeyTypes = []KeyType{KeyTypeRSA, KeyTypeEd25519}

// Key is a persisted key pair row. Both halves are JWK JSON documents.
type Key struct {
	AccountId  int64
	Type       KeyType
	PrivateKey string
	PublicKey  string
	CreatedAt  time.Time
}

// Follow is a directed edge: FollowerId follows FollowingId.
type Follow struct {
	FollowingId int64
	FollowerId  int64
	CreatedAt   time.Time
}

// FollowingActor is one side of a follow edge together with the edge time.
type FollowingActor struct {
	Actor
	FollowedAt time.Time
}

// InboxRecord marks an inbound activity id as processed.
type InboxRecord struct {
	ActivityURI  string
	ActivityType string
	ActorURI     string
	CreatedAt    time.Time
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	AccountId    int64
	InboxURI     string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
