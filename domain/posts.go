package domain

import (
	"fmt"
	"time"
)

type Post struct {
	Id        int64
	URI       string
	ActorId   int64
	Content   string
	URL       *string
	CreatedAt time.Time
}

// PostWithActor is a post joined with its author, as listed on timelines.
type PostWithActor struct {
	Post
	Author Actor
}

func (post *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tURI: %s \n\tContent: %s \n\tCreatedAt: %s)", post.Id, post.URI, post.Content, post.CreatedAt)
}
