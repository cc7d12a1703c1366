package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/microblog/util"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
)

const rssItems = 50

// GetRSS renders the latest posts of a local account as an RSS document.
func (s *Server) GetRSS(ctx context.Context, username string) (string, error) {
	acc, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		return "", err
	}
	posts, err := s.fed.DB().ReadPostsByActorId(ctx, actor.Id, rssItems, 0)
	if err != nil {
		return "", err
	}

	author := &feeds.Author{Name: acc.Name, Email: fmt.Sprintf("%s@%s", acc.Username, s.fed.Host())}
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s (%s)", acc.Name, actor.Handle),
		Link:        &feeds.Link{Href: actor.URI},
		Description: fmt.Sprintf("Posts by %s", actor.Handle),
		Author:      author,
		Created:     acc.CreatedAt,
	}
	if len(posts) > 0 {
		feed.Updated = posts[0].CreatedAt
	} else {
		feed.Updated = time.Now()
	}

	for _, post := range posts {
		link := post.URI
		if post.URL != nil {
			link = *post.URL
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      post.URI,
			Title:   post.CreatedAt.UTC().Format(util.DateTimeFormat()),
			Link:    &feeds.Link{Href: link},
			Content: post.Content,
			Author:  author,
			Created: post.CreatedAt,
		})
	}
	return feed.ToRss()
}

func (s *Server) handleRSS(c *gin.Context) {
	rss, err := s.GetRSS(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}
