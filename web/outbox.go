package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/gin-gonic/gin"
)

const itemsPerPage = 20

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}

// handleOutbox serves the Create(Note) activities of the account, newest
// first. Without a page parameter only the collection summary is returned.
func (s *Server) handleOutbox(c *gin.Context) {
	ctx := c.Request.Context()
	username := c.Param("username")
	_, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	outboxURL := s.fed.Outbox(username)

	page := ParsePageParam(c.Query("page"))
	if page == 0 {
		total, err := s.fed.DB().CountPostsByActorId(ctx, actor.Id)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		renderActivityJSON(c, http.StatusOK, activitypub.OrderedCollection{
			Context:    activitypub.ActivityStreamsContext,
			ID:         outboxURL,
			Type:       "OrderedCollection",
			TotalItems: total,
			First:      fmt.Sprintf("%s?page=1", outboxURL),
		})
		return
	}

	posts, err := s.fed.DB().ReadPostsByActorId(ctx, actor.Id, itemsPerPage+1, (page-1)*itemsPerPage)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	hasMore := len(posts) > itemsPerPage
	if hasMore {
		posts = posts[:itemsPerPage]
	}

	items := make([]*activitypub.Activity, 0, len(posts))
	for i := range posts {
		create, err := s.fed.CreateFor(username, &posts[i])
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		items = append(items, create)
	}

	collectionPage := activitypub.OrderedCollectionPage{
		Context:      activitypub.ActivityStreamsContext,
		ID:           fmt.Sprintf("%s?page=%d", outboxURL, page),
		Type:         "OrderedCollectionPage",
		PartOf:       outboxURL,
		OrderedItems: items,
	}
	if hasMore {
		collectionPage.Next = fmt.Sprintf("%s?page=%d", outboxURL, page+1)
	}
	if page > 1 {
		collectionPage.Prev = fmt.Sprintf("%s?page=%d", outboxURL, page-1)
	}
	renderActivityJSON(c, http.StatusOK, collectionPage)
}

// handleFollowers serves the followers collection. The bare URL yields the
// summary with a link to the first page; ?cursor= selects a page.
func (s *Server) handleFollowers(c *gin.Context) {
	if !wantsActivityJSON(c) {
		s.handleFollowersPage(c)
		return
	}

	ctx := c.Request.Context()
	username := c.Param("username")
	followersURL := s.fed.Followers(username)

	total, err := s.fed.CountFollowers(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	cursor, paged := c.GetQuery("cursor")
	if !paged {
		renderActivityJSON(c, http.StatusOK, activitypub.OrderedCollection{
			Context:    activitypub.ActivityStreamsContext,
			ID:         followersURL,
			Type:       "OrderedCollection",
			TotalItems: total,
			First:      followersURL + "?cursor=",
		})
		return
	}

	page, err := s.fed.DispatchFollowers(ctx, username, cursor)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if page == nil {
		notFound(c)
		return
	}

	items := make([]string, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, r.ID)
	}
	collectionPage := activitypub.OrderedCollectionPage{
		Context:      activitypub.ActivityStreamsContext,
		ID:           followersURL + "?cursor=" + url.QueryEscape(cursor),
		Type:         "OrderedCollectionPage",
		TotalItems:   total,
		PartOf:       followersURL,
		OrderedItems: items,
	}
	if page.NextCursor != "" {
		collectionPage.Next = followersURL + "?cursor=" + url.QueryEscape(page.NextCursor)
	}
	renderActivityJSON(c, http.StatusOK, collectionPage)
}

// handleFollowing serves the accounts the local actor follows, paged like
// the outbox.
func (s *Server) handleFollowing(c *gin.Context) {
	if !wantsActivityJSON(c) {
		s.handleFollowingPage(c)
		return
	}

	ctx := c.Request.Context()
	username := c.Param("username")
	_, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	followingURL := s.fed.Following(username)

	total, err := s.fed.DB().CountFollowing(ctx, actor.Id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	page := ParsePageParam(c.Query("page"))
	if page == 0 {
		renderActivityJSON(c, http.StatusOK, activitypub.OrderedCollection{
			Context:    activitypub.ActivityStreamsContext,
			ID:         followingURL,
			Type:       "OrderedCollection",
			TotalItems: total,
			First:      fmt.Sprintf("%s?page=1", followingURL),
		})
		return
	}

	rows, err := s.fed.DB().ReadFollowing(ctx, actor.Id, itemsPerPage+1, (page-1)*itemsPerPage)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	hasMore := len(rows) > itemsPerPage
	if hasMore {
		rows = rows[:itemsPerPage]
	}
	items := make([]string, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.URI)
	}

	collectionPage := activitypub.OrderedCollectionPage{
		Context:      activitypub.ActivityStreamsContext,
		ID:           fmt.Sprintf("%s?page=%d", followingURL, page),
		Type:         "OrderedCollectionPage",
		TotalItems:   total,
		PartOf:       followingURL,
		OrderedItems: items,
	}
	if hasMore {
		collectionPage.Next = fmt.Sprintf("%s?page=%d", followingURL, page+1)
	}
	if page > 1 {
		collectionPage.Prev = fmt.Sprintf("%s?page=%d", followingURL, page-1)
	}
	renderActivityJSON(c, http.StatusOK, collectionPage)
}
