package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"github.com/gin-gonic/gin"
)

const postsPerPage = 20

type PostView struct {
	Author    string
	Handle    string
	Link      string
	Content   string
	CreatedAt time.Time
}

type ActorView struct {
	Name     string
	Handle   string
	Link     string
	Since    time.Time
	IsRemote bool
}

type pageData struct {
	Title    string
	Handle   string
	Username string
	Flash    string
	Error    string
}

func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else if duration < 30*24*time.Hour {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	} else {
		return t.Format("Jan 2, 2006")
	}
}

func postView(p domain.Post, author domain.Actor) PostView {
	link := p.URI
	if p.URL != nil {
		link = *p.URL
	}
	return PostView{
		Author:    author.DisplayName(),
		Handle:    author.Handle,
		Link:      link,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	}
}

func actorView(a domain.FollowingActor) ActorView {
	return ActorView{
		Name:     a.DisplayName(),
		Handle:   a.Handle,
		Link:     a.Link(),
		Since:    a.FollowedAt,
		IsRemote: !a.IsLocal(),
	}
}

func pageParam(c *gin.Context) int {
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		return p
	}
	return 1
}

// handleIndex shows the home timeline: own posts and posts of followed
// actors. Without an account it points at the setup form.
func (s *Server) handleIndex(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := s.fed.DB().ReadFirstAccount(ctx)
	if errors.Is(err, db.ErrNotFound) {
		c.HTML(http.StatusOK, "setup.html", gin.H{
			"Page":    pageData{Title: "Welcome"},
			"Enabled": s.conf.Conf.WebPassword != "",
		})
		return
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	_, actor, err := s.fed.LocalActor(ctx, acc.Username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	timeline, err := s.fed.DB().ReadHomeTimeline(ctx, actor.Id, 50)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	posts := make([]PostView, 0, len(timeline))
	for _, p := range timeline {
		posts = append(posts, postView(p.Post, p.Author))
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Page":     pageData{Title: "Home", Handle: actor.Handle, Username: acc.Username, Flash: c.Query("flash")},
		"Posts":    posts,
		"CanWrite": s.conf.Conf.WebPassword != "",
	})
}

func (s *Server) handleProfile(c *gin.Context) {
	ctx := c.Request.Context()
	username := c.Param("username")
	acc, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	page := pageParam(c)
	posts, err := s.fed.DB().ReadPostsByActorId(ctx, actor.Id, postsPerPage+1, (page-1)*postsPerPage)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	hasNext := len(posts) > postsPerPage
	if hasNext {
		posts = posts[:postsPerPage]
	}
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView(p, *actor))
	}

	total, err := s.fed.DB().CountPostsByActorId(ctx, actor.Id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	followers, err := s.fed.DB().CountFollowers(ctx, actor.Id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	following, err := s.fed.DB().CountFollowing(ctx, actor.Id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Vary", "Accept")
	c.HTML(http.StatusOK, "profile.html", gin.H{
		"Page":       pageData{Title: actor.Handle, Handle: actor.Handle, Username: acc.Username},
		"Name":       acc.Name,
		"Joined":     acc.CreatedAt,
		"Posts":      views,
		"TotalPosts": total,
		"Followers":  followers,
		"Following":  following,
		"HasPrev":    page > 1,
		"HasNext":    hasNext,
		"PrevPage":   page - 1,
		"NextPage":   page + 1,
	})
}

func (s *Server) handlePostPage(c *gin.Context, username string, id int64) {
	ctx := c.Request.Context()
	_, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	post, err := s.fed.DB().ReadPostById(ctx, id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Header("Vary", "Accept")
	c.HTML(http.StatusOK, "post.html", gin.H{
		"Page": pageData{Title: actor.Handle, Handle: actor.Handle, Username: username},
		"Post": postView(*post, *actor),
	})
}

func (s *Server) handleFollowersPage(c *gin.Context) {
	s.renderActorList(c, "Followers", s.fed.DB().ReadFollowers)
}

func (s *Server) handleFollowingPage(c *gin.Context) {
	s.renderActorList(c, "Following", s.fed.DB().ReadFollowing)
}

type actorListReader func(ctx context.Context, actorId int64, limit int, offset int) ([]domain.FollowingActor, error)

func (s *Server) renderActorList(c *gin.Context, title string, read actorListReader) {
	ctx := c.Request.Context()
	username := c.Param("username")
	_, actor, err := s.fed.LocalActor(ctx, username)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	page := pageParam(c)
	rows, err := read(ctx, actor.Id, postsPerPage+1, (page-1)*postsPerPage)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	hasNext := len(rows) > postsPerPage
	if hasNext {
		rows = rows[:postsPerPage]
	}
	views := make([]ActorView, 0, len(rows))
	for _, r := range rows {
		views = append(views, actorView(r))
	}

	c.Header("Vary", "Accept")
	c.HTML(http.StatusOK, "actors.html", gin.H{
		"Page":     pageData{Title: title, Handle: actor.Handle, Username: username},
		"Heading":  title,
		"Actors":   views,
		"HasPrev":  page > 1,
		"HasNext":  hasNext,
		"PrevPage": page - 1,
		"NextPage": page + 1,
	})
}

func (s *Server) handleSetupForm(c *gin.Context) {
	n, err := s.fed.DB().CountAccounts(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if n > 0 {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.HTML(http.StatusOK, "setup.html", gin.H{"Page": pageData{Title: "Setup"}, "Enabled": true, "Form": true})
}

func (s *Server) handleSetup(c *gin.Context) {
	_, _, err := s.fed.CreateLocalAccount(c.Request.Context(), c.PostForm("username"), c.PostForm("name"))
	if activitypub.IsValidation(err) {
		c.HTML(http.StatusBadRequest, "setup.html", gin.H{
			"Page":    pageData{Title: "Setup", Error: err.Error()},
			"Enabled": true,
			"Form":    true,
		})
		return
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/?flash=account+created")
}

func (s *Server) handlePublish(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := s.fed.DB().ReadFirstAccount(ctx)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if _, err := s.fed.Publish(ctx, acc.Username, c.PostForm("content")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/?flash=published")
}

func (s *Server) handleFollow(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := s.fed.DB().ReadFirstAccount(ctx)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if err := s.fed.RequestFollow(ctx, acc.Username, c.PostForm("target")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/?flash=follow+requested")
}
