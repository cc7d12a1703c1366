package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []webfingerLink `json:"links"`
}

// webfingerUser extracts the local username from an acct: or actor URI
// resource. ok is false when the resource does not name this host.
func (s *Server) webfingerUser(resource string) (string, bool) {
	if strings.HasPrefix(resource, "acct:") {
		user, host, ok := activitypub.ParseHandle(strings.TrimPrefix(resource, "acct:"))
		if !ok || !strings.EqualFold(host, s.fed.Host()) {
			return "", false
		}
		return user, true
	}
	kind, identifier, _ := s.fed.ParseURI(resource)
	if kind != activitypub.URIActor {
		return "", false
	}
	return identifier, true
}

func (s *Server) handleWebfinger(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")

	username, ok := s.webfingerUser(c.Query("resource"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	acc, actor, err := s.fed.LocalActor(c.Request.Context(), username)
	if errors.Is(err, activitypub.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, webfingerResponse{
		Subject: "acct:" + acc.Username + "@" + s.fed.Host(),
		Aliases: []string{actor.URI},
		Links: []webfingerLink{
			{Rel: "self", Type: activitypub.ContentTypeActivityJSON, Href: actor.URI},
			{Rel: "http://webfinger.net/rel/profile-page", Type: "text/html", Href: actor.URI},
		},
	})
}
