package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/gin-gonic/gin"
)

// handleInbox accepts an activity on the personal or the shared inbox. The
// request must carry a valid signature by the activity's actor. Accepted
// activities answer 202 whether or not they changed anything.
func (s *Server) handleInbox(c *gin.Context) {
	ctx := c.Request.Context()

	if username := c.Param("username"); username != "" {
		if _, _, err := s.fed.LocalActor(ctx, username); err != nil {
			s.abortWithError(c, err)
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	activity, err := activitypub.ParseActivity(body)
	if err != nil || activity.Actor == "" {
		s.logger.Debug("rejecting unparseable activity", "path", c.Request.URL.Path, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed activity"})
		return
	}

	owner, err := s.verifier.VerifyRequest(ctx, c.Request, body)
	if err != nil {
		s.logger.Debug("rejecting unsigned activity", "type", activity.Type, "actor", activity.Actor, "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	if owner != activity.Actor.String() {
		s.logger.Debug("signature owner does not match actor", "owner", owner, "actor", activity.Actor)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signer is not the actor"})
		return
	}

	if err := s.inbox.Process(ctx, activity); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
