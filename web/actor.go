package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleActor serves the actor document to ActivityPub clients and the
// profile page to browsers.
func (s *Server) handleActor(c *gin.Context) {
	if !wantsActivityJSON(c) {
		s.handleProfile(c)
		return
	}

	person, err := s.fed.DispatchActor(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if person == nil {
		notFound(c)
		return
	}
	renderActivityJSON(c, http.StatusOK, person)
}

// handlePost serves a local Note, as JSON or as a page.
func (s *Server) handlePost(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		notFound(c)
		return
	}
	username := c.Param("username")

	note, err := s.fed.DispatchNote(c.Request.Context(), username, id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if note == nil {
		notFound(c)
		return
	}

	if wantsActivityJSON(c) {
		renderActivityJSON(c, http.StatusOK, note)
		return
	}
	s.handlePostPage(c, username, id)
}
