package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/entries"
	"net/http"

	"github.com/gin-gonic/gin"
)

// idBody is the body of the DELETE routes.
type idBody struct {
	ID string `json:"id"`
}

func (s *Server) listEntries(c *gin.Context) {
	list, err := s.deps.Entries.List(c.Request.Context(), ownerID(c), c.Query("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createEntry(c *gin.Context) {
	var fields entries.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		s.fail(c, apperr.Invalid("error.invalidBody", err.Error(), nil))
		return
	}

	entry, err := s.deps.Entries.Create(c.Request.Context(), ownerID(c), fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) deleteEntry(c *gin.Context) {
	// a missing or unreadable body leaves the id empty
	var body idBody
	_ = c.ShouldBindJSON(&body)

	affected, err := s.deps.Entries.Delete(c.Request.Context(), ownerID(c), body.ID)
	if err != nil {
		s.fail(c, withIDKey(err, "error.entryIdRequired", "entry id is required"))
		return
	}
	s.logger.Debug("entry delete", "id", body.ID, "rows", affected)
	s.message(c, "message.entryDeleted")
}
