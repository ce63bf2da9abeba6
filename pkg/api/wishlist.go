package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/wishlist"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listWishlist(c *gin.Context) {
	items, err := s.deps.Wishlist.List(c.Request.Context(), ownerID(c), c.Query("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) createWishlistItem(c *gin.Context) {
	var fields wishlist.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		s.fail(c, apperr.Invalid("error.invalidBody", err.Error(), nil))
		return
	}

	item, err := s.deps.Wishlist.Create(c.Request.Context(), ownerID(c), fields)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) deleteWishlistItem(c *gin.Context) {
	var body idBody
	_ = c.ShouldBindJSON(&body)

	affected, err := s.deps.Wishlist.Delete(c.Request.Context(), ownerID(c), body.ID)
	if err != nil {
		s.fail(c, withIDKey(err, "error.itemIdRequired", "item id is required"))
		return
	}
	s.logger.Debug("wishlist delete", "id", body.ID, "rows", affected)
	s.message(c, "message.itemDeleted")
}
