package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/i18n"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// fail writes the JSON error response for err. Store failures are logged
// with the failing operation and answered with the underlying message.
func (s *Server) fail(c *gin.Context, err error) {
	loc := locale(c)
	respond := func(code int, key string, params map[string]string) {
		c.JSON(code, gin.H{"error": i18n.Translate(loc, key, params)})
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		respond(http.StatusUnauthorized, "error.unauthorized", nil)
		return
	case errors.Is(err, apperr.ErrInvalidCredentials):
		respond(http.StatusUnauthorized, "error.invalidCredentials", nil)
		return
	case errors.Is(err, apperr.ErrEmailTaken):
		respond(http.StatusConflict, "error.emailTaken", nil)
		return
	case errors.Is(err, apperr.ErrUnavailable):
		s.logger.Error("identity service unavailable", "path", c.Request.URL.Path, "err", err)
		respond(http.StatusServiceUnavailable, "error.authUnavailable", nil)
		return
	}

	if v, ok := apperr.AsValidation(err); ok {
		respond(http.StatusBadRequest, v.Key, v.Params)
		return
	}
	if st, ok := apperr.AsStore(err); ok {
		s.logger.Error("store failure", "op", st.Op, "err", st.Err, "user_id", ownerID(c))
		c.JSON(http.StatusInternalServerError, gin.H{"error": st.Error()})
		return
	}

	s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	respond(http.StatusInternalServerError, "error.internal", nil)
}

// withIDKey swaps the generic id-required error for a resource specific one.
func withIDKey(err error, key, message string) error {
	if errors.Is(err, apperr.ErrIDRequired) {
		return apperr.Invalid(key, message, nil)
	}
	return err
}

func (s *Server) message(c *gin.Context, key string) {
	c.JSON(http.StatusOK, gin.H{"message": i18n.Translate(locale(c), key, nil)})
}
