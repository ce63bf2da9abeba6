package api

import (
	"bookshelf/pkg/apperr"
	"bookshelf/pkg/session"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func sessionResponse(sess *session.Session) gin.H {
	resp := gin.H{"user": sess.User}
	if sess.AccessToken != "" {
		resp["accessToken"] = sess.AccessToken
		resp["expiresAt"] = sess.ExpiresAt
	}
	return resp
}

func (s *Server) setSessionCookie(c *gin.Context, sess *session.Session) {
	if sess.AccessToken == "" {
		return
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.Auth.CookieName, sess.AccessToken, maxAge, "/", "", s.cfg.Auth.CookieSecure, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.Auth.CookieName, "", -1, "/", "", s.cfg.Auth.CookieSecure, true)
}

func (s *Server) signUp(c *gin.Context) {
	var creds session.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		s.fail(c, apperr.Invalid("error.invalidBody", err.Error(), nil))
		return
	}

	sess, err := s.deps.Sessions.SignUp(c.Request.Context(), creds)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, sess)
	c.JSON(http.StatusCreated, sessionResponse(sess))
}

func (s *Server) login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, apperr.Invalid("error.invalidBody", err.Error(), nil))
		return
	}

	sess, err := s.deps.Sessions.SignIn(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.setSessionCookie(c, sess)
	c.JSON(http.StatusOK, sessionResponse(sess))
}

func (s *Server) logout(c *gin.Context) {
	if err := s.deps.Sessions.SignOut(c.Request.Context(), s.sessionToken(c)); err != nil {
		s.fail(c, err)
		return
	}
	s.clearSessionCookie(c)
	s.message(c, "message.loggedOut")
}

func (s *Server) currentSession(c *gin.Context) {
	user, err := s.deps.Sessions.Resolve(c.Request.Context(), s.sessionToken(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
