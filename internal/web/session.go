package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dcc/internal/auth"
)

const userIDKey = "dcc.userID"

var errSignedOut = errors.New("not signed in")

// Session is the sign-in state the server follows. *auth.Manager satisfies it.
type Session interface {
	Subscribe(fn func(*auth.User)) (cancel func())
	SignOut() error
}

// setUser is the Session subscriber. A nil user ends every open stream and
// makes the API answer 401 until the next sign-in.
func (s *Server) setUser(u *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u == nil {
		if s.signedIn {
			s.signedIn = false
			close(s.signedOut)
			s.log.Printf("session ended for %s", s.user.ID)
		}
		return
	}
	if !s.signedIn || s.user.ID != u.ID {
		s.log.Printf("session user is %s", u.ID)
	}
	s.user = *u
	if !s.signedIn {
		s.signedIn = true
		s.signedOut = make(chan struct{})
	}
}

// current returns the signed-in user and a channel closed on sign-out.
func (s *Server) current() (auth.User, bool, <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.signedIn, s.signedOut
}

func (s *Server) requireUser(c *gin.Context) {
	user, ok, _ := s.current()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   errSignedOut.Error(),
		})
		return
	}
	c.Set(userIDKey, user.ID)
	c.Next()
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (s *Server) handleSession(c *gin.Context) {
	user, ok, _ := s.current()
	resp := gin.H{"success": true, "signedIn": ok}
	if ok {
		resp["data"] = user
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogout(c *gin.Context) {
	if s.session == nil {
		badRequest(c, errors.New("this server has no sign-in session"))
		return
	}
	if err := s.session.SignOut(); err != nil {
		s.fail(c, "sign out", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
