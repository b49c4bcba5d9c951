package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"molluscadb/internal/auth"
	"molluscadb/internal/core"
	"molluscadb/internal/workspace"

	"github.com/labstack/echo/v4"
)

const (
	sessionCookie = "molluscadb_session"
	keyIdentity   = "identity"
	keyWorkspace  = "workspace"
)

type sessionResponse struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email"`
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if ck, err := r.Cookie(sessionCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (s *Server) signIn(c echo.Context) error {
	id, err := s.provider.SignIn(c.Request().Context(), c.Request())
	if err != nil {
		return err
	}
	token, err := s.sessions.Start(id)
	if err != nil {
		return err
	}
	if _, err := s.manager.Get(c.Request().Context(), id.Email); err != nil {
		s.sessions.End(token)
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     apiPrefix,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   c.Scheme() == "https",
	})
	s.logger.Info("signed in", "identity", id.Email)
	return c.JSON(http.StatusOK, sessionResponse{Token: token, Email: id.Email})
}

func (s *Server) signOut(c echo.Context) error {
	id, ok := s.sessions.End(sessionToken(c.Request()))
	if !ok {
		return auth.ErrUnauthenticated
	}
	if err := s.provider.SignOut(c.Request().Context(), id); err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{Name: sessionCookie, Path: apiPrefix, MaxAge: -1, Expires: time.Unix(0, 0)})
	s.logger.Info("signed out", "identity", id.Email)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) whoAmI(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionResponse{Email: identity(c).Email})
}

// requireSession resolves the session and the identity's workspace.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := s.sessions.Lookup(sessionToken(c.Request()))
		if !ok {
			return auth.ErrUnauthenticated
		}
		req := c.Request()
		ctx := core.WithActor(req.Context(), id.Email)
		c.SetRequest(req.WithContext(ctx))
		ws, err := s.manager.Get(ctx, id.Email)
		if err != nil {
			return err
		}
		c.Set(keyIdentity, id)
		c.Set(keyWorkspace, ws)
		return next(c)
	}
}

func identity(c echo.Context) auth.Identity {
	id, _ := c.Get(keyIdentity).(auth.Identity)
	return id
}

// ws returns the request's workspace after waiting briefly for snapshots
// of writes that already committed.
func (s *Server) ws(c echo.Context) (*workspace.Workspace, error) {
	w := c.Get(keyWorkspace).(*workspace.Workspace)
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.syncTimeout)
	defer cancel()
	if err := w.Sync(ctx); err != nil {
		if errors.Is(err, workspace.ErrClosed) {
			return nil, err
		}
		s.logger.Debug("workspace sync incomplete", "identity", w.Identity(), "error", err)
	}
	return w, nil
}
