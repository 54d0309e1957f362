package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nexnote/nexnote/internal/session"
)

// Sessions binds the session store to a browser cookie. A request without a
// cookie gets a fresh UUID and starts from a zero state.
type Sessions struct {
	Store      session.Store
	CookieName string
	TTL        time.Duration
}

func (s *Sessions) load(c echo.Context) (string, session.State, error) {
	if cookie, err := c.Cookie(s.CookieName); err == nil && cookie.Value != "" {
		state, err := s.Store.Get(c.Request().Context(), cookie.Value)
		if err != nil {
			return "", session.State{}, err
		}
		return cookie.Value, state, nil
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     s.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(s.TTL),
	})
	return id, session.State{}, nil
}

func (s *Sessions) save(c echo.Context, id string, state session.State) error {
	return s.Store.Save(c.Request().Context(), id, state)
}
