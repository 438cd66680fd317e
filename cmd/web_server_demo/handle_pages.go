package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm/clause"
)

func (s *Server) handleIndex(e echo.Context) error {
	if _, ok := currentUserId(e); !ok {
		return e.Redirect(302, "/login")
	}

	return e.Redirect(302, "/fitbit")
}

func (s *Server) handleLogin(e echo.Context) error {
	return e.HTML(200, `<h1>Log in</h1><form method="post" action="/login"><label>Username <input name="username"></label><button>Log in</button></form>`)
}

// handleLoginSubmit stands in for the host application's account system: it
// creates the local user on first login and drops their id in the session.
func (s *Server) handleLoginSubmit(e echo.Context) error {
	username := e.FormValue("username")
	if username == "" {
		return e.Redirect(302, "/login?e=username-empty")
	}

	var account Account
	if err := s.db.Raw("SELECT * FROM accounts WHERE username = ?", username).Scan(&account).Error; err != nil {
		return err
	}

	if account.ID == "" {
		account = Account{
			ID:        uuid.NewString(),
			Username:  username,
			CreatedAt: time.Now(),
		}

		if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
			return err
		}
	}

	sess, err := session.Get(sessionName, e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}

	sess.Values["user_id"] = account.ID

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(302, "/fitbit")
}

func (s *Server) handleLogout(e echo.Context) error {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return err
	}

	return e.Redirect(302, "/login")
}
