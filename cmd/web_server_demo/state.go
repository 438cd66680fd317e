package main

import (
	"crypto/subtle"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const sessionName = "session"

// putState stores the in-flight authorization state in the user's session.
// Starting a new flow overwrites whatever state was there before, which
// invalidates any earlier half-finished redirect.
func putState(e echo.Context, state string) error {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return err
	}

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   300, // the handshake should finish within five minutes
		HttpOnly: true,
	}

	sess.Values["oauth_state"] = state

	return sess.Save(e.Request(), e.Response())
}

// takeState returns the stored state and clears it, so a state value can only
// be consumed once.
func takeState(e echo.Context) (string, bool, error) {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return "", false, err
	}

	raw, ok := sess.Values["oauth_state"]
	if !ok {
		return "", false, nil
	}

	state, ok := raw.(string)
	if !ok || state == "" {
		return "", false, nil
	}

	delete(sess.Values, "oauth_state")

	sess.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}

	if err := sess.Save(e.Request(), e.Response()); err != nil {
		return "", false, err
	}

	return state, true, nil
}

func stateMatches(expected, got string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

func addFlash(e echo.Context, msg string) {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return
	}

	sess.AddFlash(msg)
	sess.Save(e.Request(), e.Response())
}

func takeFlashes(e echo.Context) []string {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return nil
	}

	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}

	var msgs []string
	for _, f := range raw {
		if s, ok := f.(string); ok {
			msgs = append(msgs, s)
		}
	}

	sess.Save(e.Request(), e.Response())

	return msgs
}
