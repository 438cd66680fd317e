package main

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

func (s *Server) handleConnect(e echo.Context) error {
	userId, ok := currentUserId(e)
	if !ok {
		return e.Redirect(302, "/login")
	}

	state, err := s.client.GenerateState()
	if err != nil {
		return err
	}

	authUrl, err := s.client.AuthorizationURL(state, s.scopes)
	if err != nil {
		return err
	}

	if err := putState(e, state); err != nil {
		return err
	}

	s.logger.Info("starting fitbit authorization", "user", userId)

	return e.Redirect(302, authUrl)
}

func (s *Server) handleCallback(e echo.Context) error {
	userId, ok := currentUserId(e)
	if !ok {
		return e.Redirect(302, "/login")
	}

	resCode := e.QueryParam("code")
	resState := e.QueryParam("state")

	// The state check gates everything below: no exchange and no persistence
	// happen unless the round-tripped value matches the session's.
	sessState, ok, err := takeState(e)
	if err != nil {
		return err
	}

	if !ok || resState == "" || !stateMatches(sessState, resState) {
		s.logger.Warn("fitbit callback state mismatch", "user", userId)
		return echo.NewHTTPError(http.StatusForbidden, "authorization state mismatch")
	}

	token, err := s.client.ExchangeCode(e.Request().Context(), resCode)
	if err != nil {
		var exchangeErr *oauth.ExchangeError
		if errors.As(err, &exchangeErr) {
			s.logger.Error("fitbit code exchange failed", "user", userId, "err", err)
			addFlash(e, "Your Fitbit account could not be connected. "+exchangeErr.Message)
			return e.Redirect(302, "/fitbit")
		}

		return err
	}

	if err := s.tokens.Save(userId, token); err != nil {
		return err
	}

	addFlash(e, "Your Fitbit account is now connected.")

	return e.Redirect(302, "/fitbit")
}

func (s *Server) handleRevoke(e echo.Context) error {
	userId, ok := currentUserId(e)
	if !ok {
		return e.Redirect(302, "/login")
	}

	token, err := s.tokens.Load(userId)
	if err != nil {
		return err
	}

	if token != nil {
		// Best effort on the provider side. The local credential goes away
		// either way so the account cannot get stuck linked.
		if err := s.client.Revoke(e.Request().Context(), token); err != nil {
			s.logger.Error("fitbit revoke failed", "user", userId, "err", err)
			addFlash(e, "There was an error revoking access at Fitbit: "+err.Error())
		}
	}

	if err := s.tokens.Delete(userId); err != nil {
		return err
	}

	addFlash(e, "Access to your Fitbit account has been revoked.")

	return e.Redirect(302, "/fitbit")
}
