package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

func currentUserId(e echo.Context) (string, bool) {
	sess, err := session.Get(sessionName, e)
	if err != nil {
		return "", false
	}

	raw, ok := sess.Values["user_id"]
	if !ok {
		return "", false
	}

	userId, ok := raw.(string)

	return userId, ok && userId != ""
}

// getFreshToken loads the user's stored token and refreshes it when it is
// about to expire. Returns (nil, nil) when the user has no linked account.
func (s *Server) getFreshToken(ctx context.Context, userId string) (*oauth.Token, error) {
	token, err := s.tokens.Load(userId)
	if err != nil {
		return nil, err
	}

	if token == nil {
		return nil, nil
	}

	if !token.Expired(5*time.Minute) || token.RefreshToken == "" {
		return token, nil
	}

	refreshed, err := s.client.Refresh(ctx, token.RefreshToken)
	if err != nil {
		var exchangeErr *oauth.ExchangeError
		if errors.As(err, &exchangeErr) {
			s.logger.Error("could not refresh fitbit token", "user", userId, "err", err)
			return nil, err
		}

		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	if err := s.tokens.Save(userId, refreshed); err != nil {
		return nil, err
	}

	return refreshed, nil
}
