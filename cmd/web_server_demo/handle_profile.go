package main

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/labstack/echo/v4"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

func (s *Server) handleFitbitSettings(e echo.Context) error {
	userId, ok := currentUserId(e)
	if !ok {
		return e.Redirect(302, "/login")
	}

	var b strings.Builder
	b.WriteString("<h1>Fitbit</h1>")

	for _, msg := range takeFlashes(e) {
		fmt.Fprintf(&b, "<p class=\"flash\">%s</p>", html.EscapeString(msg))
	}

	token, err := s.getFreshToken(e.Request().Context(), userId)
	if err != nil {
		var exchangeErr *oauth.ExchangeError
		if !errors.As(err, &exchangeErr) {
			return err
		}

		// Refresh was rejected; let the user re-link.
		b.WriteString("<p>Your Fitbit session expired. Connect again below.</p>")
		token = nil
	}

	if token == nil {
		b.WriteString(`<form method="post" action="/fitbit/connect"><button>Connect to Fitbit</button></form>`)
		return e.HTML(200, b.String())
	}

	owner, err := s.client.FetchResourceOwner(e.Request().Context(), token)
	if err != nil {
		var apiErr *oauth.ApiError
		if !errors.As(err, &apiErr) {
			return err
		}

		// Provider fault. The page still renders; it just omits profile data.
		owner = nil
	}

	if owner != nil {
		fmt.Fprintf(&b, "<p>You're authenticated. Welcome %s.</p>", html.EscapeString(owner.DisplayName))
		if owner.Avatar != "" {
			fmt.Fprintf(&b, `<img src="%s" alt="avatar">`, html.EscapeString(owner.Avatar))
		}
		if owner.AverageDailySteps != nil {
			fmt.Fprintf(&b, "<p><strong>Average daily steps:</strong> %d</p>", *owner.AverageDailySteps)
		}
	} else {
		b.WriteString("<p>You're authenticated.</p>")
	}

	b.WriteString(`<form method="post" action="/fitbit/revoke"><button>Revoke access to my Fitbit account</button></form>`)

	return e.HTML(200, b.String())
}

func (s *Server) handleAppSettings(e echo.Context) error {
	clientId, _ := s.settings.Get(settingClientId)

	var b strings.Builder
	b.WriteString("<h1>Fitbit application settings</h1>")

	for _, msg := range takeFlashes(e) {
		fmt.Fprintf(&b, "<p class=\"flash\">%s</p>", html.EscapeString(msg))
	}

	b.WriteString(`<form method="post" action="/admin/settings">`)
	fmt.Fprintf(&b, `<label>OAuth 2.0 Client ID <input name="client_id" value="%s"></label>`, html.EscapeString(clientId))
	b.WriteString(`<label>Client secret <input name="client_secret" type="password"></label>`)
	b.WriteString(`<button>Save</button></form>`)

	return e.HTML(200, b.String())
}

func (s *Server) handleAppSettingsSubmit(e echo.Context) error {
	if err := s.settings.Set(settingClientId, e.FormValue("client_id")); err != nil {
		return err
	}

	if secret := e.FormValue("client_secret"); secret != "" {
		if err := s.settings.Set(settingClientSecret, secret); err != nil {
			return err
		}
	}

	addFlash(e, "Application settings saved.")

	return e.Redirect(302, "/admin/settings")
}
