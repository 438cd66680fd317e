package main

import (
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
	oauth_helpers "github.com/mkarlsen/fitbit-oauth-golang/internal/helpers"
)

func main() {
	app := &cli.App{
		Name:    "fitbit-oauth-helper",
		Version: versioninfo.Short(),
		Commands: []*cli.Command{
			runGenerateCookieSecret,
			runPrintAuthUrl,
		},
	}

	app.RunAndExitOnError()
}

var runGenerateCookieSecret = &cli.Command{
	Name:  "generate-cookie-secret",
	Usage: "generate a secret for the demo server's session cookie store",
	Action: func(cmd *cli.Context) error {
		secret, err := oauth_helpers.GenerateToken(32)
		if err != nil {
			return err
		}

		fmt.Println(secret)

		return nil
	},
}

var runPrintAuthUrl = &cli.Command{
	Name:  "print-auth-url",
	Usage: "build an authorization url for manual testing",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "client-id",
			Required: true,
			EnvVars:  []string{"FITBIT_CLIENT_ID"},
		},
		&cli.StringFlag{
			Name:     "client-secret",
			Required: true,
			EnvVars:  []string{"FITBIT_CLIENT_SECRET"},
		},
		&cli.StringFlag{
			Name:     "redirect-uri",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "scopes",
			Value: "profile activity",
		},
	},
	Action: func(cmd *cli.Context) error {
		client, err := oauth.NewClient(oauth.ClientArgs{
			ClientId:     cmd.String("client-id"),
			ClientSecret: cmd.String("client-secret"),
			RedirectUri:  cmd.String("redirect-uri"),
		})
		if err != nil {
			return err
		}

		state, err := client.GenerateState()
		if err != nil {
			return err
		}

		authUrl, err := client.AuthorizationURL(state, strings.Fields(cmd.String("scopes")))
		if err != nil {
			return err
		}

		fmt.Println("state:", state)
		fmt.Println(authUrl)

		return nil
	},
}
