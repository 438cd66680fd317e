package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	oauth "github.com/mkarlsen/fitbit-oauth-golang"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "fitbit-oauth-demo",
		Usage:   "demo web server that links local accounts to fitbit",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":7070",
				EnvVars: []string{"FITBIT_DEMO_ADDR"},
			},
			&cli.StringFlag{
				Name:    "db",
				Value:   "fitbit-demo.db",
				EnvVars: []string{"FITBIT_DEMO_DB"},
			},
			&cli.StringFlag{
				Name:    "cookie-secret",
				EnvVars: []string{"FITBIT_DEMO_COOKIE_SECRET"},
			},
			&cli.StringFlag{
				Name:    "client-id",
				EnvVars: []string{"FITBIT_CLIENT_ID"},
			},
			&cli.StringFlag{
				Name:    "client-secret",
				EnvVars: []string{"FITBIT_CLIENT_SECRET"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "public base url of this server, used for the oauth callback",
				Value:   "http://localhost:7070",
				EnvVars: []string{"FITBIT_DEMO_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "accept-lang",
				Usage:   "unit system header for profile requests (empty, en_US or en_GB)",
				EnvVars: []string{"FITBIT_ACCEPT_LANG"},
			},
			&cli.StringFlag{
				Name:    "scopes",
				Value:   "profile activity",
				EnvVars: []string{"FITBIT_SCOPES"},
			},
		},
		Action: run,
	}

	app.RunAndExitOnError()
}

func run(cmd *cli.Context) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := gorm.Open(sqlite.Open(cmd.String("db")), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("could not open database: %w", err)
	}

	if err := db.AutoMigrate(&Account{}, &FitbitAccount{}, &AppSetting{}); err != nil {
		return fmt.Errorf("could not migrate database: %w", err)
	}

	cookieSecret := cmd.String("cookie-secret")
	if cookieSecret == "" {
		return fmt.Errorf("no cookie secret provided, generate one with the helper command")
	}

	settings := NewSettingsStore(db)

	// Command line credentials win; the admin settings page is the fallback
	// for deployments configured at runtime.
	clientId := cmd.String("client-id")
	clientSecret := cmd.String("client-secret")
	if clientId == "" {
		clientId, _ = settings.Get(settingClientId)
	}
	if clientSecret == "" {
		clientSecret, _ = settings.Get(settingClientSecret)
	}

	if clientId == "" || clientSecret == "" {
		return fmt.Errorf("no fitbit client credentials provided")
	}

	baseUrl := strings.TrimSuffix(cmd.String("base-url"), "/")

	client, err := oauth.NewClient(oauth.ClientArgs{
		Logger:       logger,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		AcceptLang:   cmd.String("accept-lang"),
		RedirectUriFunc: func() (string, error) {
			return baseUrl + "/fitbit/callback", nil
		},
	})
	if err != nil {
		return fmt.Errorf("could not create fitbit client: %w", err)
	}

	srv := NewServer(ServerArgs{
		Db:           db,
		Logger:       logger,
		Client:       client,
		Settings:     settings,
		CookieSecret: cookieSecret,
		Scopes:       strings.Fields(cmd.String("scopes")),
	})

	httpd := http.Server{
		Addr:    cmd.String("addr"),
		Handler: srv.e,
	}

	logger.Info("starting http server", "addr", cmd.String("addr"))

	if err := httpd.ListenAndServe(); err != nil {
		return err
	}

	return nil
}

type ServerArgs struct {
	Db           *gorm.DB
	Logger       *slog.Logger
	Client       ProviderClient
	Settings     *SettingsStore
	CookieSecret string
	Scopes       []string
}

type Server struct {
	e        *echo.Echo
	db       *gorm.DB
	logger   *slog.Logger
	client   ProviderClient
	tokens   *TokenStore
	settings *SettingsStore
	scopes   []string
}

func NewServer(args ServerArgs) *Server {
	s := &Server{
		db:       args.Db,
		logger:   args.Logger,
		client:   args.Client,
		tokens:   NewTokenStore(args.Db),
		settings: args.Settings,
		scopes:   args.Scopes,
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(slogecho.New(args.Logger))
	e.Use(session.Middleware(sessions.NewCookieStore([]byte(args.CookieSecret))))

	e.GET("/", s.handleIndex)
	e.GET("/login", s.handleLogin)
	e.POST("/login", s.handleLoginSubmit)
	e.POST("/logout", s.handleLogout)

	e.GET("/fitbit", s.handleFitbitSettings)
	e.POST("/fitbit/connect", s.handleConnect)
	e.GET("/fitbit/callback", s.handleCallback)
	e.POST("/fitbit/revoke", s.handleRevoke)

	e.GET("/admin/settings", s.handleAppSettings)
	e.POST("/admin/settings", s.handleAppSettingsSubmit)

	s.e = e

	return s
}
