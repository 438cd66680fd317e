package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultAuthorizationEndpoint is where the resource owner's browser gets
	// sent to approve the grant.
	DefaultAuthorizationEndpoint = "https://www.fitbit.com/oauth2/authorize"
	DefaultTokenEndpoint         = "https://api.fitbit.com/oauth2/token"
	DefaultRevokeEndpoint        = "https://api.fitbit.com/oauth2/revoke"
	DefaultApiBase               = "https://api.fitbit.com"

	// HeaderAcceptLang toggles between the unit systems the API supports.
	HeaderAcceptLang = "Accept-Language"

	ProfileResource = "/1/user/-/profile.json"

	errorTypeInsufficientScope = "insufficient_scope"
)

type Client struct {
	h            *http.Client
	log          *slog.Logger
	clientId     string
	clientSecret string
	acceptLang   string

	authorizationEndpoint string
	tokenEndpoint         string
	revokeEndpoint        string
	apiBase               string

	redirectUriFn func() (string, error)

	mu          sync.Mutex
	redirectUri string
}

type ClientArgs struct {
	H            *http.Client
	Logger       *slog.Logger
	ClientId     string
	ClientSecret string

	// RedirectUri is the callback the provider sends the user back to. If the
	// canonical URL is not known at construction time (routing not built yet),
	// leave it empty and supply RedirectUriFunc instead; it is called once, on
	// first use, and the result is kept for the client's lifetime.
	RedirectUri     string
	RedirectUriFunc func() (string, error)

	// AcceptLang selects the unit system for profile requests. See
	// AcceptLangOptions for supported values. Empty means metric.
	AcceptLang string

	AuthorizationEndpoint string
	TokenEndpoint         string
	RevokeEndpoint        string
	ApiBase               string
}

func NewClient(args ClientArgs) (*Client, error) {
	if args.ClientId == "" {
		return nil, fmt.Errorf("no client id provided")
	}

	if args.ClientSecret == "" {
		return nil, fmt.Errorf("no client secret provided")
	}

	if args.RedirectUri == "" && args.RedirectUriFunc == nil {
		return nil, fmt.Errorf("no redirect uri or redirect uri func provided")
	}

	if args.H == nil {
		args.H = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	if args.AuthorizationEndpoint == "" {
		args.AuthorizationEndpoint = DefaultAuthorizationEndpoint
	}

	if args.TokenEndpoint == "" {
		args.TokenEndpoint = DefaultTokenEndpoint
	}

	if args.RevokeEndpoint == "" {
		args.RevokeEndpoint = DefaultRevokeEndpoint
	}

	if args.ApiBase == "" {
		args.ApiBase = DefaultApiBase
	}

	return &Client{
		h:                     args.H,
		log:                   args.Logger,
		clientId:              args.ClientId,
		clientSecret:          args.ClientSecret,
		acceptLang:            args.AcceptLang,
		authorizationEndpoint: args.AuthorizationEndpoint,
		tokenEndpoint:         args.TokenEndpoint,
		revokeEndpoint:        args.RevokeEndpoint,
		apiBase:               args.ApiBase,
		redirectUri:           args.RedirectUri,
		redirectUriFn:         args.RedirectUriFunc,
	}, nil
}

// SetAcceptLang changes the Accept-Language header sent with api requests.
func (c *Client) SetAcceptLang(acceptLang string) {
	c.acceptLang = acceptLang
}

// AcceptLangOptions returns the supported Accept-Language values, keyed by
// header value. Each value is the name of the unit system it selects.
func AcceptLangOptions() map[string]string {
	return map[string]string{
		"":      "Metric",
		"en_US": "US",
		"en_GB": "UK",
	}
}

func (c *Client) resolveRedirectUri() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redirectUri != "" {
		return c.redirectUri, nil
	}

	uri, err := c.redirectUriFn()
	if err != nil {
		return "", fmt.Errorf("could not resolve redirect uri: %w", err)
	}

	if uri == "" {
		return "", fmt.Errorf("resolved redirect uri was empty")
	}

	c.redirectUri = uri

	return uri, nil
}

// GenerateState returns a random, unguessable value for the state parameter.
func (c *Client) GenerateState() (string, error) {
	state, err := generateToken(16)
	if err != nil {
		return "", fmt.Errorf("could not generate state token: %w", err)
	}

	return state, nil
}

// AuthorizationURL builds the URL the user is redirected to in order to
// approve the grant.
func (c *Client) AuthorizationURL(state string, scopes []string) (string, error) {
	redirectUri, err := c.resolveRedirectUri()
	if err != nil {
		return "", err
	}

	u, err := url.Parse(c.authorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("could not parse authorization endpoint: %w", err)
	}

	params := url.Values{
		"client_id":     {c.clientId},
		"redirect_uri":  {redirectUri},
		"response_type": {"code"},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
	}

	u.RawQuery = params.Encode()

	return u.String(), nil
}

// ExchangeCode performs the authorization code grant. Provider rejections and
// transport failures both surface as *ExchangeError.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	redirectUri, err := c.resolveRedirectUri()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"client_id":    {c.clientId},
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectUri},
	}

	return c.tokenRequest(ctx, params)
}

// Refresh performs the refresh token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	params := url.Values{
		"client_id":     {c.clientId},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	return c.tokenRequest(ctx, params)
}

func (c *Client) tokenRequest(ctx context.Context, params url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientId, c.clientSecret)

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, &ExchangeError{Message: "could not reach token endpoint", err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read token response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{
			Message:    providerErrorMessage(b),
			StatusCode: resp.StatusCode,
		}
	}

	var tokenResponse TokenResponse
	if err := json.Unmarshal(b, &tokenResponse); err != nil {
		return nil, fmt.Errorf("could not unmarshal token response: %w", err)
	}

	if tokenResponse.AccessToken == "" {
		return nil, &ExchangeError{Message: "token response contained no access token", StatusCode: resp.StatusCode}
	}

	return &Token{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		UserID:       tokenResponse.UserID,
		Scope:        tokenResponse.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(int(time.Second) * tokenResponse.ExpiresIn)),
	}, nil
}

// Request performs an authenticated GET against the provider's API. A failure
// whose reported error types are exactly {insufficient_scope} means the user
// never granted the permission; that case returns (nil, nil) and is logged at
// info. Every other failure returns *ApiError.
func (c *Client) Request(ctx context.Context, resource string, token *Token, extraHeaders http.Header) (json.RawMessage, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("no access token provided")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+resource, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request for %s: %w", resource, err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	if c.acceptLang != "" {
		req.Header.Set(HeaderAcceptLang, c.acceptLang)
	}

	for k, vs := range extraHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.h.Do(req)
	if err != nil {
		apiErr := &ApiError{Resource: resource, err: err}
		c.log.Error("api request failed", "resource", resource, "err", err)
		return nil, apiErr
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read body for %s: %w", resource, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return b, nil
	}

	errorTypes := distinctErrorTypes(b)
	if len(errorTypes) == 1 && errorTypes[0] == errorTypeInsufficientScope {
		c.log.Info("api request denied for missing scope", "resource", resource, "status", resp.StatusCode)
		return nil, nil
	}

	apiErr := &ApiError{
		Resource:   resource,
		StatusCode: resp.StatusCode,
		ErrorTypes: errorTypes,
		Body:       string(b),
	}

	c.log.Error("api request failed", "resource", resource, "status", resp.StatusCode, "err", apiErr)

	return nil, apiErr
}

// FetchResourceOwner returns the profile of the user the token belongs to, or
// (nil, nil) if the token's scopes do not cover the profile resource.
func (c *Client) FetchResourceOwner(ctx context.Context, token *Token) (*ResourceOwner, error) {
	b, err := c.Request(ctx, ProfileResource, token, nil)
	if err != nil {
		return nil, err
	}

	if b == nil {
		return nil, nil
	}

	owner, err := parseResourceOwner(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse resource owner profile: %w", err)
	}

	return owner, nil
}

// Revoke invalidates the token at the provider. Callers deleting local state
// should treat a *RevokeError as non-fatal and proceed anyway.
func (c *Client) Revoke(ctx context.Context, token *Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("no access token provided")
	}

	params := url.Values{
		"token": {token.AccessToken},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.revokeEndpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("error creating revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientId, c.clientSecret)

	resp, err := c.h.Do(req)
	if err != nil {
		return &RevokeError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &RevokeError{
			StatusCode: resp.StatusCode,
			Message:    providerErrorMessage(b),
		}
	}

	io.Copy(io.Discard, resp.Body)

	return nil
}
