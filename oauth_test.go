package oauth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) levels() []slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	var levels []slog.Level
	for _, r := range h.records {
		levels = append(levels, r.Level)
	}
	return levels
}

func newTestClient(t *testing.T, args ClientArgs) *Client {
	t.Helper()

	if args.ClientId == "" {
		args.ClientId = "test-client-id"
	}
	if args.ClientSecret == "" {
		args.ClientSecret = "test-client-secret"
	}
	if args.RedirectUri == "" && args.RedirectUriFunc == nil {
		args.RedirectUri = "https://example.com/fitbit/callback"
	}

	client, err := NewClient(args)
	require.NoError(t, err)

	return client
}

func TestNewClientValidation(t *testing.T) {
	assert := assert.New(t)

	_, err := NewClient(ClientArgs{ClientSecret: "s", RedirectUri: "https://example.com/cb"})
	assert.Error(err)

	_, err = NewClient(ClientArgs{ClientId: "c", RedirectUri: "https://example.com/cb"})
	assert.Error(err)

	_, err = NewClient(ClientArgs{ClientId: "c", ClientSecret: "s"})
	assert.Error(err)

	_, err = NewClient(ClientArgs{ClientId: "c", ClientSecret: "s", RedirectUri: "https://example.com/cb"})
	assert.NoError(err)
}

func TestAuthorizationURL(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(t, ClientArgs{})

	ustr, err := client.AuthorizationURL("abc123", []string{"profile", "activity"})
	assert.NoError(err)

	u, err := url.Parse(ustr)
	assert.NoError(err)

	assert.Equal("www.fitbit.com", u.Hostname())
	assert.Equal("/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal("test-client-id", q.Get("client_id"))
	assert.Equal("https://example.com/fitbit/callback", q.Get("redirect_uri"))
	assert.Equal("code", q.Get("response_type"))
	assert.Equal("profile activity", q.Get("scope"))
	assert.Equal("abc123", q.Get("state"))
}

func TestResolveRedirectUriIsLazyAndMemoized(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	client := newTestClient(t, ClientArgs{
		RedirectUriFunc: func() (string, error) {
			calls++
			return "https://example.com/late/callback", nil
		},
	})

	assert.Equal(0, calls)

	first, err := client.AuthorizationURL("s1", []string{"profile"})
	assert.NoError(err)

	second, err := client.AuthorizationURL("s2", []string{"profile"})
	assert.NoError(err)

	assert.Equal(1, calls)
	assert.Contains(first, url.QueryEscape("https://example.com/late/callback"))
	assert.Contains(second, url.QueryEscape("https://example.com/late/callback"))
}

func TestGenerateState(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(t, ClientArgs{})

	a, err := client.GenerateState()
	assert.NoError(err)
	assert.Len(a, 32)

	b, err := client.GenerateState()
	assert.NoError(err)
	assert.NotEqual(a, b)
}

func TestExchangeCode(t *testing.T) {
	assert := assert.New(t)

	var gotForm url.Values
	var gotUser, gotPass string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		r.ParseForm()
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":3600,"scope":"profile","token_type":"Bearer","user_id":"prov-42"}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{TokenEndpoint: ts.URL})

	before := time.Now()
	token, err := client.ExchangeCode(ctx, "validcode")
	assert.NoError(err)

	assert.Equal("test-client-id", gotUser)
	assert.Equal("test-client-secret", gotPass)
	assert.Equal("authorization_code", gotForm.Get("grant_type"))
	assert.Equal("validcode", gotForm.Get("code"))
	assert.Equal("https://example.com/fitbit/callback", gotForm.Get("redirect_uri"))

	assert.Equal("tok1", token.AccessToken)
	assert.Equal("ref1", token.RefreshToken)
	assert.Equal("prov-42", token.UserID)
	assert.WithinDuration(before.Add(time.Hour), token.ExpiresAt, 5*time.Second)
	assert.False(token.Expired(5 * time.Minute))
}

func TestExchangeCodeProviderRejection(t *testing.T) {
	assert := assert.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"errorType":"invalid_grant","message":"Authorization code expired."}],"success":false}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{TokenEndpoint: ts.URL})

	token, err := client.ExchangeCode(ctx, "expiredcode")
	assert.Nil(token)

	var exchangeErr *ExchangeError
	assert.ErrorAs(err, &exchangeErr)
	assert.Equal("Authorization code expired.", exchangeErr.Message)
	assert.Equal(http.StatusBadRequest, exchangeErr.StatusCode)
}

func TestExchangeCodeUnreachableEndpoint(t *testing.T) {
	assert := assert.New(t)

	client := newTestClient(t, ClientArgs{
		TokenEndpoint: "http://127.0.0.1:1",
		H:             &http.Client{Timeout: time.Second},
	})

	_, err := client.ExchangeCode(ctx, "code")

	var exchangeErr *ExchangeError
	assert.ErrorAs(err, &exchangeErr)
}

func TestRefresh(t *testing.T) {
	assert := assert.New(t)

	var gotForm url.Values

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok2","refresh_token":"ref2","expires_in":3600,"user_id":"prov-42"}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{TokenEndpoint: ts.URL})

	token, err := client.Refresh(ctx, "ref1")
	assert.NoError(err)

	assert.Equal("refresh_token", gotForm.Get("grant_type"))
	assert.Equal("ref1", gotForm.Get("refresh_token"))
	assert.Equal("tok2", token.AccessToken)
	assert.Equal("ref2", token.RefreshToken)
}

func TestRequestClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantData  bool
		wantFault bool
		wantLevel slog.Level
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"ok":true}`,
			wantData:  true,
			wantLevel: -1,
		},
		{
			name:      "sole insufficient scope is benign",
			status:    http.StatusForbidden,
			body:      `{"errors":[{"errorType":"insufficient_scope","message":"scope missing"}],"success":false}`,
			wantLevel: slog.LevelInfo,
		},
		{
			name:      "repeated insufficient scope is still benign",
			status:    http.StatusForbidden,
			body:      `{"errors":[{"errorType":"insufficient_scope","message":"a"},{"errorType":"insufficient_scope","message":"b"}],"success":false}`,
			wantLevel: slog.LevelInfo,
		},
		{
			name:      "mixed error types are a fault",
			status:    http.StatusUnauthorized,
			body:      `{"errors":[{"errorType":"insufficient_scope","message":"a"},{"errorType":"invalid_token","message":"b"}],"success":false}`,
			wantFault: true,
			wantLevel: slog.LevelError,
		},
		{
			name:      "other error type is a fault",
			status:    http.StatusInternalServerError,
			body:      `{"errors":[{"errorType":"server_error","message":"boom"}],"success":false}`,
			wantFault: true,
			wantLevel: slog.LevelError,
		},
		{
			name:      "unparsable body is a fault",
			status:    http.StatusBadGateway,
			body:      `<html>bad gateway</html>`,
			wantFault: true,
			wantLevel: slog.LevelError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			handler := &recordingHandler{}
			client := newTestClient(t, ClientArgs{
				ApiBase: ts.URL,
				Logger:  slog.New(handler),
			})

			b, err := client.Request(ctx, "/1/user/-/activities.json", &Token{AccessToken: "tok1"}, nil)

			if tt.wantFault {
				var apiErr *ApiError
				assert.ErrorAs(err, &apiErr)
				assert.Equal(tt.status, apiErr.StatusCode)
			} else {
				assert.NoError(err)
			}

			if tt.wantData {
				assert.NotEmpty(b)
			} else {
				assert.Nil(b)
			}

			if tt.wantLevel >= slog.LevelInfo {
				levels := handler.levels()
				assert.Len(levels, 1)
				assert.Equal(tt.wantLevel, levels[0])
			} else {
				assert.Empty(handler.levels())
			}
		})
	}
}

func TestRequestSendsBearerAndAcceptLang(t *testing.T) {
	assert := assert.New(t)

	var gotAuth, gotLang, gotExtra string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLang = r.Header.Get(HeaderAcceptLang)
		gotExtra = r.Header.Get("Accept-Locale")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{ApiBase: ts.URL, AcceptLang: "en_US"})

	_, err := client.Request(ctx, "/1/user/-/profile.json", &Token{AccessToken: "tok1"}, http.Header{"Accept-Locale": {"en_US"}})
	assert.NoError(err)

	assert.Equal("Bearer tok1", gotAuth)
	assert.Equal("en_US", gotLang)
	assert.Equal("en_US", gotExtra)
}

func TestFetchResourceOwner(t *testing.T) {
	assert := assert.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(ProfileResource, r.URL.Path)
		w.Write([]byte(`{"user":{"displayName":"Ada","fullName":"Ada Lovelace","avatar150":"https://cdn.example.com/a150.png","memberSince":"2019-04-01","timezone":"Europe/London","averageDailySteps":9001}}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{ApiBase: ts.URL})

	owner, err := client.FetchResourceOwner(ctx, &Token{AccessToken: "tok1"})
	assert.NoError(err)
	assert.Equal("Ada", owner.DisplayName)
	assert.Equal("https://cdn.example.com/a150.png", owner.Avatar)

	if assert.NotNil(owner.AverageDailySteps) {
		assert.Equal(9001, *owner.AverageDailySteps)
	}

	assert.Equal("Ada Lovelace", owner.ToMap()["fullName"])
}

func TestFetchResourceOwnerWithoutActivityScope(t *testing.T) {
	assert := assert.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"displayName":"Ada","avatar150":"https://cdn.example.com/a150.png"}}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{ApiBase: ts.URL})

	owner, err := client.FetchResourceOwner(ctx, &Token{AccessToken: "tok1"})
	assert.NoError(err)
	assert.Equal("Ada", owner.DisplayName)
	assert.Nil(owner.AverageDailySteps)
}

func TestFetchResourceOwnerScopeGap(t *testing.T) {
	assert := assert.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"errorType":"insufficient_scope","message":"no profile scope"}],"success":false}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{ApiBase: ts.URL, Logger: slog.New(&recordingHandler{})})

	owner, err := client.FetchResourceOwner(ctx, &Token{AccessToken: "tok1"})
	assert.NoError(err)
	assert.Nil(owner)
}

func TestRevoke(t *testing.T) {
	assert := assert.New(t)

	var gotToken string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotToken = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{RevokeEndpoint: ts.URL})

	err := client.Revoke(ctx, &Token{AccessToken: "tok1"})
	assert.NoError(err)
	assert.Equal("tok1", gotToken)
}

func TestRevokeRejection(t *testing.T) {
	assert := assert.New(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"errorType":"invalid_token","message":"Token unknown."}],"success":false}`))
	}))
	defer ts.Close()

	client := newTestClient(t, ClientArgs{RevokeEndpoint: ts.URL})

	err := client.Revoke(ctx, &Token{AccessToken: "tok1"})

	var revokeErr *RevokeError
	assert.ErrorAs(err, &revokeErr)
	assert.Equal(http.StatusUnauthorized, revokeErr.StatusCode)
	assert.Equal("Token unknown.", revokeErr.Message)
}
