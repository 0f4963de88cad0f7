package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func fakeProvider(t *testing.T, emailsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(emailsJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func withGitHub(f fixture, srv *httptest.Server) {
	f.svc.providers[ProviderGitHub] = &oauthProvider{
		config: &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"},
			RedirectURL:  "http://localhost/auth/oauth/github/callback",
		},
		userInfoURL: srv.URL + "/emails",
		parseEmail:  parseGitHubEmails,
	}
}

func TestConfiguredProviders(t *testing.T) {
	cfg := testConfig()
	cfg.GitHubClientID, cfg.GitHubClientSecret = "id", "secret"
	cfg.OAuthRedirectBase = "https://api.example.com/"
	providers := configuredProviders(cfg)
	require.Contains(t, providers, ProviderGitHub)
	assert.NotContains(t, providers, ProviderGoogle)
	assert.Equal(t, "https://api.example.com/auth/oauth/github/callback", providers[ProviderGitHub].config.RedirectURL)
}

func TestOAuthStartCarriesState(t *testing.T) {
	f := newFixture(t)
	withGitHub(f, fakeProvider(t, `[]`))

	redirect, state, err := f.svc.OAuthStart(ProviderGitHub)
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, state, u.Query().Get("state"))

	_, _, err = f.svc.OAuthStart("myspace")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOAuthCompleteCreatesVerifiedAccount(t *testing.T) {
	f := newFixture(t)
	withGitHub(f, fakeProvider(t, `[{"email":"Other@x.com","primary":false,"verified":true},{"email":"Carol.Smith@x.com","primary":true,"verified":true}]`))
	ctx := context.Background()

	session, err := f.svc.OAuthComplete(ctx, ProviderGitHub, "code")
	require.NoError(t, err)
	assert.Equal(t, "carol_smith", session.Claims.Username)
	assert.True(t, session.Claims.Verified)

	acc, err := f.repo.FindByEmail(ctx, "carol.smith@x.com")
	require.NoError(t, err)
	assert.True(t, acc.Verified)
	assert.True(t, acc.AcceptingMessages)

	again, err := f.svc.OAuthComplete(ctx, ProviderGitHub, "code")
	require.NoError(t, err)
	assert.Equal(t, session.Claims.AccountID, again.Claims.AccountID)
}

func TestOAuthCompleteVerifiesPendingAccount(t *testing.T) {
	f := newFixture(t)
	withGitHub(f, fakeProvider(t, `[{"email":"a@x.com","primary":true,"verified":true}]`))
	ctx := context.Background()

	pending, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	session, err := f.svc.OAuthComplete(ctx, ProviderGitHub, "code")
	require.NoError(t, err)
	assert.Equal(t, pending.AccountID, session.Claims.AccountID)

	_, err = f.svc.Authenticate(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	_, err = f.svc.Authenticate(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrIncorrectPassword)

	account, err := f.repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, account.Verified)
	assert.Empty(t, account.VerificationCode)
}

func TestOAuthCompleteKeepsVerifiedPassword(t *testing.T) {
	f := newFixture(t)
	withGitHub(f, fakeProvider(t, `[{"email":"a@x.com","primary":true,"verified":true}]`))
	ctx := context.Background()

	pending := f.registerVerified(t, "alice", "a@x.com", "secret1")

	session, err := f.svc.OAuthComplete(ctx, ProviderGitHub, "code")
	require.NoError(t, err)
	assert.Equal(t, pending.AccountID, session.Claims.AccountID)

	_, err = f.svc.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
}

func TestOAuthCompleteRejectsUnverifiedProviderEmail(t *testing.T) {
	f := newFixture(t)
	withGitHub(f, fakeProvider(t, `[{"email":"a@x.com","primary":true,"verified":false}]`))

	_, err := f.svc.OAuthComplete(context.Background(), ProviderGitHub, "code")
	assert.ErrorIs(t, err, ErrProviderEmail)
}

func TestUsernameFromEmail(t *testing.T) {
	assert.Equal(t, "jane_doe", usernameFromEmail("jane.doe@x.com"))
	assert.Equal(t, "userx", usernameFromEmail("x@x.com"))
	assert.Equal(t, "abcdefghijklmnopqrst", usernameFromEmail("abcdefghijklmnopqrstuvwxyz@x.com"))
}
