package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/anonify/anonify/internal/domain"
	"github.com/anonify/anonify/internal/repository"
	"github.com/anonify/anonify/pkg/config"
	"github.com/anonify/anonify/pkg/crypto"
)

const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"

	githubEmailsURL   = "https://api.github.com/user/emails"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var usernameStrip = regexp.MustCompile(`[^A-Za-z0-9_]+`)

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	parseEmail  func([]byte) (string, error)
}

func configuredProviders(cfg config.APIConfig) map[string]*oauthProvider {
	providers := make(map[string]*oauthProvider)
	redirect := func(name string) string {
		return strings.TrimRight(cfg.OAuthRedirectBase, "/") + "/auth/oauth/" + name + "/callback"
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers[ProviderGitHub] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				Endpoint:     endpoints.GitHub,
				RedirectURL:  redirect(ProviderGitHub),
				Scopes:       []string{"user:email"},
			},
			userInfoURL: githubEmailsURL,
			parseEmail:  parseGitHubEmails,
		}
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers[ProviderGoogle] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  redirect(ProviderGoogle),
				Scopes:       []string{"openid", "email"},
			},
			userInfoURL: googleUserInfoURL,
			parseEmail:  parseGoogleUserInfo,
		}
	}
	return providers
}

// Providers lists the enabled sign-in providers.
func (s Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OAuthStart returns the provider consent URL and the state value the
// callback must echo.
func (s Service) OAuthStart(provider string) (string, string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", "", ErrUnknownProvider
	}
	state, err := crypto.RandomToken(24)
	if err != nil {
		return "", "", err
	}
	return p.config.AuthCodeURL(state), state, nil
}

// OAuthComplete exchanges code, resolves the provider's verified email to an
// account and signs it in. Unknown emails get a new verified account; an
// unverified account with the email becomes verified with a fresh random
// password.
func (s Service) OAuthComplete(ctx context.Context, provider, code string) (*Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth exchange failed", "provider", provider, "error", err)
		return nil, ErrProviderFailure
	}
	email, err := p.fetchEmail(ctx, p.config.Client(ctx, token))
	if err != nil {
		s.logger.Warn("oauth email lookup failed", "provider", provider, "error", err)
		return nil, ErrProviderEmail
	}
	email = NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !account.Verified {
			if err := s.claimPendingAccount(ctx, account); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		account, err = s.createOAuthAccount(ctx, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("find account: %w", err)
	}

	session, err := s.issueSession(account)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account signed in", "account_id", account.ID, "provider", provider)
	return session, nil
}

// claimPendingAccount verifies an unverified account on behalf of the
// provider's email owner. The registrant's password is rotated to a random
// secret first so it cannot sign in to the verified account.
func (s Service) claimPendingAccount(ctx context.Context, account *domain.Account) error {
	hash, err := randomPasswordHash()
	if err != nil {
		return err
	}
	code, err := s.newCode()
	if err != nil {
		return err
	}
	expiry := s.now().UTC().Add(s.codeTTL())
	err = s.accounts.UpdateRegistration(ctx, account.ID, hash, code, expiry)
	switch {
	case err == nil:
		if err := s.accounts.MarkVerified(ctx, account.ID, code); err != nil {
			return fmt.Errorf("verify oauth account: %w", err)
		}
	case errors.Is(err, repository.ErrNotFound):
		// verified through the code flow in the meantime
	default:
		return fmt.Errorf("reset oauth account: %w", err)
	}
	account.PasswordHash = hash
	account.Verified = true
	account.VerificationCode = ""
	return nil
}

func randomPasswordHash() ([]byte, error) {
	secret, err := crypto.RandomToken(32)
	if err != nil {
		return nil, err
	}
	hash, err := crypto.HashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s Service) createOAuthAccount(ctx context.Context, email string) (*domain.Account, error) {
	hash, err := randomPasswordHash()
	if err != nil {
		return nil, err
	}
	base := usernameFromEmail(email)
	now := s.now().UTC()
	for attempt := 0; attempt < 5; attempt++ {
		username := base
		if attempt > 0 {
			suffix, err := crypto.NumericCode()
			if err != nil {
				return nil, err
			}
			username = base[:min(len(base), 14)] + suffix
		}
		account := &domain.Account{
			ID:                uuid.NewString(),
			Username:          username,
			Email:             email,
			PasswordHash:      hash,
			Verified:          true,
			AcceptingMessages: true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		err := s.accounts.Insert(ctx, account)
		switch {
		case err == nil:
			s.logger.Info("account registered", "account_id", account.ID, "via", "oauth")
			return account, nil
		case errors.Is(err, repository.ErrDuplicateUsername):
			continue
		case errors.Is(err, repository.ErrDuplicateEmail):
			return s.accounts.FindByEmail(ctx, email)
		default:
			return nil, fmt.Errorf("insert account: %w", err)
		}
	}
	return nil, ErrUsernameTaken
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	name := usernameStrip.ReplaceAllString(local, "_")
	name = strings.Trim(name, "_")
	if len(name) > 20 {
		name = name[:20]
	}
	if len(name) < 2 {
		name = "user" + name
	}
	return name
}

func (p *oauthProvider) fetchEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	return p.parseEmail(body)
}

func parseGitHubEmails(body []byte) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("no primary verified email")
}

func parseGoogleUserInfo(body []byte) (string, error) {
	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", err
	}
	if info.Email == "" || !info.EmailVerified {
		return "", errors.New("email not verified")
	}
	return info.Email, nil
}
