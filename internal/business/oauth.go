package business

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/profile-agent/internal/config"
	"github.com/profile-agent/internal/models"
	"github.com/profile-agent/internal/storage"
	"github.com/profile-agent/pkg/logger"
)

// OAuthManager handles the Google OAuth 2.0 flow for the Business
// Profile API.
type OAuthManager struct {
	config     *oauth2.Config
	repository storage.Repository // Optional, can be nil for env-only mode
	log        *logger.Logger

	// In-memory token storage (used when repository is nil, or as cache)
	mu           sync.RWMutex
	currentToken *models.OAuthToken
}

// NewOAuthManager creates a new OAuth manager
func NewOAuthManager(cfg config.GoogleConfig, repo storage.Repository, log *logger.Logger) *OAuthManager {
	m := &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     google.Endpoint,
		},
		repository: repo,
		log:        log.WithComponent("oauth"),
	}

	// Initialize from config if access token provided (env vars)
	if cfg.AccessToken != "" {
		expiry, err := time.Parse(time.RFC3339, cfg.TokenExpiresAt)
		if err != nil {
			expiry = time.Now().Add(time.Hour)
		}

		m.currentToken = &models.OAuthToken{
			Provider:     "google",
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    expiry,
		}
		m.log.Info().
			Time("expires_at", expiry).
			Msg("OAuth token initialized from environment")
	}

	return m
}

// AuthURL returns the OAuth authorization URL for the offline flow.
func (m *OAuthManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// GenerateState creates a random state for OAuth CSRF protection
func GenerateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// StartOAuthServer runs a temporary HTTP server for the OAuth callback,
// exchanges the received code and stores the token. It returns the URL
// the user must open.
func (m *OAuthManager) StartOAuthServer(ctx context.Context, port int) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	authURL := m.AuthURL(state)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch")
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}
		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("oauth error: %s", errMsg)
			http.Error(w, errMsg, http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			http.Error(w, "No code", http.StatusBadRequest)
			return
		}

		codeChan <- code

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<html>
			<body style="font-family: sans-serif; text-align: center; padding: 50px;">
				<h1>Authorization successful</h1>
				<p>You can close this window and return to the terminal.</p>
			</body>
			</html>
		`)
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	m.log.Info().
		Str("url", authURL).
		Int("port", port).
		Msg("OAuth server started, waiting for callback")

	select {
	case code := <-codeChan:
		server.Shutdown(ctx)
		_, err := m.ExchangeCode(ctx, code)
		return authURL, err
	case err := <-errChan:
		server.Shutdown(ctx)
		return authURL, err
	case <-ctx.Done():
		server.Shutdown(ctx)
		return authURL, ctx.Err()
	}
}

// ExchangeCode exchanges the authorization code for tokens
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*models.OAuthToken, error) {
	m.log.Info().Msg("Exchanging authorization code for token")

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	oauthToken := &models.OAuthToken{
		Provider:     "google",
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}

	m.store(ctx, oauthToken)
	return oauthToken, nil
}

// GetValidToken returns a valid access token, refreshing if necessary
func (m *OAuthManager) GetValidToken(ctx context.Context) (*models.OAuthToken, error) {
	var token *models.OAuthToken

	m.mu.RLock()
	if m.currentToken != nil {
		token = m.currentToken
	}
	m.mu.RUnlock()

	// If no in-memory token and repository available, try database
	if token == nil && m.repository != nil {
		dbToken, err := m.repository.GetToken(ctx, "google")
		if err == nil && dbToken != nil {
			m.mu.Lock()
			m.currentToken = dbToken
			m.mu.Unlock()
			token = dbToken
		}
	}

	if token == nil {
		return nil, fmt.Errorf("no Google token found: configure via environment variables or run 'login'")
	}

	if token.NeedsRefresh() {
		m.log.Info().Msg("Token expiring soon, refreshing")
		var err error
		token, err = m.refreshToken(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	return token, nil
}

// TokenSource exposes the managed token as an oauth2.TokenSource for the
// official API clients.
func (m *OAuthManager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := m.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return m.config.TokenSource(ctx, token.ToOAuth2Token()), nil
}

// refreshToken refreshes an expired token
func (m *OAuthManager) refreshToken(ctx context.Context, token *models.OAuthToken) (*models.OAuthToken, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available, please re-authenticate")
	}

	tokenSource := m.config.TokenSource(ctx, token.ToOAuth2Token())
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	token.FromOAuth2Token(newToken)
	m.store(ctx, token)

	m.log.Info().
		Time("expires_at", newToken.Expiry).
		Msg("Token refreshed successfully")

	return token, nil
}

func (m *OAuthManager) store(ctx context.Context, token *models.OAuthToken) {
	m.mu.Lock()
	m.currentToken = token
	m.mu.Unlock()

	if m.repository != nil {
		if err := m.repository.SaveToken(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to save token to database (using in-memory only)")
		}
	}
}
