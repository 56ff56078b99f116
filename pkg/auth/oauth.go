// Package auth provides bearer tokens for the bank API. Tokens are obtained
// through the OAuth2 authorization code flow and refreshed before they
// expire.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vpnda/sparebank-sync/pkg/config"
	"github.com/vpnda/sparebank-sync/pkg/http/sparebank1"
)

const (
	AuthURL  = "https://api.sparebank1.no/oauth/authorize"
	TokenURL = "https://api.sparebank1.no/oauth/token"

	// tokens closer than this to their expiry are refreshed
	expiryMargin = 5 * time.Minute
)

var ErrNoToken = errors.New("no valid token, run login first")

// Endpoint is the OAuth2 endpoint of the bank.
var Endpoint = oauth2.Endpoint{
	AuthURL:   AuthURL,
	TokenURL:  TokenURL,
	AuthStyle: oauth2.AuthStyleInParams,
}

// TokenStore persists tokens per instance. GetToken returns nil, nil when
// no token is stored.
type TokenStore interface {
	GetToken(instanceID string) (*oauth2.Token, error)
	SaveToken(instanceID string, token *oauth2.Token) error
}

// NewOAuthConfig builds the OAuth2 client configuration.
func NewOAuthConfig(opts config.OAuthOptions) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Endpoint:     Endpoint,
	}
}

// OAuthTokenProvider hands out the access token of one instance and
// refreshes it when needed. It is safe for concurrent use.
type OAuthTokenProvider struct {
	instanceID string
	config     *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	now        func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

type Option func(*OAuthTokenProvider)

// WithHTTPClient sets the client used to talk to the token endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(p *OAuthTokenProvider) {
		p.httpClient = client
	}
}

func WithNow(now func() time.Time) Option {
	return func(p *OAuthTokenProvider) {
		p.now = now
	}
}

func NewOAuthTokenProvider(instanceID string, cfg *oauth2.Config, store TokenStore, opts ...Option) *OAuthTokenProvider {
	p := &OAuthTokenProvider{
		instanceID: instanceID,
		config:     cfg,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthCodeURL returns the URL the user opens to grant access.
func (p *OAuthTokenProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and stores it.
func (p *OAuthTokenProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(p.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.SaveToken(p.instanceID, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	p.token = token

	log.Info().Str("instance", p.instanceID).Time("expiry", token.Expiry).Msg("Logged in")
	return token, nil
}

// EnsureTokenValid returns an access token valid for at least five more
// minutes, refreshing and storing a new one when necessary.
func (p *OAuthTokenProvider) EnsureTokenValid(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		token, err := p.store.GetToken(p.instanceID)
		if err != nil {
			return "", fmt.Errorf("failed to load token: %w", err)
		}
		if token == nil {
			return "", fmt.Errorf("%w: no token stored for instance %s", ErrNoToken, p.instanceID)
		}
		p.token = token
	}

	if p.fresh(p.token) {
		return p.token.AccessToken, nil
	}

	if p.token.RefreshToken == "" {
		return "", fmt.Errorf("%w: token for instance %s expired and cannot be refreshed", ErrNoToken, p.instanceID)
	}

	log.Debug().Str("instance", p.instanceID).Time("expiry", p.token.Expiry).Msg("Refreshing access token")

	// an empty access token forces the token source to refresh
	source := p.config.TokenSource(p.withHTTPClient(ctx), &oauth2.Token{RefreshToken: p.token.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh token for instance %s: %w", p.instanceID, err)
	}

	if err := p.store.SaveToken(p.instanceID, token); err != nil {
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}
	p.token = token
	return token.AccessToken, nil
}

func (p *OAuthTokenProvider) fresh(token *oauth2.Token) bool {
	if token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return p.now().Add(expiryMargin).Before(token.Expiry)
}

func (p *OAuthTokenProvider) withHTTPClient(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

var _ sparebank1.TokenProvider = (*OAuthTokenProvider)(nil)
