package eog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/huruizverastegui/unicef-ai4d-poverty-mapping/internal/resilience"
)

// expirySkew renews tokens this long before they actually expire.
const expirySkew = time.Minute

// Options configures a Client.
type Options struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	TokenPath    string
	Retry        resilience.Policy
	HTTPClient   *http.Client
}

// Token is the cached form of an access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Add(expirySkew).Before(t.ExpiresAt)
}

// Client obtains EOG access tokens with the OpenID-Connect password grant and
// caches them on disk.
type Client struct {
	opts     Options
	creds    Credentials
	prompter Prompter
	now      func() time.Time
	cached   *Token
}

// NewClient creates a Client. prompter may be nil for non-interactive use.
func NewClient(opts Options, creds Credentials, prompter Prompter) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	return &Client{opts: opts, creds: creds, prompter: prompter, now: time.Now}
}

// AccessToken returns a valid token, reusing the on-disk cache when possible.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.cached != nil && c.cached.Valid(c.now()) {
		return c.cached.AccessToken, nil
	}

	if tok, err := c.readCache(); err == nil && tok.Valid(c.now()) {
		zap.L().Debug("eog: using cached token", zap.String("path", c.opts.TokenPath))
		c.cached = tok
		return tok.AccessToken, nil
	}

	tok, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Refresh requests a new token and overwrites the cache.
func (c *Client) Refresh(ctx context.Context) (*Token, error) {
	creds, err := ResolveCredentials(c.creds, c.prompter)
	if err != nil {
		return nil, err
	}
	c.creds = creds

	tok, err := resilience.Do(ctx, c.opts.Retry, func(ctx context.Context) (*Token, error) {
		return c.requestToken(ctx, creds)
	})
	if err != nil {
		return nil, eris.Wrap(err, "eog: request token")
	}

	if err := c.writeCache(tok); err != nil {
		return nil, err
	}
	c.cached = tok

	zap.L().Info("eog: obtained access token",
		zap.String("username", creds.Username),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *Client) requestToken(ctx context.Context, creds Credentials) (*Token, error) {
	form := url.Values{
		"client_id":     {c.opts.ClientID},
		"client_secret": {c.opts.ClientSecret},
		"username":      {creds.Username},
		"password":      {creds.Password},
		"grant_type":    {"password"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "post token request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read token response")
	}

	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode != http.StatusOK {
		if tr.Error != "" {
			return nil, eris.Errorf("token endpoint: %s: %s", tr.Error, tr.Description)
		}
		return nil, resilience.StatusError("token endpoint", resp.StatusCode)
	}
	if tr.AccessToken == "" {
		return nil, eris.New("token endpoint returned no access_token")
	}

	tok := &Token{AccessToken: tr.AccessToken}
	if tr.ExpiresIn > 0 {
		tok.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	}
	return tok, nil
}

func (c *Client) readCache() (*Token, error) {
	if c.opts.TokenPath == "" {
		return nil, eris.New("eog: no token path")
	}
	data, err := os.ReadFile(c.opts.TokenPath)
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, eris.Wrap(err, "eog: decode cached token")
	}
	return &tok, nil
}

func (c *Client) writeCache(tok *Token) error {
	if c.opts.TokenPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.opts.TokenPath), 0o700); err != nil {
		return eris.Wrap(err, "eog: create token dir")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return eris.Wrap(err, "eog: encode token")
	}
	if err := os.WriteFile(c.opts.TokenPath, data, 0o600); err != nil {
		return eris.Wrap(err, "eog: write token")
	}
	return nil
}
