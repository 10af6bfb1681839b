// Package identity provides the OAuth2 password-grant client for the
// external identity provider (Keycloak-compatible realm endpoints).
//
// Only the client side of the contract is implemented: token issuance,
// refresh, userinfo, and logout. Tokens live in an injected
// CredentialStore, and authenticated requests retry exactly once after a
// refresh when the provider answers 401.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/cohortlab/cohort/internal/types"
)

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// UserInfo is the subset of userinfo claims the dashboard consumes.
type UserInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// Client talks to one identity realm on behalf of one OAuth2 client.
type Client struct {
	tokenEndpoint    string
	userInfoEndpoint string
	logoutEndpoint   string
	clientID         string
	clientSecret     string
	scope            string
	http             *retryablehttp.Client
	store            CredentialStore
	now              func() time.Time
	log              zerolog.Logger
}

// NewClient builds a client for the realm at baseURL.
// Endpoints follow the standard openid-connect realm layout.
func NewClient(baseURL, realm, clientID, clientSecret string, store CredentialStore, log zerolog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil

	realmBase := fmt.Sprintf("%s/realms/%s/protocol/openid-connect", strings.TrimRight(baseURL, "/"), realm)

	return &Client{
		tokenEndpoint:    realmBase + "/token",
		userInfoEndpoint: realmBase + "/userinfo",
		logoutEndpoint:   realmBase + "/logout",
		clientID:         clientID,
		clientSecret:     clientSecret,
		scope:            "openid",
		http:             rc,
		store:            store,
		now:              time.Now,
		log:              log,
	}
}

// Login performs the password grant and stores the issued token pair.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "password")
	form.Set("scope", c.scope)
	form.Set("username", username)
	form.Set("password", password)

	return c.requestToken(ctx, form)
}

// Refresh exchanges the stored refresh token for a new token pair.
// On failure the store is cleared; the session cannot be recovered locally.
func (c *Client) Refresh(ctx context.Context) error {
	creds, ok := c.store.Get()
	if !ok || creds.RefreshToken == "" {
		return types.ErrNoCredentials
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)

	if err := c.requestToken(ctx, form); err != nil {
		c.store.Clear()
		return fmt.Errorf("%w: %v", types.ErrSessionExpired, err)
	}
	return nil
}

// AccessToken returns a presentable access token, refreshing first when the
// stored one is expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	creds, ok := c.store.Get()
	if !ok {
		return "", types.ErrNoCredentials
	}

	if creds.ExpiredAt(c.now()) {
		if err := c.Refresh(ctx); err != nil {
			return "", err
		}
		creds, ok = c.store.Get()
		if !ok {
			return "", types.ErrNoCredentials
		}
	}

	return creds.AccessToken, nil
}

// UserInfo fetches claims for the current session.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	var info UserInfo

	resp, err := c.Do(ctx, http.MethodGet, c.userInfoEndpoint, nil, "")
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode userinfo: %w", err)
	}
	return info, nil
}

// Logout invalidates the refresh token at the provider and clears the
// store. Provider errors are logged, not returned: local logout always
// succeeds.
func (c *Client) Logout(ctx context.Context) {
	creds, ok := c.store.Get()
	if ok && creds.RefreshToken != "" {
		form := url.Values{}
		form.Set("client_id", c.clientID)
		form.Set("client_secret", c.clientSecret)
		form.Set("refresh_token", creds.RefreshToken)

		resp, err := c.postForm(ctx, c.logoutEndpoint, form)
		if err != nil {
			c.log.Warn().Err(err).Msg("provider logout failed")
		} else {
			resp.Body.Close()
		}
	}
	c.store.Clear()
}

// Do issues an authenticated request, retrying exactly once after a token
// refresh when the first attempt returns 401. A second 401 is returned
// as-is. Body is re-sent from the given bytes on retry.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, contentType string) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, rawURL, body, contentType)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c.doOnce(ctx, method, rawURL, body, contentType)
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, body []byte, contentType string) (*http.Response, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.http.Do(req)
}

// requestToken posts a grant form and stores the resulting token pair.
func (c *Client) requestToken(ctx context.Context, form url.Values) error {
	resp, err := c.postForm(ctx, c.tokenEndpoint, form)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, grantError(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	c.store.Set(Credentials{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	})
	return nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, rawURL, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.http.Do(req)
}

// grantError extracts the provider's error code for diagnostics.
func grantError(body []byte) string {
	var e struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error == "" {
		return "unknown error"
	}
	if e.ErrorDescription != "" {
		return e.Error + ": " + e.ErrorDescription
	}
	return e.Error
}
