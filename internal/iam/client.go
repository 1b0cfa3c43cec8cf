// Package iam talks to the identity service: password and refresh-token
// grants, token introspection, and the on-disk credential file.
package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second

	tokenPath = "/actions/get_token/invoke"
	mePath    = "/actions/me"
)

// ClientError is returned for any failed exchange with the identity service.
type ClientError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Config configures a Client.
type Config struct {
	Endpoint     string
	ProjectID    string
	ClientID     string
	ClientSecret string
	Scope        string
	TTL          int
	RefreshTTL   int
	Timeout      time.Duration
	// HTTPClient overrides the default client; its Timeout is left alone.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client performs token grants against one identity endpoint.
type Client struct {
	endpoint     string
	projectID    string
	clientID     string
	clientSecret string
	scope        string
	ttl          int
	refreshTTL   int
	http         *http.Client
	logger       zerolog.Logger
}

// NewClient creates a Client. Trailing slashes are trimmed from the endpoint.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("iam endpoint is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		endpoint:     endpoint,
		projectID:    cfg.ProjectID,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scope:        cfg.Scope,
		ttl:          cfg.TTL,
		refreshTTL:   cfg.RefreshTTL,
		http:         httpClient,
		logger:       cfg.Logger.With().Str("component", "iam").Logger(),
	}, nil
}

// Endpoint returns the normalized endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// TokenURL returns the grant endpoint.
func (c *Client) TokenURL() string {
	return c.endpoint + tokenPath
}

// MeURL returns the introspection endpoint.
func (c *Client) MeURL() string {
	return c.endpoint + mePath
}

// Authenticate exchanges a username and password for a credential.
func (c *Client) Authenticate(ctx context.Context, username, password string) (Credential, error) {
	form := url.Values{
		"grant_type":  {"password"},
		"username":    {username},
		"password":    {password},
		"scope":       {c.scope},
		"ttl":         {strconv.Itoa(c.ttl)},
		"refresh_ttl": {strconv.Itoa(c.refreshTTL)},
	}
	c.addClientCredentials(form)

	access, refresh, err := c.grant(ctx, form, "IAM authentication failed")
	if err != nil {
		return Credential{}, err
	}

	c.logger.Debug().Str("user", username).Msg("password grant succeeded")
	return Credential{
		URL:          c.endpoint,
		ProjectID:    c.projectID,
		Token:        access,
		RefreshToken: refresh,
		TTL:          c.ttl,
		Scope:        c.scope,
	}, nil
}

// RefreshOptions overrides the TTL or scope of a refreshed credential.
// Nil fields keep the credential's current value.
type RefreshOptions struct {
	TTL   *int
	Scope *string
}

// Refresh exchanges cred's refresh token for a new credential. The new
// credential keeps cred's project unless cred has none.
func (c *Client) Refresh(ctx context.Context, cred Credential, opts RefreshOptions) (Credential, error) {
	ttl := cred.TTL
	if opts.TTL != nil {
		ttl = *opts.TTL
	}
	scope := cred.Scope
	if opts.Scope != nil {
		scope = *opts.Scope
	}
	projectID := cred.ProjectID
	if projectID == "" {
		projectID = c.projectID
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {cred.RefreshToken},
		"ttl":           {strconv.Itoa(ttl)},
		"refresh_ttl":   {strconv.Itoa(c.refreshTTL)},
		"scope":         {scope},
	}
	c.addClientCredentials(form)

	access, refresh, err := c.grant(ctx, form, "IAM refresh failed")
	if err != nil {
		return Credential{}, err
	}

	c.logger.Debug().Msg("refresh grant succeeded")
	return Credential{
		URL:          c.endpoint,
		ProjectID:    projectID,
		Token:        access,
		RefreshToken: refresh,
		TTL:          ttl,
		Scope:        scope,
	}, nil
}

// Identity returns what the identity service knows about cred's token.
func (c *Client) Identity(ctx context.Context, cred Credential) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.MeURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	return c.do(req, "IAM token validation failed")
}

func (c *Client) addClientCredentials(form url.Values) {
	if c.clientID != "" {
		form.Set("client_id", c.clientID)
	}
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
}

func (c *Client) grant(ctx context.Context, form url.Values, failure string) (access, refresh string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload, err := c.do(req, failure)
	if err != nil {
		return "", "", err
	}

	access, err = stringField(payload, "access_token")
	if err != nil {
		return "", "", err
	}
	refresh, err = stringField(payload, "refresh_token")
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (c *Client) do(req *http.Request, failure string) (map[string]any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ClientError{Message: "Unable to call IAM endpoint: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClientError{StatusCode: resp.StatusCode, Message: "Unable to call IAM endpoint: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Message:    fmt.Sprintf("%s (%d) at %s: %s", failure, resp.StatusCode, req.URL, body),
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Message:    "IAM returned non-JSON response",
			Err:        err,
		}
	}
	return payload, nil
}

func stringField(payload map[string]any, field string) (string, error) {
	raw, ok := payload[field]
	if !ok {
		return "", &ClientError{Message: "IAM response missing field: " + field}
	}
	value, ok := raw.(string)
	if !ok {
		return "", &ClientError{Message: fmt.Sprintf("IAM response field %s is not a string", field)}
	}
	return value, nil
}
