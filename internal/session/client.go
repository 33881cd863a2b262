// Package session manages the authentication lifecycle: sign-up, sign-in,
// federated sign-in, server-side session verification and sign-out. Every
// mutating operation writes through to the credential store before
// returning, so token and profile are never persisted apart.
package session

import (
	"context"
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quantboard/dashboard-client/internal/api"
	"github.com/quantboard/dashboard-client/internal/credstore"
	"github.com/quantboard/dashboard-client/internal/errors"
	"github.com/quantboard/dashboard-client/internal/logging"
)

// Client performs auth calls against the dashboard service.
type Client struct {
	api   *api.Client
	creds *credstore.Store
	log   *logging.Logger
}

// New creates a session client.
func New(apiClient *api.Client, creds *credstore.Store, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewDefault("session")
	}
	return &Client{api: apiClient, creds: creds, log: log}
}

// GoogleProfile is the raw-attribute shape of a federated sign-in, used
// when the provider profile has already been unpacked client-side.
type GoogleProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"sub"`
	Picture string `json:"picture,omitempty"`
}

// Register creates an account and signs in. fullName may be empty.
func (c *Client) Register(ctx context.Context, email, username, password, fullName string) (*api.User, error) {
	payload := map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	}
	if fullName != "" {
		payload["full_name"] = fullName
	}

	var tok api.TokenResponse
	if err := c.api.Post(ctx, "/auth/register", payload, &tok); err != nil {
		return nil, err
	}
	return c.persist(tok)
}

// Login signs in with email and password. Invalid credentials surface as a
// validation error carrying the server message; the server does not
// distinguish them from other payload rejections.
func (c *Client) Login(ctx context.Context, email, password string) (*api.User, error) {
	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	var tok api.TokenResponse
	if err := c.api.Post(ctx, "/auth/login", payload, &tok); err != nil {
		return nil, err
	}
	return c.persist(tok)
}

// LoginWithGoogle signs in with an already-unpacked provider profile.
func (c *Client) LoginWithGoogle(ctx context.Context, profile GoogleProfile) (*api.User, error) {
	var tok api.TokenResponse
	if err := c.api.Post(ctx, "/auth/google", profile, &tok); err != nil {
		return nil, err
	}
	return c.persist(tok)
}

// VerifyGoogleCredential signs in with an opaque provider credential that
// the server verifies itself.
func (c *Client) VerifyGoogleCredential(ctx context.Context, credential string) (*api.User, error) {
	payload := map[string]string{"credential": credential}

	var tok api.TokenResponse
	if err := c.api.Post(ctx, "/auth/google/verify", payload, &tok); err != nil {
		return nil, err
	}
	return c.persist(tok)
}

// persist writes token and user to the credential store atomically.
func (c *Client) persist(tok api.TokenResponse) (*api.User, error) {
	if tok.AccessToken == "" || tok.User == nil {
		return nil, errors.Internal("auth response missing token or user", nil)
	}

	userJSON, err := json.Marshal(tok.User)
	if err != nil {
		return nil, errors.Internal("marshal user profile", err)
	}
	if err := c.creds.Save(tok.AccessToken, userJSON); err != nil {
		return nil, errors.Internal("persist credentials", err)
	}

	log := c.log.WithField("user_id", tok.User.ID)
	if exp := tokenExpiry(tok.AccessToken); exp != "" {
		log = log.WithField("token_expires", exp)
	}
	log.Info("session established")

	return tok.User, nil
}

// tokenExpiry peeks at the exp claim without verifying the signature. The
// token is opaque to the client; this is logging only.
func tokenExpiry(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ""
	}
	return exp.Time.UTC().Format("2006-01-02T15:04:05Z")
}

// VerifySession checks the stored session against the server. Without a
// stored token it reports unauthenticated with no network call. Any
// server-side rejection purges the stored credentials; transport failures
// degrade to unauthenticated without purging, since the session may still
// be valid. VerifySession never returns an error.
func (c *Client) VerifySession(ctx context.Context) api.SessionStatus {
	if !c.creds.HasToken() {
		return api.SessionStatus{Authenticated: false}
	}

	var status api.SessionStatus
	if err := c.api.Get(ctx, "/auth/session", &status); err != nil {
		if errors.IsNetwork(err) && errors.StatusOf(err) == 0 {
			c.log.WithError(err).Debug("session verify unreachable, keeping credentials")
			return api.SessionStatus{Authenticated: false}
		}
		// Real status and reason stay visible in logs even though the
		// caller only sees an unauthenticated session.
		c.log.WithField("status", errors.StatusOf(err)).
			WithField("code", string(errors.CodeOf(err))).
			WithError(err).
			Debug("session rejected by server, purging credentials")
		c.purge()
		return api.SessionStatus{Authenticated: false}
	}

	if !status.Authenticated {
		c.purge()
		return api.SessionStatus{Authenticated: false}
	}

	// Refresh the cached profile so a stale local copy self-corrects.
	if status.User != nil {
		if userJSON, err := json.Marshal(status.User); err == nil {
			if err := c.creds.Save(c.creds.Token(), userJSON); err != nil {
				c.log.WithError(err).Warn("refresh cached profile failed")
			}
		}
	}
	return status
}

// Logout purges local credentials unconditionally. It always succeeds,
// even when no session exists.
func (c *Client) Logout() {
	c.purge()
	c.log.Info("signed out")
}

func (c *Client) purge() {
	if err := c.creds.Clear(); err != nil {
		c.log.WithError(err).Warn("clear credentials failed")
	}
}

// AuthHeader returns the Authorization header for the current session, or
// an empty map when signed out.
func (c *Client) AuthHeader() map[string]string {
	tok := c.creds.Token()
	if tok == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

// CurrentUser returns the locally cached profile, if one is stored.
func (c *Client) CurrentUser() (*api.User, bool) {
	_, userJSON := c.creds.Snapshot()
	if len(userJSON) == 0 {
		return nil, false
	}
	var u api.User
	if err := json.Unmarshal(userJSON, &u); err != nil {
		return nil, false
	}
	return &u, true
}
