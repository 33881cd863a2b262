package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/quantboard/dashboard-client/internal/api"
	"github.com/quantboard/dashboard-client/internal/credstore"
	"github.com/quantboard/dashboard-client/internal/errors"
	"github.com/quantboard/dashboard-client/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("session-test", "error", false, io.Discard)
}

// authServer is a minimal fake of the remote auth contract.
type authServer struct {
	mu           sync.Mutex
	user         api.User
	token        string
	sessionCalls atomic.Int64
}

func (s *authServer) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *authServer) rotateToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
}

func newFixture(t *testing.T) (*Client, *credstore.Store, *authServer) {
	t.Helper()

	srv := &authServer{
		user:  api.User{ID: "u1", Email: "alice@example.com", Username: "alice"},
		token: "tok-abc",
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken := func() {
			json.NewEncoder(w).Encode(api.TokenResponse{
				AccessToken: srv.currentToken(),
				TokenType:   "bearer",
				User:        &srv.user,
			})
		}
		switch r.URL.Path {
		case "/auth/register", "/auth/login", "/auth/google", "/auth/google/verify":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if r.URL.Path == "/auth/login" && body["password"] != "s3cret" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"detail":"Incorrect email or password"}`))
				return
			}
			writeToken()
		case "/auth/session":
			srv.sessionCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer "+srv.currentToken() {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"Invalid session"}`))
				return
			}
			json.NewEncoder(w).Encode(api.SessionStatus{Authenticated: true, User: &srv.user})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	creds := credstore.Open(filepath.Join(t.TempDir(), "credentials.json"), testLogger())
	apiClient, err := api.New(api.Config{
		BaseURL: ts.URL,
		Token:   creds.Token,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("new api client: %v", err)
	}

	return New(apiClient, creds, testLogger()), creds, srv
}

func TestLoginThenVerifyReturnsSameUser(t *testing.T) {
	client, creds, _ := newFixture(t)

	user, err := client.Login(context.Background(), "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if creds.Token() != "tok-abc" {
		t.Fatalf("token not persisted")
	}

	status := client.VerifySession(context.Background())
	if !status.Authenticated {
		t.Fatalf("expected authenticated session")
	}
	if status.User == nil || status.User.ID != user.ID {
		t.Fatalf("verify returned a different user: %+v", status.User)
	}
}

func TestLoginFailureSurfacesServerMessage(t *testing.T) {
	client, creds, _ := newFixture(t)

	_, err := client.Login(context.Background(), "alice@example.com", "wrong")
	if err == nil {
		t.Fatalf("expected login failure")
	}
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *errors.Error
	if !stdErrorsAs(err, &apiErr) || apiErr.Message != "Incorrect email or password" {
		t.Fatalf("server message not surfaced verbatim: %v", err)
	}
	if creds.HasToken() {
		t.Fatalf("failed login must not persist credentials")
	}
}

func TestVerifyWithoutTokenSkipsNetwork(t *testing.T) {
	client, _, srv := newFixture(t)

	status := client.VerifySession(context.Background())
	if status.Authenticated {
		t.Fatalf("expected unauthenticated")
	}
	if srv.sessionCalls.Load() != 0 {
		t.Fatalf("verify without token must not call the server")
	}
}

func TestVerifyRejectionPurgesCredentials(t *testing.T) {
	client, creds, srv := newFixture(t)

	if _, err := client.Login(context.Background(), "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Server-side invalidation: the stored token no longer matches.
	srv.rotateToken("rotated")

	status := client.VerifySession(context.Background())
	if status.Authenticated {
		t.Fatalf("expected invalid session")
	}
	if creds.HasToken() {
		t.Fatalf("rejected session must purge local credentials")
	}
}

func TestVerifyTransportFailureKeepsCredentials(t *testing.T) {
	creds := credstore.Open(filepath.Join(t.TempDir(), "credentials.json"), testLogger())
	if err := creds.Save("tok", json.RawMessage(`{"id":"u1"}`)); err != nil {
		t.Fatalf("seed creds: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // unreachable

	apiClient, err := api.New(api.Config{BaseURL: ts.URL, Token: creds.Token, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new api client: %v", err)
	}
	client := New(apiClient, creds, testLogger())

	status := client.VerifySession(context.Background())
	if status.Authenticated {
		t.Fatalf("unreachable server must degrade to unauthenticated")
	}
	if !creds.HasToken() {
		t.Fatalf("transport failure must not purge credentials")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	client, creds, _ := newFixture(t)

	// Logout with no prior session succeeds.
	client.Logout()

	if _, err := client.Login(context.Background(), "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	client.Logout()
	if creds.HasToken() || creds.User() != nil {
		t.Fatalf("logout did not clear credentials")
	}

	client.Logout()
}

func TestFederatedLoginShapes(t *testing.T) {
	client, creds, _ := newFixture(t)

	user, err := client.LoginWithGoogle(context.Background(), GoogleProfile{
		Email:   "alice@example.com",
		Name:    "Alice",
		Subject: "google-sub-1",
	})
	if err != nil {
		t.Fatalf("profile flow: %v", err)
	}
	if user.ID != "u1" || !creds.HasToken() {
		t.Fatalf("profile flow did not establish a session")
	}

	client.Logout()

	user, err = client.VerifyGoogleCredential(context.Background(), "opaque-provider-jwt")
	if err != nil {
		t.Fatalf("credential flow: %v", err)
	}
	if user.ID != "u1" || !creds.HasToken() {
		t.Fatalf("credential flow did not establish a session")
	}
}

func TestAuthHeader(t *testing.T) {
	client, creds, _ := newFixture(t)

	if len(client.AuthHeader()) != 0 {
		t.Fatalf("signed-out header should be empty")
	}

	if err := creds.Save("tok-xyz", nil); err != nil {
		t.Fatalf("seed creds: %v", err)
	}
	h := client.AuthHeader()
	if h["Authorization"] != "Bearer tok-xyz" {
		t.Fatalf("unexpected header: %v", h)
	}
}

func TestCurrentUser(t *testing.T) {
	client, _, _ := newFixture(t)

	if _, ok := client.CurrentUser(); ok {
		t.Fatalf("no user expected before login")
	}

	if _, err := client.Login(context.Background(), "alice@example.com", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	user, ok := client.CurrentUser()
	if !ok || user.Username != "alice" {
		t.Fatalf("cached profile missing: %+v", user)
	}
}

func stdErrorsAs(err error, target **errors.Error) bool {
	for err != nil {
		if e, ok := err.(*errors.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
