package credstore

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantboard/dashboard-client/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("credstore-test", "error", false, io.Discard)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	user := json.RawMessage(`{"id":"u1","email":"a@b.c","username":"alice"}`)

	s := Open(path, testLogger())
	if s.HasToken() {
		t.Fatalf("fresh store should be empty")
	}
	if err := s.Save("tok-123", user); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second store on the same path sees what the first wrote.
	reloaded := Open(path, testLogger())
	tok, u := reloaded.Snapshot()
	if tok != "tok-123" {
		t.Fatalf("token not persisted: %q", tok)
	}
	if string(u) != string(user) {
		t.Fatalf("user not persisted: %s", u)
	}
}

func TestTokenAndUserTravelTogether(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := Open(path, testLogger())

	if err := s.Save("tok-1", json.RawMessage(`{"id":"u1"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save("tok-2", json.RawMessage(`{"id":"u2"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	tok, user := s.Snapshot()
	if tok != "tok-2" || string(user) != `{"id":"u2"}` {
		t.Fatalf("token and user out of step: %q %s", tok, user)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := Open(path, testLogger())

	// Clearing an empty store succeeds.
	if err := s.Clear(); err != nil {
		t.Fatalf("clear empty store: %v", err)
	}

	if err := s.Save("tok", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.HasToken() || s.User() != nil {
		t.Fatalf("store not empty after clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("credential file should be gone after clear")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	s := Open(path, testLogger())
	if s.HasToken() {
		t.Fatalf("corrupt file should yield an empty store")
	}

	// The store stays usable afterwards.
	if err := s.Save("tok", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("save after corrupt load: %v", err)
	}
	if !s.HasToken() {
		t.Fatalf("save did not take effect")
	}
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "credentials.json")
	s := Open(path, testLogger())
	if err := s.Save("tok", nil); err != nil {
		t.Fatalf("save into missing directory: %v", err)
	}
	if Open(path, testLogger()).Token() != "tok" {
		t.Fatalf("token not persisted through nested path")
	}
}
