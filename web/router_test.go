package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/util"
	"github.com/gin-gonic/gin"
)

const testPassword = "secret"

// stubTransport resolves actors from a table and records sent activities.
type stubTransport struct {
	mu     sync.Mutex
	actors map[string]*activitypub.RemoteActor
	sent   []*activitypub.Activity
}

func (st *stubTransport) LookupActor(ctx context.Context, handleOrURI string) (*activitypub.RemoteActor, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if a, ok := st.actors[handleOrURI]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("unknown actor %s", handleOrURI)
}

func (st *stubTransport) SendActivity(ctx context.Context, sender int64, recipients []activitypub.Recipient, activity *activitypub.Activity) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sent = append(st.sent, activity)
	return nil
}

func (st *stubTransport) Sent() []*activitypub.Activity {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]*activitypub.Activity(nil), st.sent...)
}

// stubVerifier accepts every request as signed by owner unless err is set.
type stubVerifier struct {
	owner string
	err   error
}

func (sv *stubVerifier) VerifyRequest(ctx context.Context, req *http.Request, body []byte) (string, error) {
	return sv.owner, sv.err
}

type testEnv struct {
	fed       *activitypub.Federation
	transport *stubTransport
	verifier  *stubVerifier
	router    *gin.Engine
}

func bobActor() *activitypub.RemoteActor {
	shared := "https://remote.example/inbox"
	return &activitypub.RemoteActor{
		ID:                "https://remote.example/users/bob",
		Type:              "Person",
		PreferredUsername: "bob",
		Inbox:             "https://remote.example/users/bob/inbox",
		SharedInbox:       &shared,
	}
}

// newTestEnv builds a server for https://example.com. withAccount creates
// the local account alice.
func newTestEnv(t *testing.T, password string, withAccount bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	bob := bobActor()
	transport := &stubTransport{actors: map[string]*activitypub.RemoteActor{bob.ID: bob}}
	fed, err := activitypub.New("https://example.com", database, activitypub.NewKeyManager(database), transport, nil)
	if err != nil {
		t.Fatalf("Failed to create federation: %v", err)
	}
	if withAccount {
		if _, _, err := fed.CreateLocalAccount(context.Background(), "alice", "Alice"); err != nil {
			t.Fatalf("Failed to create account: %v", err)
		}
	}

	conf := &util.AppConfig{}
	conf.Conf.WebPassword = password
	verifier := &stubVerifier{owner: bob.ID}
	router, err := NewServer(conf, fed, verifier, nil).Handler()
	if err != nil {
		t.Fatalf("Failed to build router: %v", err)
	}
	return &testEnv{fed: fed, transport: transport, verifier: verifier, router: router}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return e.do(req)
}

func (e *testEnv) postForm(path string, form string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth {
		req.SetBasicAuth("admin", testPassword)
	}
	return e.do(req)
}

func TestAbortWithErrorMapping(t *testing.T) {
	env := newTestEnv(t, "", true)
	s := NewServer(&util.AppConfig{}, env.fed, env.verifier, nil)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", activitypub.ErrNotFound, http.StatusNotFound},
		{"store not found", fmt.Errorf("wrapped: %w", db.ErrNotFound), http.StatusNotFound},
		{"exists", activitypub.ErrAccountExists, http.StatusConflict},
		{"validation", &activitypub.ValidationError{Reason: "bad"}, http.StatusBadRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
			c.Request.Header.Set("Accept", activitypub.ContentTypeActivityJSON)
			s.abortWithError(c, tt.err)
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestWriteRoutesDisabledWithoutPassword(t *testing.T) {
	env := newTestEnv(t, "", true)
	for _, path := range []string{"/publish", "/follow", "/setup"} {
		w := env.postForm(path, "content=hi", false)
		if w.Code != http.StatusNotFound {
			t.Errorf("POST %s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestWriteRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, testPassword, true)
	w := env.postForm("/publish", "content=hi", false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without credentials, got %d", w.Code)
	}
}

func readBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	b, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(b)
}
