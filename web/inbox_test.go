package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deemkeen/microblog/activitypub"
)

const bobFollow = `{
	"@context": "https://www.w3.org/ns/activitystreams",
	"id": "https://remote.example/activities/follow-1",
	"type": "Follow",
	"actor": "https://remote.example/users/bob",
	"object": "https://example.com/users/alice"
}`

func (e *testEnv) postActivity(path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", activitypub.ContentTypeActivityJSON)
	return e.do(req)
}

func TestInboxFollow(t *testing.T) {
	for _, path := range []string{"/users/alice/inbox", "/inbox"} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t, "", true)
			w := env.postActivity(path, bobFollow)
			if w.Code != http.StatusAccepted {
				t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
			}

			n, err := env.fed.CountFollowers(context.Background(), "alice")
			if err != nil {
				t.Fatalf("CountFollowers failed: %v", err)
			}
			if n != 1 {
				t.Errorf("Expected 1 follower, got %d", n)
			}
			sent := env.transport.Sent()
			if len(sent) != 1 || sent[0].Type != "Accept" {
				t.Fatalf("Expected an Accept to be sent, got %+v", sent)
			}

			// Redelivery is accepted without a second reply.
			if w := env.postActivity(path, bobFollow); w.Code != http.StatusAccepted {
				t.Errorf("Expected 202 on redelivery, got %d", w.Code)
			}
			if got := len(env.transport.Sent()); got != 1 {
				t.Errorf("Expected no further sends, got %d", got)
			}
		})
	}
}

func TestInboxRejections(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		owner    string
		verifyFn error
		want     int
	}{
		{"unknown account", "/users/carol/inbox", bobFollow, "https://remote.example/users/bob", nil, http.StatusNotFound},
		{"malformed json", "/inbox", `{"type":`, "https://remote.example/users/bob", nil, http.StatusBadRequest},
		{"missing actor", "/inbox", `{"id":"https://remote.example/x","type":"Follow"}`, "https://remote.example/users/bob", nil, http.StatusBadRequest},
		{"bad signature", "/inbox", bobFollow, "", errors.New("no signature"), http.StatusUnauthorized},
		{"signer mismatch", "/inbox", bobFollow, "https://remote.example/users/mallory", nil, http.StatusUnauthorized},
		{"too large", "/inbox", `{"x":"` + strings.Repeat("a", maxActivityBytes) + `"}`, "https://remote.example/users/bob", nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "", true)
			env.verifier.owner = tt.owner
			env.verifier.err = tt.verifyFn

			w := env.postActivity(tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
			n, err := env.fed.CountFollowers(context.Background(), "alice")
			if err != nil {
				t.Fatalf("CountFollowers failed: %v", err)
			}
			if n != 0 {
				t.Errorf("Rejected request must not change state, got %d followers", n)
			}
		})
	}
}

func TestInboxDroppedActivityStillAccepted(t *testing.T) {
	env := newTestEnv(t, "", true)
	body := strings.Replace(bobFollow, "https://example.com/users/alice", "https://example.com/users/nobody", 1)
	if w := env.postActivity("/inbox", body); w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	if len(env.transport.Sent()) != 0 {
		t.Error("Dropped follow must not be answered")
	}
}
