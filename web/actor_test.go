package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/microblog/activitypub"
)

func TestActorContentNegotiation(t *testing.T) {
	env := newTestEnv(t, "", true)

	for _, accept := range []string{activitypub.ContentTypeActivityJSON, activitypub.ContentTypeLDJSON} {
		w := env.get("/users/alice", accept)
		if w.Code != http.StatusOK {
			t.Fatalf("Accept %s: expected 200, got %d", accept, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, activitypub.ContentTypeActivityJSON) {
			t.Errorf("Unexpected content type %q", ct)
		}
		var p activitypub.Person
		if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
			t.Fatalf("Invalid actor JSON: %v", err)
		}
		if p.ID != "https://example.com/users/alice" || p.Inbox != "https://example.com/users/alice/inbox" {
			t.Errorf("Unexpected actor %+v", p)
		}
		if p.PublicKey == nil || p.PublicKey.PublicKeyPem == "" {
			t.Error("Actor should carry a public key")
		}
	}

	w := env.get("/users/alice", "text/html")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for profile page, got %d", w.Code)
	}
	if body := readBody(t, w); !strings.Contains(body, "<h1>Alice</h1>") {
		t.Errorf("Profile page should show the display name, got: %s", body)
	}
}

func TestActorNotFound(t *testing.T) {
	env := newTestEnv(t, "", true)
	if w := env.get("/users/bob", activitypub.ContentTypeActivityJSON); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for JSON, got %d", w.Code)
	}
	if w := env.get("/users/bob", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for page, got %d", w.Code)
	}
}

func TestPostObject(t *testing.T) {
	env := newTestEnv(t, "", true)
	post, err := env.fed.Publish(context.Background(), "alice", "hello <world>")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	path := fmt.Sprintf("/users/alice/posts/%d", post.Id)

	w := env.get(path, activitypub.ContentTypeActivityJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var note activitypub.Note
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatalf("Invalid note JSON: %v", err)
	}
	if note.ID != post.URI {
		t.Errorf("Expected id %s, got %s", post.URI, note.ID)
	}
	if note.Content != "hello &lt;world&gt;" {
		t.Errorf("Unexpected content %q", note.Content)
	}

	w = env.get(path, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for post page, got %d", w.Code)
	}
	if body := readBody(t, w); !strings.Contains(body, "hello &lt;world&gt;") {
		t.Errorf("Post page should contain the escaped content, got: %s", body)
	}

	for _, missing := range []string{"/users/alice/posts/999", "/users/alice/posts/abc", "/users/bob/posts/1"} {
		if w := env.get(missing, activitypub.ContentTypeActivityJSON); w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", missing, w.Code)
		}
	}
}
