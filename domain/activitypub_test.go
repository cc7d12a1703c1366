package domain

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestActorIsLocal(t *testing.T) {
	id := int64(1)
	local := Actor{AccountId: &id}
	remote := Actor{}
	if !local.IsLocal() {
		t.Error("Actor with an account id should be local")
	}
	if remote.IsLocal() {
		t.Error("Actor without an account id should be remote")
	}
}

func TestActorDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		actor Actor
		want  string
	}{
		{"name set", Actor{Handle: "@bob@remote.example", Name: strPtr("Bob")}, "Bob"},
		{"empty name", Actor{Handle: "@bob@remote.example", Name: strPtr("")}, "@bob@remote.example"},
		{"nil name", Actor{Handle: "@bob@remote.example"}, "@bob@remote.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActorLink(t *testing.T) {
	a := Actor{URI: "https://remote.example/users/bob"}
	if a.Link() != a.URI {
		t.Errorf("Link() should fall back to the URI, got %q", a.Link())
	}
	a.URL = strPtr("https://remote.example/@bob")
	if a.Link() != "https://remote.example/@bob" {
		t.Errorf("Link() should prefer the URL, got %q", a.Link())
	}
}

func TestKeyTypesPrimaryIsRSA(t *testing.T) {
	if len(KeyTypes) != 2 || KeyTypes[0] != KeyTypeRSA {
		t.Errorf("Unexpected key types %v", KeyTypes)
	}
}

func TestToString(t *testing.T) {
	acc := Account{Id: 1, Username: "alice", Name: "Alice"}
	if !strings.Contains(acc.ToString(), "Username: alice") {
		t.Errorf("Unexpected account string %q", acc.ToString())
	}
	post := Post{Id: 2, URI: "https://example.com/users/alice/posts/2", Content: "hi"}
	if !strings.Contains(post.ToString(), "URI: https://example.com/users/alice/posts/2") {
		t.Errorf("Unexpected post string %q", post.ToString())
	}
}
