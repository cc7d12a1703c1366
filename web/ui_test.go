package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{
			name:     "just now",
			time:     now.Add(-30 * time.Second),
			expected: "just now",
		},
		{
			name:     "1 minute ago",
			time:     now.Add(-1 * time.Minute),
			expected: "1 minute ago",
		},
		{
			name:     "5 minutes ago",
			time:     now.Add(-5 * time.Minute),
			expected: "5 minutes ago",
		},
		{
			name:     "1 hour ago",
			time:     now.Add(-1 * time.Hour),
			expected: "1 hour ago",
		},
		{
			name:     "3 hours ago",
			time:     now.Add(-3 * time.Hour),
			expected: "3 hours ago",
		},
		{
			name:     "1 day ago",
			time:     now.Add(-24 * time.Hour),
			expected: "1 day ago",
		},
		{
			name:     "7 days ago",
			time:     now.Add(-7 * 24 * time.Hour),
			expected: "7 days ago",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeAgo(tt.time)
			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestFormatTimeAgoOldDates(t *testing.T) {
	// Test dates older than 30 days should return formatted date
	oldDate := time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)
	result := formatTimeAgo(oldDate)

	// Should return formatted date like "Jan 15, 2024"
	if result != "Jan 15, 2024" {
		t.Errorf("Expected formatted date, got '%s'", result)
	}
}

func TestFormatTimeAgoEdgeCases(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		time time.Time
		want string
	}{
		{
			name: "exactly 1 minute",
			time: now.Add(-60 * time.Second),
			want: "1 minute ago",
		},
		{
			name: "exactly 1 hour",
			time: now.Add(-60 * time.Minute),
			want: "1 hour ago",
		},
		{
			name: "59 minutes",
			time: now.Add(-59 * time.Minute),
			want: "59 minutes ago",
		},
		{
			name: "23 hours",
			time: now.Add(-23 * time.Hour),
			want: "23 hours ago",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeAgo(tt.time)
			if result != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, result)
			}
		})
	}
}

func TestTimeAgoPluralization(t *testing.T) {
	// Test that pluralization works correctly
	now := time.Now()

	singularTests := []struct {
		name string
		time time.Time
		want string
	}{
		{"1 minute", now.Add(-1 * time.Minute), "1 minute ago"},
		{"1 hour", now.Add(-1 * time.Hour), "1 hour ago"},
		{"1 day", now.Add(-24 * time.Hour), "1 day ago"},
	}

	for _, tt := range singularTests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeAgo(tt.time)
			if result != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, result)
			}
		})
	}

	pluralTests := []struct {
		name string
		time time.Time
		want string
	}{
		{"2 minutes", now.Add(-2 * time.Minute), "2 minutes ago"},
		{"2 hours", now.Add(-2 * time.Hour), "2 hours ago"},
		{"2 days", now.Add(-48 * time.Hour), "2 days ago"},
	}

	for _, tt := range pluralTests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeAgo(tt.time)
			if result != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, result)
			}
		})
	}
}

func TestIndexWithoutAccount(t *testing.T) {
	env := newTestEnv(t, "", false)
	w := env.get("/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := readBody(t, w)
	if !strings.Contains(body, "No account exists yet") {
		t.Errorf("Index should point at setup, got: %s", body)
	}
	if strings.Contains(body, `href="/setup"`) {
		t.Error("Setup link should be hidden without a web password")
	}
}

func TestSetupThroughWeb(t *testing.T) {
	env := newTestEnv(t, testPassword, false)

	w := env.postForm("/setup", "username=Bad+Name&name=x", true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for an invalid username, got %d", w.Code)
	}

	w = env.postForm("/setup", "username=alice&name=Alice", true)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", w.Code)
	}
	if _, _, err := env.fed.LocalActor(context.Background(), "alice"); err != nil {
		t.Fatalf("Account should exist: %v", err)
	}

	w = env.postForm("/setup", "username=carol&name=Carol", true)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a second account, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/setup", nil)
	req.SetBasicAuth("admin", testPassword)
	if w := env.do(req); w.Code != http.StatusSeeOther {
		t.Errorf("Setup form should redirect once an account exists, got %d", w.Code)
	}
}

func TestPublishThroughWeb(t *testing.T) {
	env := newTestEnv(t, testPassword, true)

	w := env.postForm("/publish", "content=hello+%3Cb%3Eworld%3C%2Fb%3E", true)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/?flash=published" {
		t.Errorf("Unexpected redirect %q", loc)
	}

	w = env.get("/", "")
	body := readBody(t, w)
	if !strings.Contains(body, "hello &lt;b&gt;world&lt;/b&gt;") {
		t.Errorf("Timeline should show the escaped post, got: %s", body)
	}
	if !strings.Contains(body, `action="/publish"`) {
		t.Error("Timeline should show the publish form")
	}

	if w := env.postForm("/publish", "content=+++", true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank content, got %d", w.Code)
	}
}

func TestFollowThroughWeb(t *testing.T) {
	env := newTestEnv(t, testPassword, true)

	w := env.postForm("/follow", "target=https%3A%2F%2Fremote.example%2Fusers%2Fbob", true)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected 303, got %d", w.Code)
	}
	sent := env.transport.Sent()
	if len(sent) != 1 || sent[0].Type != "Follow" {
		t.Fatalf("Expected one Follow to be sent, got %+v", sent)
	}

	if w := env.postForm("/follow", "target=not+a+handle", true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for garbage, got %d", w.Code)
	}
}

func TestPublishAndFollowWithoutAccount(t *testing.T) {
	env := newTestEnv(t, testPassword, false)

	if w := env.postForm("/publish", "content=hello", true); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for publish without an account, got %d", w.Code)
	}
	if w := env.postForm("/follow", "target=%40bob%40remote.example", true); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for follow without an account, got %d", w.Code)
	}
}

func TestPublishAndFollowStoreFailure(t *testing.T) {
	env := newTestEnv(t, testPassword, true)
	env.fed.DB().Close()

	if w := env.postForm("/publish", "content=hello", true); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 when the store fails, got %d", w.Code)
	}
	if w := env.postForm("/follow", "target=%40bob%40remote.example", true); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 when the store fails, got %d", w.Code)
	}
}

func TestProfilePage(t *testing.T) {
	env := newTestEnv(t, "", true)
	if _, err := env.fed.Publish(context.Background(), "alice", "first"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	w := env.get("/users/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := readBody(t, w)
	for _, want := range []string{"@alice@example.com", "1 posts", "first"} {
		if !strings.Contains(body, want) {
			t.Errorf("Profile should contain %q", want)
		}
	}
}
