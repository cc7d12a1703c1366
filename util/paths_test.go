package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFilePathAbsolute(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "x.db")
	if got := ResolveFilePath(abs); got != abs {
		t.Errorf("Expected absolute path unchanged, got %s", got)
	}
}

func TestResolveFilePathPrefersLocal(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	if err := os.WriteFile("local.db", nil, 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if got := ResolveFilePath("local.db"); got != "local.db" {
		t.Errorf("Expected local path, got %s", got)
	}
}

func TestResolveFilePathWithSubdirFallsBackToConfigDir(t *testing.T) {
	t.Chdir(t.TempDir())
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := ResolveFilePathWithSubdir(".ssh", "hostkey")
	want := filepath.Join(home, AppConfigDir, ".ssh", "hostkey")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if _, err := os.Stat(filepath.Dir(want)); err != nil {
		t.Errorf("Expected subdirectory to be created: %v", err)
	}
}
