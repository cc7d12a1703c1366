package util

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"
)

//go:embed version.txt
var embeddedVersion string

// LogSession logs a newly opened ssh session with the key fingerprint.
func LogSession(logger *slog.Logger, s ssh.Session) {
	logger.Info("ssh session opened",
		"user", s.User(),
		"remote", s.RemoteAddr().String(),
		"key", PublicKeyFingerprint(s.PublicKey()),
	)
}

// PublicKeyFingerprint returns the SHA256 fingerprint of pk, or "" for nil.
func PublicKeyFingerprint(pk ssh.PublicKey) string {
	if pk == nil {
		return ""
	}
	return gossh.FingerprintSHA256(pk)
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

// NormalizeInput trims surrounding whitespace and escapes HTML entities.
// Markup is kept as literal text; line breaks are kept as typed.
func NormalizeInput(text string) string {
	return html.EscapeString(strings.TrimSpace(text))
}

func DateTimeFormat() string {
	return "2006-01-02 15:04:05 MST"
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
