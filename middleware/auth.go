package middleware

import (
	"log/slog"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/deemkeen/microblog/util"
)

// AuthMiddleware refuses sessions without a public key and logs the rest.
// Which keys may connect is decided by the server's authorized keys file.
func AuthMiddleware(logger *slog.Logger) wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			if s.PublicKey() == nil {
				logger.Warn("rejecting ssh session without public key", "remote", s.RemoteAddr().String())
				wish.Fatalln(s, "public key authentication required")
				return
			}
			util.LogSession(logger, s)
			h(s)
		}
	}
}
