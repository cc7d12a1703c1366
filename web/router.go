package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

// maxActivityBytes bounds inbound activity bodies.
const maxActivityBytes = 1 << 20

// Verifier checks the HTTP signature of an inbound request and returns the
// URI of the key owner.
type Verifier interface {
	VerifyRequest(ctx context.Context, req *http.Request, body []byte) (string, error)
}

// Server holds what the handlers need. It is built once in Router.
type Server struct {
	conf     *util.AppConfig
	fed      *activitypub.Federation
	verifier Verifier
	inbox    *activitypub.InboxProcessor
	logger   *slog.Logger
}

func NewServer(conf *util.AppConfig, fed *activitypub.Federation, verifier Verifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		conf:     conf,
		fed:      fed,
		verifier: verifier,
		inbox:    activitypub.NewInboxProcessor(fed),
		logger:   logger,
	}
}

func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"content": func(s string) template.HTML {
			// local posts are escaped on write, remote ones sanitized
			return template.HTML(s)
		},
		"ago":   formatTimeAgo,
		"stamp": func(t time.Time) string { return t.UTC().Format(util.DateTimeFormat()) },
	}).ParseFS(templatesFS, "templates/*.html")
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() (*gin.Engine, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	g := gin.New()
	g.Use(gin.Recovery(), RequestLogger(s.logger))
	g.Use(gzip.Gzip(gzip.DefaultCompression))
	g.SetHTMLTemplate(tmpl)

	g.GET("/.well-known/webfinger", s.handleWebfinger)

	g.GET("/", s.handleIndex)
	g.GET("/users/:username", s.handleActor)
	g.GET("/users/:username/posts/:id", s.handlePost)
	g.GET("/users/:username/followers", s.handleFollowers)
	g.GET("/users/:username/following", s.handleFollowing)
	g.GET("/users/:username/outbox", s.handleOutbox)
	g.GET("/users/:username/feed.rss", s.handleRSS)

	maxBody := MaxBytesMiddleware(maxActivityBytes)
	g.POST("/users/:username/inbox", maxBody, s.handleInbox)
	g.POST("/inbox", maxBody, s.handleInbox)

	if s.conf.Conf.WebPassword == "" {
		s.logger.Warn("webPassword not set, web write routes disabled")
	} else {
		auth := gin.BasicAuth(gin.Accounts{"admin": s.conf.Conf.WebPassword})
		admin := g.Group("/", auth)
		admin.GET("/setup", s.handleSetupForm)
		admin.POST("/setup", s.handleSetup)
		admin.POST("/publish", s.handlePublish)
		admin.POST("/follow", s.handleFollow)
	}

	return g, nil
}

// Router serves HTTP until ctx is cancelled.
func Router(ctx context.Context, s *Server) error {
	g, err := s.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.conf.HttpAddr(),
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting http server", "addr", srv.Addr, "origin", s.fed.Origin)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// wantsActivityJSON reports whether the client asked for an ActivityPub
// representation rather than a web page.
func wantsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/activity+json") || strings.Contains(accept, "application/ld+json")
}

func renderActivityJSON(c *gin.Context, status int, v any) {
	c.Header("Content-Type", activitypub.ContentTypeActivityJSON+"; charset=utf-8")
	c.Header("Vary", "Accept")
	c.JSON(status, v)
}

// abortWithError maps engine errors to status codes. Anything not a known
// client error is logged and answered with 500.
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, activitypub.ErrNotFound), errors.Is(err, db.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, activitypub.ErrAccountExists):
		status, msg = http.StatusConflict, err.Error()
	case activitypub.IsValidation(err):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		s.logger.Error("request failed", "path", c.Request.URL.Path, "err", err)
	}

	if wantsActivityJSON(c) || c.Request.Method == http.MethodPost && c.ContentType() != "application/x-www-form-urlencoded" {
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	c.HTML(status, "error.html", gin.H{"Page": pageData{Title: http.StatusText(status), Error: msg}})
	c.Abort()
}

func notFound(c *gin.Context) {
	if wantsActivityJSON(c) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.HTML(http.StatusNotFound, "error.html", gin.H{"Page": pageData{Title: "Not Found", Error: "not found"}})
	c.Abort()
}
