package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/util"
	"github.com/dgraph-io/ristretto"
)

// Transport is what the engine needs from the network: resolving remote
// actors and handing activities over for signed delivery.
type Transport interface {
	// LookupActor resolves a handle (@user@host or user@host) or an actor
	// URI. Non-actor documents yield ErrNotActor.
	LookupActor(ctx context.Context, handleOrURI string) (*RemoteActor, error)
	// SendActivity queues activity for every recipient, one delivery per
	// distinct (shared) inbox, signed as the given local account.
	SendActivity(ctx context.Context, senderAccountID int64, recipients []Recipient, activity *Activity) error
}

const (
	maxDocumentBytes = 1 << 20
	fetchTimeout     = 10 * time.Second
	deliveryTimeout  = 30 * time.Second
	defaultCacheTTL  = 10 * time.Minute
)

// HTTPTransport implements Transport over HTTP with signed requests. Inbound
// lookups are cached; outbound activities go through the delivery queue.
type HTTPTransport struct {
	db        *db.DB
	keys      *KeyManager
	client    *http.Client
	cache     *ristretto.Cache
	cacheTTL  time.Duration
	limiter   *hostLimiter
	logger    *slog.Logger
	scheme    string
	userAgent string
	attempts  uint
}

type TransportOption func(*HTTPTransport)

// WithHTTPClient replaces the client used for lookups and deliveries.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithCacheTTL sets how long resolved actors and keys are cached.
func WithCacheTTL(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.cacheTTL = d
	}
}

// WithPlainHTTP makes WebFinger lookups use http instead of https.
func WithPlainHTTP() TransportOption {
	return func(t *HTTPTransport) {
		t.scheme = "http"
	}
}

// WithFetchAttempts sets how often a failing fetch is tried.
func WithFetchAttempts(n uint) TransportOption {
	return func(t *HTTPTransport) {
		t.attempts = n
	}
}

func NewHTTPTransport(database *db.DB, keys *KeyManager, logger *slog.Logger, opts ...TransportOption) (*HTTPTransport, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1e3,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating actor cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &HTTPTransport{
		db:        database,
		keys:      keys,
		client:    &http.Client{Timeout: deliveryTimeout},
		cache:     cache,
		cacheTTL:  defaultCacheTTL,
		limiter:   newHostLimiter(2, 5),
		logger:    logger,
		scheme:    "https",
		userAgent: fmt.Sprintf("%s/%s", util.Name, util.GetVersion()),
		attempts:  3,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Close releases the cache.
func (t *HTTPTransport) Close() {
	t.cache.Close()
}

// statusError is a non-2xx answer from a remote server.
type statusError struct {
	URL  string
	Code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// retryable reports whether a failed request may succeed when repeated.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.Code == http.StatusTooManyRequests || serr.Code >= 500
	}
	return !errors.Is(err, ErrNotActor)
}

// fetchJSON GETs uri with the given Accept header and decodes the body into
// v, retrying transient failures.
func (t *HTTPTransport) fetchJSON(ctx context.Context, uri string, accept string, v any) error {
	return retry.Do(
		func() error {
			return t.fetchOnce(ctx, uri, accept, v)
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			t.logger.Debug("retrying fetch", "url", uri, "attempt", n+1, "err", err)
		}),
	)
}

func (t *HTTPTransport) fetchOnce(ctx context.Context, uri string, accept string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{URL: uri, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return retry.Unrecoverable(fmt.Errorf("failed to parse %s: %w", uri, err))
	}
	return nil
}
