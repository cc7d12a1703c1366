package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/domain"
	"golang.org/x/sync/errgroup"
)

const (
	deliveryBatchSize   = 50
	deliveryConcurrency = 8
	maxDeliveryAttempts = 10
)

// backoff schedule in minutes, indexed by attempt
var deliveryBackoff = []int{1, 5, 15, 60, 240, 1440}

// SendActivity stores one queue row per distinct delivery inbox. Recipients
// sharing an inbox receive a single copy.
func (t *HTTPTransport) SendActivity(ctx context.Context, senderAccountID int64, recipients []Recipient, activity *Activity) error {
	if activity.Context == nil {
		activity.Context = ActivityStreamsContext
	}
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	inboxes := dedupeInboxes(recipients)
	if len(inboxes) == 0 {
		return nil
	}

	err = t.db.WithTx(ctx, func(tx *db.Tx) error {
		for _, inbox := range inboxes {
			if err := tx.EnqueueDelivery(ctx, &domain.DeliveryQueueItem{
				AccountId:    senderAccountID,
				InboxURI:     inbox,
				ActivityJSON: string(body),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queueing %s: %w", activity.Type, err)
	}
	t.logger.Debug("queued activity", "type", activity.Type, "id", activity.ID, "inboxes", len(inboxes))
	return nil
}

func dedupeInboxes(recipients []Recipient) []string {
	seen := make(map[string]bool, len(recipients))
	var inboxes []string
	for _, r := range recipients {
		inbox := r.DeliveryInbox()
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		inboxes = append(inboxes, inbox)
	}
	return inboxes
}

// RunDeliveryWorker drains the delivery queue every interval until ctx is done.
func (t *HTTPTransport) RunDeliveryWorker(ctx context.Context, interval time.Duration) {
	t.logger.Info("starting delivery worker", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("delivery worker stopped")
			return
		case <-ticker.C:
			t.ProcessDeliveryQueue(ctx)
		}
	}
}

// ProcessDeliveryQueue makes one pass over the due queue rows. Successful
// rows are removed, failed ones rescheduled, and rows past the attempt limit
// dropped.
func (t *HTTPTransport) ProcessDeliveryQueue(ctx context.Context) {
	items, err := t.db.ReadPendingDeliveries(ctx, deliveryBatchSize)
	if err != nil {
		t.logger.Error("failed to read delivery queue", "err", err)
		return
	}
	if len(items) == 0 {
		return
	}
	t.logger.Debug("processing deliveries", "count", len(items))

	var g errgroup.Group
	g.SetLimit(deliveryConcurrency)
	for _, item := range items {
		g.Go(func() error {
			t.settle(ctx, item, t.deliver(ctx, &item))
			return nil
		})
	}
	g.Wait()
}

func (t *HTTPTransport) settle(ctx context.Context, item domain.DeliveryQueueItem, deliveryErr error) {
	if deliveryErr == nil {
		t.logger.Debug("delivered", "inbox", item.InboxURI)
		if err := t.db.DeleteDelivery(ctx, item.Id); err != nil {
			t.logger.Error("failed to remove delivered item", "id", item.Id, "err", err)
		}
		return
	}

	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		t.logger.Warn("giving up delivery", "inbox", item.InboxURI, "attempts", item.Attempts, "err", deliveryErr)
		if err := t.db.DeleteDelivery(ctx, item.Id); err != nil {
			t.logger.Error("failed to remove expired item", "id", item.Id, "err", err)
		}
		return
	}

	backoff := time.Duration(deliveryBackoff[min(item.Attempts-1, len(deliveryBackoff)-1)]) * time.Minute
	t.logger.Warn("delivery failed", "inbox", item.InboxURI, "attempt", item.Attempts, "retry_in", backoff, "err", deliveryErr)
	if err := t.db.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, t.db.Now().Add(backoff)); err != nil {
		t.logger.Error("failed to reschedule delivery", "id", item.Id, "err", err)
	}
}

// deliver posts one queued activity, signed with the sender's RSA key.
func (t *HTTPTransport) deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	var envelope struct {
		Actor Ref `json:"actor"`
	}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &envelope); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}
	if envelope.Actor == "" {
		return fmt.Errorf("activity missing actor field")
	}

	privateKey, err := t.keys.SigningKey(ctx, item.AccountId)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	if err := t.limiter.Wait(ctx, item.InboxURI); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeActivityJSON)
	req.Header.Set("Accept", ContentTypeActivityJSON)
	req.Header.Set("User-Agent", t.userAgent)

	if err := SignRequest(req, privateKey, envelope.Actor.String()+"#main-key", body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{URL: item.InboxURI, Code: resp.StatusCode}
	}
	return nil
}
