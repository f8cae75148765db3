package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"expedientes/internal/config"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/logger"
	"expedientes/internal/metrics"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
	defaultRetryInterval   = 500 * time.Millisecond
)

// WebhookDispatcher polls the event log and posts new events to every
// configured webhook. Each hook keeps its own cursor, starting at the newest
// event seen when the dispatcher first looks at it.
type WebhookDispatcher struct {
	engine        engine.Engine
	hooks         []config.Webhook
	metrics       *metrics.Recorder
	log           *zap.SugaredLogger
	interval      time.Duration
	retryInterval time.Duration

	mu      sync.Mutex
	cursors map[string]int64
}

func NewWebhookDispatcher(e engine.Engine, rec *metrics.Recorder) *WebhookDispatcher {
	var hooks []config.Webhook
	if e.Config != nil {
		hooks = e.Config.Webhooks
	}
	return &WebhookDispatcher{
		engine:        e,
		hooks:         hooks,
		metrics:       rec,
		log:           logger.For(logger.ComponentWebhooks),
		interval:      defaultWebhookInterval,
		retryInterval: defaultRetryInterval,
		cursors:       make(map[string]int64),
	}
}

// Run dispatches until ctx is done. It returns nil right away when no
// webhooks are configured.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	if len(d.hooks) == 0 {
		return nil
	}
	d.log.Infow("webhook dispatcher started", "hooks", len(d.hooks), "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchOnce makes a single delivery pass over every hook.
func (d *WebhookDispatcher) DispatchOnce(ctx context.Context) {
	for _, hook := range d.hooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, hook config.Webhook) {
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		d.log.Warnw("init cursor failed", "webhook", hook.ID, "error", err)
		return
	}
	evts, err := d.engine.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.log.Warnw("fetch events failed", "webhook", hook.ID, "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			d.setCursor(hook.ID, evt.ID)
			continue
		}
		err := d.deliver(ctx, hook, evt)
		d.metrics.WebhookDelivery(hook.ID, err == nil)
		if err != nil {
			var rejected rejectedError
			if errors.As(err, &rejected) {
				// the receiver refused this event; skip it rather than stall the hook
				d.log.Warnw("webhook rejected event", "webhook", hook.ID, "event_id", evt.ID, "status", rejected.status, "error", err)
				d.setCursor(hook.ID, evt.ID)
				continue
			}
			d.log.Warnw("webhook delivery failed", "webhook", hook.ID, "event_id", evt.ID, "error", err)
			return
		}
		d.log.Debugw("webhook delivered", "webhook", hook.ID, "event_id", evt.ID, "type", evt.Type)
		d.setCursor(hook.ID, evt.ID)
	}
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, hook config.Webhook) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[hook.ID]; ok {
		return cur, nil
	}
	cur, err := d.engine.Repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	d.cursors[hook.ID] = cur
	return cur, nil
}

func (d *WebhookDispatcher) setCursor(id string, value int64) {
	d.mu.Lock()
	d.cursors[id] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) newBackOff(ctx context.Context, hook config.Webhook) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.retryInterval
	bo.MaxElapsedTime = 0
	retries := hook.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}

// rejectedError is a 4xx answer other than 429. It is never retried.
type rejectedError struct {
	status int
	body   string
}

func (e rejectedError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// deliver posts evt, retrying transport errors and 5xx answers.
func (d *WebhookDispatcher) deliver(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := &http.Client{Timeout: timeout}
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Expedientes-Event", evt.Type)
		req.Header.Set("X-Expedientes-Delivery", strconv.FormatInt(evt.ID, 10))
		if hook.Secret != "" {
			req.Header.Set("X-Expedientes-Signature", "sha256="+Sign(hook.Secret, data))
		}
		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return nil
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(rejectedError{status: res.StatusCode, body: strings.TrimSpace(string(body))})
		}
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}, d.newBackOff(ctx, hook))
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in
// X-Expedientes-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
