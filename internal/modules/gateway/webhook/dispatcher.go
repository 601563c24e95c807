package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/qrdine/core/internal/config"
	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/apperr"
	"github.com/qrdine/core/internal/pkg/metrics"
	"github.com/qrdine/core/internal/pkg/safego"
	"github.com/qrdine/core/internal/pkg/telemetry"
	"github.com/qrdine/core/internal/store"
	"go.uber.org/zap"
)

const (
	lookupTimeout   = 5 * time.Second
	persistTimeout  = 5 * time.Second
	maxResponseBody = 4 << 10
)

// Store is the persistence the dispatcher and config service need.
type Store interface {
	store.Webhooks
	store.Deliveries
}

// job is either an event awaiting config lookup (cfg == nil) or one
// delivery of that event to a single config.
type job struct {
	orgID      string
	event      string
	resourceID string
	body       []byte
	cfg        *models.WebhookConfigModel
}

// Dispatcher fans domain events out to every subscribed endpoint of a
// tenant. Dispatch never blocks and never reports delivery errors to the
// caller; outcomes are logged and persisted as delivery rows.
type Dispatcher struct {
	store  Store
	client *http.Client
	cfg    config.WebhookRuntimeConfig
	log    *zap.Logger
	now    func() time.Time

	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

func NewDispatcher(st Store, cfg config.WebhookRuntimeConfig, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.DefaultTimeoutSeconds < 1 {
		cfg.DefaultTimeoutSeconds = 10
	}
	return &Dispatcher{
		store:  st,
		client: &http.Client{Transport: telemetry.Transport(http.DefaultTransport)},
		cfg:    cfg,
		log:    log.Named("WebhookDispatcher"),
		now:    time.Now,
		jobs:   make(chan job, cfg.QueueSize),
	}
}

// Start launches the worker pool. It is safe to call once.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		name := "webhook-worker-" + strconv.Itoa(i)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				safego.Run(d.log, name, func() { d.handle(j) })
			}
		}()
	}
}

// Shutdown stops accepting events and waits for queued jobs to drain or for
// ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch snapshots resource and meta into a signed-ready body and queues
// the event for every active config of the tenant subscribed to it.
func (d *Dispatcher) Dispatch(orgID, event, resourceID string, resource interface{}, meta map[string]interface{}) {
	body, err := buildBody(event, d.now(), resource, meta)
	if err != nil {
		d.log.Error("encode webhook payload failed",
			zap.String("organization_id", orgID),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	d.enqueue(job{orgID: orgID, event: event, resourceID: resourceID, body: body})
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("webhook dispatcher closed, event dropped",
			zap.String("organization_id", j.orgID),
			zap.String("event", j.event),
		)
		metrics.WebhookDropped.Inc()
		return false
	}
	select {
	case d.jobs <- j:
		return true
	default:
		d.log.Error("webhook queue full, event dropped",
			zap.String("organization_id", j.orgID),
			zap.String("event", j.event),
			zap.Int("queue_size", cap(d.jobs)),
		)
		metrics.WebhookDropped.Inc()
		return false
	}
}

func (d *Dispatcher) handle(j job) {
	if j.cfg != nil {
		d.deliver(context.Background(), *j.cfg, j.event, j.resourceID, j.body, true)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	configs, err := d.store.ListActiveWebhookConfigs(ctx, j.orgID)
	cancel()
	if err != nil {
		d.log.Error("load webhook configs failed",
			zap.String("organization_id", j.orgID),
			zap.String("event", j.event),
			zap.Error(err),
		)
		return
	}

	for i := range configs {
		cfg := configs[i]
		if !webhookContainsEvent(cfg.Events, j.event) {
			continue
		}
		next := j
		next.cfg = &cfg
		if !d.tryEnqueue(next) {
			// queue saturated, deliver on this worker instead of losing it
			d.deliver(context.Background(), cfg, j.event, j.resourceID, j.body, true)
		}
	}
}

// tryEnqueue is the non-logging variant used by workers fanning out.
func (d *Dispatcher) tryEnqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- j:
		return true
	default:
		return false
	}
}

// attemptResult is the outcome of a single HTTP attempt.
type attemptResult struct {
	statusCode int
	body       string
}

// deliver posts body to cfg.URL, retrying with exponential backoff when the
// config allows it, and persists the final outcome.
func (d *Dispatcher) deliver(ctx context.Context, cfg models.WebhookConfigModel, event, resourceID string, body []byte, allowRetry bool) *models.WebhookDeliveryModel {
	deliveryID := uuid.New().String()
	timestamp := strconv.FormatInt(d.now().UnixMilli(), 10)
	headers := signedHeaders(cfg, event, deliveryID, timestamp, body, d.cfg.UserAgent)
	timeout := d.timeoutFor(cfg)

	attempts := 0
	var last attemptResult
	operation := func() (attemptResult, error) {
		attempts++
		metrics.WebhookAttempts.Inc()
		res, err := d.attempt(ctx, cfg.URL, headers, body, timeout)
		last = res
		if err != nil && !(allowRetry && cfg.RetryEnabled) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{backoff.WithMaxTries(1)}
	if allowRetry && cfg.RetryEnabled {
		opts = []backoff.RetryOption{
			backoff.WithBackOff(d.newBackOff()),
			backoff.WithMaxTries(uint(maxRetriesFor(cfg)) + 1),
			backoff.WithNotify(func(err error, wait time.Duration) {
				d.log.Debug("webhook attempt failed, retrying",
					zap.String("webhook_id", cfg.ID),
					zap.String("event", event),
					zap.Int("attempt", attempts),
					zap.Duration("wait", wait),
					zap.Error(err),
				)
			}),
		}
	}

	started := time.Now()
	_, err := backoff.Retry(ctx, operation, opts...)
	elapsed := time.Since(started)

	delivery := &models.WebhookDeliveryModel{
		WebhookID:      cfg.ID,
		OrganizationID: cfg.OrganizationID,
		Event:          event,
		ResourceID:     resourceID,
		Payload:        string(body),
		Headers:        redactSignature(headers),
		StatusCode:     last.statusCode,
		Success:        err == nil,
		Attempts:       attempts,
		ResponseBody:   last.body,
		DurationMS:     elapsed.Milliseconds(),
		DeliveredAt:    d.now().UTC(),
	}
	delivery.ID = deliveryID
	outcome := "success"
	if err != nil {
		outcome = "failure"
		delivery.Error = err.Error()
	}
	metrics.WebhookDeliveries.WithLabelValues(event, outcome).Inc()

	fields := []zap.Field{
		zap.String("webhook_id", cfg.ID),
		zap.String("organization_id", cfg.OrganizationID),
		zap.String("event", event),
		zap.String("delivery_id", deliveryID),
		zap.String("outcome", outcome),
		zap.Int("attempts", attempts),
		zap.Int("status_code", last.statusCode),
	}
	if err != nil {
		d.log.Warn("webhook delivery failed", append(fields, zap.Error(fmt.Errorf("%w: %v", apperr.ErrDeliveryFailure, err)))...)
	} else {
		d.log.Info("webhook delivered", fields...)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if perr := d.store.InsertDelivery(pctx, delivery); perr != nil {
		d.log.Error("persist webhook delivery failed", append(fields, zap.Error(perr))...)
	}
	return delivery
}

func (d *Dispatcher) attempt(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration) (attemptResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return attemptResult{}, backoff.Permanent(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return attemptResult{}, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	res := attemptResult{statusCode: resp.StatusCode, body: string(raw)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	return res, nil
}

func (d *Dispatcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if v := d.cfg.InitialBackoff(); v > 0 {
		b.InitialInterval = v
	}
	if v := d.cfg.MaxBackoff(); v > 0 {
		b.MaxInterval = v
	}
	b.Reset()
	return b
}

func (d *Dispatcher) timeoutFor(cfg models.WebhookConfigModel) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return time.Duration(d.cfg.DefaultTimeoutSeconds) * time.Second
}

// maxRetriesFor returns the stored retry budget. Zero is a real setting;
// the default is applied when the endpoint is registered.
func maxRetriesFor(cfg models.WebhookConfigModel) int {
	if cfg.MaxRetries < 0 {
		return 0
	}
	return cfg.MaxRetries
}

func buildBody(event string, at time.Time, resource interface{}, meta map[string]interface{}) ([]byte, error) {
	data := map[string]interface{}{}
	if resource != nil {
		raw, err := json.Marshal(resource)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, errors.New("resource must encode as a JSON object")
		}
		if data == nil {
			data = map[string]interface{}{}
		}
	}
	for k, v := range meta {
		data[k] = v
	}
	return json.Marshal(map[string]interface{}{
		"event":     event,
		"timestamp": at.UTC().Format(time.RFC3339),
		"data":      data,
	})
}

func signedHeaders(cfg models.WebhookConfigModel, event, deliveryID, timestamp string, body []byte, userAgent string) map[string]string {
	payload := string(body)
	headers := map[string]string{
		"Content-Type":           "application/json",
		"X-Webhook-Event":        event,
		"X-Webhook-Id":           cfg.ID,
		"X-Webhook-Delivery":     deliveryID,
		"X-Webhook-Timestamp":    timestamp,
		"X-Webhook-Signature":    "sha256=" + signWithHash(sha256.New, cfg.Secret, payload),
		"X-Webhook-Signature256": signWithHash(sha256.New, cfg.Secret, payload),
	}
	if userAgent != "" {
		headers["User-Agent"] = userAgent
	}
	return headers
}

func redactSignature(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		switch k {
		case "X-Webhook-Signature", "X-Webhook-Signature256":
			continue
		}
		out[k] = v
	}
	return out
}

// Sign computes the hex HMAC-SHA256 a receiver compares against
// X-Webhook-Signature after stripping the "sha256=" prefix.
func Sign(secret string, body []byte) string {
	return signWithHash(sha256.New, secret, string(body))
}

// Verify reports whether signature, with or without its "sha256=" prefix,
// matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	if len(signature) > 7 && signature[:7] == "sha256=" {
		signature = signature[7:]
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func signWithHash(newHash func() hash.Hash, secret, payload string) string {
	mac := hmac.New(newHash, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
