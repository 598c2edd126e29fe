package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synapse-pkm/synapse-whatsapp/pkg/env"
	"github.com/synapse-pkm/synapse-whatsapp/pkg/log"
)

// Engine fans events out to registered webhook subscriptions through a
// bounded queue and a fixed worker pool. It satisfies whatsapp.Notifier.
type Engine struct {
	store      *Store
	httpClient *http.Client
	queue      chan *deliveryTask
	workers    int
	retryLimit int
	allowHTTP  bool
	enabled    bool
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type deliveryTask struct {
	sub      Subscription
	envelope Envelope
}

func NewEngine(store *Store) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan *deliveryTask, 1000),
		workers:    env.GetEnvIntOrDefault("NOTIFY_WORKERS", 4),
		retryLimit: env.GetEnvIntOrDefault("NOTIFY_RETRY_LIMIT", 3),
		allowHTTP:  env.GetEnvBoolOrDefault("NOTIFY_ALLOW_HTTP", false),
		enabled:    env.GetEnvBoolOrDefault("NOTIFY_ENABLED", true),
		ctx:        ctx,
		cancel:     cancel,
	}

	if engine.enabled {
		for i := 0; i < engine.workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) Shutdown() {
	e.cancel()
	close(e.queue)
	e.wg.Wait()
}

// Publish queues one delivery per matching active subscription. It never
// blocks the caller; a full queue drops the delivery with a log line.
func (e *Engine) Publish(event string, data map[string]interface{}) {
	if !e.enabled {
		return
	}

	envelope := Envelope{
		ID:        uuid.NewString(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, sub := range e.store.Active() {
		if !subscribed(sub, event) {
			continue
		}
		select {
		case e.queue <- &deliveryTask{sub: sub, envelope: envelope}:
		default:
			log.Print(nil).WithField("event", event).Warn("webhook queue full, delivery dropped")
		}
	}
}

func subscribed(sub Subscription, event string) bool {
	if len(sub.Events) == 0 {
		return true
	}
	for _, evt := range sub.Events {
		if evt == event {
			return true
		}
	}
	return false
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(task)
		}
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	if err := e.ValidateURL(task.sub.URL); err != nil {
		log.Print(nil).WithField("webhook_id", task.sub.ID).Error("webhook url rejected: " + err.Error())
		return
	}

	payload, err := json.Marshal(task.envelope)
	if err != nil {
		log.Print(nil).Error("webhook payload marshal: " + err.Error())
		return
	}

	signature := signPayload(payload, task.sub.Secret)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.sub.URL, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}

		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Webhook-Signature", signature)
		}
		req.Header.Set("X-Webhook-Event", task.envelope.Event)
		req.Header.Set("User-Agent", "Synapse-WhatsApp-Gateway/1.0")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < e.retryLimit {
				time.Sleep(time.Duration(attempt*2) * time.Second)
			}
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		if attempt < e.retryLimit {
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
	}

	if lastErr != nil {
		log.Print(nil).WithField("webhook_id", task.sub.ID).
			WithField("event", task.envelope.Event).
			Warn("webhook delivery failed: " + lastErr.Error())
	}
}

func signPayload(payload []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidateURL rejects non-HTTPS and private-network targets unless HTTP
// delivery is explicitly enabled for local development.
func (e *Engine) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Scheme != "https" {
		if !(e.allowHTTP && u.Scheme == "http") {
			return fmt.Errorf("only HTTPS URLs are allowed")
		}
	}

	if e.allowHTTP {
		return nil
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" ||
		strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") ||
		strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
