package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier sends best-effort operator alerts.
type Notifier interface {
	Notify(event EventType, fields map[string]string)
}

// Discard is a Notifier that drops every alert.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(EventType, map[string]string) {}

// Client sends alerts to an incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	notifyOn   NotifySettings
	logger     *slog.Logger
}

// NewClient creates a Client from configuration. A disabled or
// incomplete config yields a client that sends nothing.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return &Client{enabled: false, logger: logger}
	}

	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    true,
		notifyOn:   cfg.NotifyOn,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type webhookMessage struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text,omitempty"`
	Blocks  []block `json:"blocks,omitempty"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Post sends an alert and waits for the webhook to answer.
func (c *Client) Post(ctx context.Context, event EventType, fields map[string]string) error {
	if !c.enabled || !c.shouldNotify(event) {
		return nil
	}

	msg := formatMessage(event, fields, time.Now())
	if c.channel != "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) shouldNotify(event EventType) bool {
	switch event {
	case EventMemberJoined:
		return c.notifyOn.MemberJoined
	case EventProvisionFailed:
		return c.notifyOn.ProvisionFailed
	case EventCleanupFailed:
		return c.notifyOn.CleanupFailed
	case EventSaveFailed:
		return c.notifyOn.SaveFailed
	default:
		return true
	}
}

// Notify posts in the background. Errors are logged, never returned.
func (c *Client) Notify(event EventType, fields map[string]string) {
	if c == nil || !c.enabled || !c.shouldNotify(event) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.Post(ctx, event, fields); err != nil {
			c.logger.Warn("alert failed", "event", string(event), "error", err)
		}
	}()
}
