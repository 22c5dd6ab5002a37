// Package httpnotify delivers customer notifications and partner status callbacks over HTTP. Failures are split
// into transient ones, which the task runner retries, and permanent ones wrapped with statusflow.Permanent.
package httpnotify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

var (
	ErrDeliveryRejected = errors.New("delivery rejected", j.C("ERR_5c1e0a7d93b2f486"))
	ErrDeliveryFailed   = errors.New("delivery failed", j.C("ERR_8e4f2b6a1d07c935"))
)

const (
	defaultTimeout       = 10 * time.Second
	idempotencyKeyHeader = "Idempotency-Key"
	maxErrorBody         = 512
)

// Notification is a templated message to one recipient.
type Notification struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Context   map[string]string `json:"context,omitempty"`
	// IdempotencyKey lets the notification service drop redeliveries.
	IdempotencyKey string `json:"-"`
}

type Ack struct {
	DeliveryID string `json:"delivery_id"`
}

// StatusCallback is posted to a partner when an entity they care about changes status.
type StatusCallback struct {
	Partner    string    `json:"partner"`
	EntityID   string    `json:"entity_id"`
	Workflow   string    `json:"workflow"`
	Status     int       `json:"status"`
	Label      string    `json:"label"`
	HistoryID  string    `json:"history_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Client struct {
	notifyURL string
	http      *http.Client
	token     string
	userAgent string
}

type Option func(c *Client)

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a client that posts notifications to notifyURL.
func New(notifyURL string, opts ...Option) *Client {
	c := &Client{
		notifyURL: notifyURL,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: "statusflow",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Send(ctx context.Context, n Notification) (Ack, error) {
	var ack Ack
	err := c.post(ctx, c.notifyURL, n.IdempotencyKey, n, &ack)
	if err != nil {
		return Ack{}, errors.Wrap(err, "send notification", j.MKV{
			"template":  n.Template,
			"recipient": n.Recipient,
		})
	}

	return ack, nil
}

// Callback posts cb to the partner's url. Any 2xx response counts as success.
func (c *Client) Callback(ctx context.Context, url string, cb StatusCallback, idempotencyKey string) error {
	err := c.post(ctx, url, idempotencyKey, cb, nil)
	if err != nil {
		return errors.Wrap(err, "partner callback", j.MKV{
			"partner":   cb.Partner,
			"entity_id": cb.EntityID,
		})
	}

	return nil
}

func (c *Client) post(ctx context.Context, url, idempotencyKey string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return statusflow.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return statusflow.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(ErrDeliveryFailed, err.Error())
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(ErrDeliveryFailed, "decode response: "+err.Error())
	}

	return nil
}

// classify maps a response to nil, a transient error or a permanent error. Rate limiting and timeouts reported
// by the server are retried along with 5xx responses.
func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	meta := j.MKV{
		"status_code": strconv.Itoa(resp.StatusCode),
		"body":        string(body),
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return errors.Wrap(ErrDeliveryFailed, "", meta)
	default:
		return statusflow.Permanent(errors.Wrap(ErrDeliveryRejected, "", meta))
	}
}
