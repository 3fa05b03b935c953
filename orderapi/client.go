// Package orderapi talks to the Order API that creates, loads, patches and
// verifies payment for orders.
package orderapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/mealplan-app/apperr"
	"github.com/yeremiapane/mealplan-app/models"
)

// API is the Order API as the checkout and order packages consume it.
type API interface {
	CreateOrder(ctx context.Context, payload models.OrderPayload) (models.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	UpdateOrder(ctx context.Context, orderID string, patch models.OrderPatch) (models.Order, error)
	VerifyPayment(ctx context.Context, orderID string) (models.VerifyPaymentResult, error)
}

// Client is the HTTP implementation of API. Token is the bearer credential
// issued by the identity provider.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateOrder(ctx context.Context, payload models.OrderPayload) (models.CreateOrderResult, error) {
	var out models.CreateOrderResult
	err := c.do(ctx, http.MethodPost, "/api/orders", payload, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(orderID), nil, &out)
	return out, err
}

func (c *Client) UpdateOrder(ctx context.Context, orderID string, patch models.OrderPatch) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(orderID), patch, &out)
	return out, err
}

func (c *Client) VerifyPayment(ctx context.Context, orderID string) (models.VerifyPaymentResult, error) {
	var out models.VerifyPaymentResult
	err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(orderID)+"/verify-payment", nil, &out)
	return out, err
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Kind    string          `json:"kind,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Network(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Network("error reading response", err)
	}

	c.log.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode,
		"latency": time.Since(start),
	}).Debug("order api call")

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperr.Network(fmt.Sprintf("unexpected response from order api (status %d)", resp.StatusCode), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		kind := apperr.ParseKind(env.Kind)
		if kind == apperr.KindUnknown {
			kind = apperr.KindNetwork
		}
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apperr.Error{Kind: kind, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperr.Network("error unmarshaling response", err)
		}
	}
	return nil
}
