package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stoik/mailbridge/internal/models"
)

const (
	// AppName is the connector app slug for Gmail.
	AppName = "gmail"
	// NewMessageTrigger is the trigger that pushes each new Gmail message.
	NewMessageTrigger = "GMAIL_NEW_GMAIL_MESSAGE"
	// FetchEmailsAction lists recent messages of a linked account.
	FetchEmailsAction = "GMAIL_FETCH_EMAILS"

	statusActive = "ACTIVE"
)

// StatusError is returned when the connector answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the failure is on the connector's side.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client implements Connector against the connector's HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates a connector client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	cbSettings := gobreaker.Settings{
		Name:        "mail-connector",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// Client errors are the caller's problem, not an outage.
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return !statusErr.Temporary()
			}
			return err == nil || errors.Is(err, ErrNoAccount)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		logger: logger,
	}
}

// StartAuthorization implements Connector.StartAuthorization.
func (c *Client) StartAuthorization(ctx context.Context, userID, redirectURL string) (Authorization, error) {
	req := map[string]any{
		"user_id": userID,
		"app":     AppName,
	}
	if redirectURL != "" {
		req["redirect_url"] = redirectURL
	}

	var auth Authorization
	if err := c.do(ctx, http.MethodPost, "/api/v1/connected_accounts", nil, req, &auth); err != nil {
		return Authorization{}, fmt.Errorf("failed to initiate connection: %w", err)
	}
	if auth.RedirectURL == "" {
		return Authorization{}, fmt.Errorf("failed to initiate connection: empty redirect url")
	}
	return auth, nil
}

// ConnectedAccount implements Connector.ConnectedAccount.
func (c *Client) ConnectedAccount(ctx context.Context, userID string) (Account, error) {
	q := url.Values{}
	q.Set("user_ids", userID)
	q.Set("app", AppName)

	var resp struct {
		Items []Account `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/connected_accounts", q, nil, &resp); err != nil {
		return Account{}, fmt.Errorf("failed to get connected account: %w", err)
	}
	for _, acct := range resp.Items {
		if strings.EqualFold(acct.Status, statusActive) {
			return acct, nil
		}
	}
	return Account{}, ErrNoAccount
}

// ListRecentMessages implements Connector.ListRecentMessages.
func (c *Client) ListRecentMessages(ctx context.Context, accountID, userID string, max int) ([]models.RawMessage, error) {
	req := map[string]any{
		"connected_account_id": accountID,
		"user_id":              userID,
		"params":               map[string]any{"max_results": max},
	}

	var resp actionResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/actions/"+FetchEmailsAction+"/execute", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("failed to fetch emails: %s", resp.Error)
	}
	return resp.messages()
}

// EnablePush implements Connector.EnablePush.
func (c *Client) EnablePush(ctx context.Context, accountID, userID, callbackURL string) (Trigger, error) {
	req := map[string]any{
		"connected_account_id": accountID,
		"user_id":              userID,
		"trigger_name":         NewMessageTrigger,
		"config":               map[string]any{"callback_url": callbackURL},
	}

	var trg Trigger
	if err := c.do(ctx, http.MethodPost, "/api/v1/triggers/enable", nil, req, &trg); err != nil {
		return Trigger{}, fmt.Errorf("failed to enable email trigger: %w", err)
	}
	if trg.ID == "" {
		return Trigger{}, fmt.Errorf("failed to enable email trigger: empty trigger id")
	}
	trg.Enabled = true
	return trg, nil
}

// actionResponse is the envelope of an executed action. The message list
// may be nested under data.messages, data.emails or be data itself.
type actionResponse struct {
	Data         json.RawMessage `json:"data"`
	ResponseData json.RawMessage `json:"response_data"`
	Successful   *bool           `json:"successful"`
	Error        string          `json:"error"`
}

func (r actionResponse) messages() ([]models.RawMessage, error) {
	data := r.Data
	if len(data) == 0 || string(data) == "null" {
		data = r.ResponseData
	}
	if len(data) == 0 || string(data) == "null" {
		return []models.RawMessage{}, nil
	}

	var list []models.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var nested struct {
		Messages []models.RawMessage `json:"messages"`
		Emails   []models.RawMessage `json:"emails"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if nested.Messages != nil {
		return nested.Messages, nil
	}
	if nested.Emails != nil {
		return nested.Emails, nil
	}
	return []models.RawMessage{}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("connector call rejected by circuit breaker",
			slog.String("path", path),
			slog.String("state", c.cb.State().String()))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
