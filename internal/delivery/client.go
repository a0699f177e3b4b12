package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"finqueue/internal/config"
	"finqueue/internal/models"

	"golang.org/x/oauth2/clientcredentials"
)

// Error is a delivery failure reported by the backend or the transport.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Client delivers queue entries to the backend over HTTP JSON. Credentials
// ride along either as cookies or, when configured, an OAuth2
// client-credentials token.
type Client struct {
	baseURL    string
	healthPath string
	http       *http.Client
}

func NewClient(cfg config.DeliveryConfig) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var httpClient *http.Client
	if cfg.OAuth.Enabled {
		cc := clientcredentials.Config{
			TokenURL:     cfg.OAuth.TokenURL,
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Scopes:       cfg.OAuth.Scopes,
		}
		httpClient = cc.Client(context.Background())
		httpClient.Timeout = timeout
	} else {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{Timeout: timeout, Jar: jar}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		healthPath: cfg.HealthPath,
		http:       httpClient,
	}, nil
}

// Deliver maps the entry type to its backend endpoint and posts the
// payload. Any non-2xx status or transport error is a delivery failure.
func (c *Client) Deliver(ctx context.Context, entry *models.QueueEntry) error {
	path, body, err := c.endpointFor(entry)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if entry.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", entry.IdempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) endpointFor(entry *models.QueueEntry) (string, interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(entry.Payload))

	switch entry.Type {
	case models.TypeSocialPost:
		var p models.SocialPostPayload
		if err := dec.Decode(&p); err != nil {
			return "", nil, fmt.Errorf("decode social-post payload: %w", err)
		}
		return "/api/social-posts", p, nil
	case models.TypeDirectMessage:
		var p models.DirectMessagePayload
		if err := dec.Decode(&p); err != nil {
			return "", nil, fmt.Errorf("decode direct-message payload: %w", err)
		}
		return "/api/dm/send", p, nil
	case models.TypeDJTip:
		var p models.DJTipPayload
		if err := dec.Decode(&p); err != nil {
			return "", nil, fmt.Errorf("decode dj-tip payload: %w", err)
		}
		return "/api/dj-tips", p, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", models.ErrUnknownEntryType, entry.Type)
	}
}

// Healthy reports whether the backend answers its health endpoint. Used as
// the connectivity probe.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func decodeError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Detail == "" {
		return &Error{Status: resp.StatusCode}
	}
	return &Error{Status: resp.StatusCode, Detail: body.Detail}
}
