// Package hubspot syncs signups into HubSpot CRM as contacts.
package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-mindwell/internal/httpc"
)

const contactsPath = "/crm/v3/objects/contacts"

// Contact is the subset of contact properties the app collects.
type Contact struct {
	Email      string            `json:"email"`
	FirstName  string            `json:"firstname,omitempty"`
	LastName   string            `json:"lastname,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Validate normalizes and checks the email.
func (c *Contact) Validate() error {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email == "" {
		return ErrMissingEmail
	}
	if !strings.Contains(c.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

func (c Contact) properties() map[string]string {
	props := make(map[string]string, len(c.Properties)+3)
	for k, v := range c.Properties {
		props[k] = v
	}
	props["email"] = c.Email
	if c.FirstName != "" {
		props["firstname"] = c.FirstName
	}
	if c.LastName != "" {
		props["lastname"] = c.LastName
	}
	return props
}

// Client talks to the HubSpot CRM v3 API.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a HubSpot client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "hubspot"),
	}, nil
}

// UpsertContact creates the contact, or updates it by email if HubSpot
// reports it already exists. created is false on the update path.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) (id string, created bool, err error) {
	if err := contact.Validate(); err != nil {
		return "", false, err
	}
	body, err := json.Marshal(map[string]any{"properties": contact.properties()})
	if err != nil {
		return "", false, fmt.Errorf("hubspot: marshal contact: %w", err)
	}

	id, err = c.send(ctx, http.MethodPost, c.config.BaseURL+contactsPath, body)
	if err == nil {
		c.logger.Info("created contact", "id", id)
		return id, true, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsConflict() {
		return "", false, err
	}

	u := c.config.BaseURL + contactsPath + "/" + url.PathEscape(contact.Email) + "?idProperty=email"
	id, err = c.send(ctx, http.MethodPatch, u, body)
	if err != nil {
		return "", false, err
	}
	c.logger.Info("updated contact", "id", id)
	return id, false, nil
}

func (c *Client) send(ctx context.Context, method, u string, body []byte) (string, error) {
	header := http.Header{"Authorization": []string{"Bearer " + c.config.AccessToken}}
	resp, err := httpc.DoWithRetry(ctx, c.http, httpc.Retry{
		MaxRetries: c.config.MaxRetries,
		Delay:      c.config.RetryDelay,
		Logger:     c.logger,
	}, httpc.JSONRequest(method, u, body, header))
	if err != nil {
		return "", fmt.Errorf("hubspot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", parseError(resp)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("hubspot: decode response: %w", err)
	}
	return result.ID, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
