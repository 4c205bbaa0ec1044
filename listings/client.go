// Package listings is the client side of the marketplace listing store.
// The messaging core never persists listing data; it only needs to map
// a property to its owner when a conversation is opened.
package listings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"nestchat/errors"
)

// Client resolves property owners over the listing service's HTTP API.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type propertyResponse struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
}

// OwnerOf returns the owner of a property, or ErrNotFound when the
// listing store does not know the property.
func (c *Client) OwnerOf(ctx context.Context, propertyID string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/properties/%s", c.baseURL, url.PathEscape(propertyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building listing request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling listing store: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: property %s", errors.ErrNotFound, propertyID)
	default:
		return "", fmt.Errorf("listing store answered %d for property %s", resp.StatusCode, propertyID)
	}

	var property propertyResponse
	if err := json.NewDecoder(resp.Body).Decode(&property); err != nil {
		return "", fmt.Errorf("decoding listing response: %w", err)
	}
	if property.OwnerID == "" {
		return "", fmt.Errorf("listing store returned property %s without an owner", propertyID)
	}
	return property.OwnerID, nil
}
