// ABOUTME: Webhooks endpoint operations: list, create, and delete subscriptions
// ABOUTME: The session keeps at most one webhook alive under its fixed name

package webex

import (
	"context"
	"net/url"
)

// ListWebhooks returns all webhooks registered for this account.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var env listEnvelope[Webhook]
	if err := c.get(ctx, "/webhooks", nil, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// CreateWebhook registers a new webhook subscription.
func (c *Client) CreateWebhook(ctx context.Context, name, targetURL, resource, event string) (*Webhook, error) {
	payload := map[string]string{
		"name":      name,
		"targetUrl": targetURL,
		"resource":  resource,
		"event":     event,
	}
	var hook Webhook
	if err := c.post(ctx, "/webhooks", payload, &hook); err != nil {
		return nil, err
	}
	return &hook, nil
}

// DeleteWebhook removes a webhook subscription by id.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	return c.delete(ctx, "/webhooks/"+url.PathEscape(id))
}
