// ABOUTME: Messages endpoint operations: fetch by id and send to room or person
// ABOUTME: Webhook notifications carry only ids, so rendering always fetches here

package webex

import (
	"context"
	"net/url"
)

// GetMessage fetches the full content of a message by id. The webhook
// notification payload deliberately omits message text, so this call
// is required before rendering.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := c.get(ctx, "/messages/"+url.PathEscape(id), nil, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendToRoom posts a text message to a group room.
func (c *Client) SendToRoom(ctx context.Context, roomID, text string) error {
	payload := map[string]string{
		"roomId": roomID,
		"text":   text,
	}
	return c.post(ctx, "/messages", payload, nil)
}

// SendToPerson posts a text message to a one-on-one chat, addressed by
// the peer's person id.
func (c *Client) SendToPerson(ctx context.Context, personID, text string) error {
	payload := map[string]string{
		"toPersonId": personID,
		"text":       text,
	}
	return c.post(ctx, "/messages", payload, nil)
}
