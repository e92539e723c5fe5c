// ABOUTME: People endpoint operations: identity resolution and person lookup
// ABOUTME: Covers /people/me, /people/{id}, and listing by email or display name

package webex

import (
	"context"
	"fmt"
	"net/url"
)

// Me returns the authenticated user's own profile.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	var p Person
	if err := c.get(ctx, "/people/me", nil, &p); err != nil {
		return nil, fmt.Errorf("fetching own identity: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPerson fetches a person by their opaque id.
func (c *Client) GetPerson(ctx context.Context, id string) (*Person, error) {
	var p Person
	if err := c.get(ctx, "/people/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPersonByEmail returns the person registered under the given email
// address, or ErrNotFound when no account matches.
func (c *Client) GetPersonByEmail(ctx context.Context, email string) (*Person, error) {
	query := url.Values{"email": {email}}
	var env listEnvelope[Person]
	if err := c.get(ctx, "/people", query, &env); err != nil {
		return nil, err
	}
	if len(env.Items) == 0 {
		return nil, ErrNotFound
	}
	p := env.Items[0]
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchPeople returns all people whose display name matches the query.
func (c *Client) SearchPeople(ctx context.Context, displayName string) ([]Person, error) {
	query := url.Values{"displayName": {displayName}}
	var env listEnvelope[Person]
	if err := c.get(ctx, "/people", query, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}
