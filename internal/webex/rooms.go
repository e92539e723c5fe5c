// ABOUTME: Rooms endpoint operations: listing and name-based search
// ABOUTME: Rooms are listed sorted by last activity, matching the join semantics

package webex

import (
	"context"
	"net/url"
	"strings"
)

// ListRooms returns group rooms sorted by most recent activity.
// Pagination beyond the API's first page is not requested.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	query := url.Values{
		"type":   {RoomTypeGroup},
		"sortBy": {"lastactivity"},
	}
	var env listEnvelope[Room]
	if err := c.get(ctx, "/rooms", query, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}

// FindRoom returns the first room whose title contains name
// (case-sensitive), or ErrNotFound.
func (c *Client) FindRoom(ctx context.Context, name string) (*Room, error) {
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		if strings.Contains(rooms[i].Title, name) {
			if err := rooms[i].validate(); err != nil {
				return nil, err
			}
			return &rooms[i], nil
		}
	}
	return nil, ErrNotFound
}

// SearchRooms returns all rooms whose title contains name, compared
// case-insensitively.
func (c *Client) SearchRooms(ctx context.Context, name string) ([]Room, error) {
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(name)
	var matches []Room
	for _, room := range rooms {
		if strings.Contains(strings.ToLower(room.Title), lower) {
			matches = append(matches, room)
		}
	}
	return matches, nil
}
