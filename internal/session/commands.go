// ABOUTME: User-initiated session commands: open direct chats, join rooms,
// ABOUTME: and search the directory for rooms and people

package session

import (
	"context"
	"fmt"
)

// OpenDirect opens a displayed one-on-one chat with a buddy addressed
// by email. Bare local-parts are completed with the configured default
// domain.
func (s *Session) OpenDirect(ctx context.Context, buddy string) {
	api := s.currentAPI()
	if api == nil {
		s.host.Log("not connected")
		return
	}

	email := s.qualifyEmail(buddy)
	s.host.Log(fmt.Sprintf("opening chat with %s", email))

	person, err := api.GetPersonByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("direct chat lookup failed", "email", email, "error", err)
		s.host.Log(fmt.Sprintf("no person found with email %s", email))
		return
	}
	s.openDirect(person, true)
}

// JoinRoom opens a displayed conversation for the first group room
// whose title contains name.
func (s *Session) JoinRoom(ctx context.Context, name string) {
	api := s.currentAPI()
	if api == nil {
		s.host.Log("not connected")
		return
	}

	room, err := api.FindRoom(ctx, name)
	if err != nil {
		s.logger.Warn("room lookup failed", "name", name, "error", err)
		s.host.Log(fmt.Sprintf("no room found with name %s", name))
		return
	}
	s.openRoom(room, true)
}

// ListRooms prints the titles of every group room matching name. An
// empty name lists them all.
func (s *Session) ListRooms(ctx context.Context, name string) {
	api := s.currentAPI()
	if api == nil {
		s.host.Log("not connected")
		return
	}

	rooms, err := api.SearchRooms(ctx, name)
	if err != nil {
		s.host.Log(fmt.Sprintf("error listing rooms: %v", err))
		return
	}
	if len(rooms) == 0 {
		s.host.Log("no rooms found")
		return
	}
	s.host.Log("rooms:")
	for _, room := range rooms {
		s.host.Log(fmt.Sprintf(" - %s", room.Title))
	}
}

// SearchPeople prints the directory entries whose display name
// matches name.
func (s *Session) SearchPeople(ctx context.Context, name string) {
	api := s.currentAPI()
	if api == nil {
		s.host.Log("not connected")
		return
	}

	people, err := api.SearchPeople(ctx, name)
	if err != nil {
		s.host.Log(fmt.Sprintf("error searching people: %v", err))
		return
	}
	if len(people) == 0 {
		s.host.Log(fmt.Sprintf("no people found matching %s", name))
		return
	}
	s.host.Log("people:")
	for _, person := range people {
		s.host.Log(fmt.Sprintf(" - %s <%s>", person.DisplayName, person.Email()))
	}
}

func (s *Session) currentAPI() RemoteAPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api
}
