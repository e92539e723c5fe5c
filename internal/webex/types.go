// ABOUTME: Typed structures for Webex API resources
// ABOUTME: All fields the gateway relies on are validated at decode time

package webex

import (
	"fmt"
	"strings"
)

// RoomType values as reported by the Webex API.
const (
	RoomTypeGroup  = "group"
	RoomTypeDirect = "direct"
)

// Person is an immutable snapshot of a Webex user profile.
type Person struct {
	ID          string   `json:"id"`
	Emails      []string `json:"emails"`
	DisplayName string   `json:"displayName"`
}

// Email returns the person's primary email address.
func (p *Person) Email() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// Handle returns the local-part of the person's primary email,
// used as the chat nick for rendered lines.
func (p *Person) Handle() string {
	return LocalPart(p.Email())
}

// validate checks the fields the gateway depends on.
func (p *Person) validate() error {
	if p.ID == "" {
		return fmt.Errorf("person missing id")
	}
	if len(p.Emails) == 0 || p.Emails[0] == "" {
		return fmt.Errorf("person %s missing email", p.ID)
	}
	return nil
}

// Room is a multi-party chat space on Webex.
type Room struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

func (r *Room) validate() error {
	if r.ID == "" {
		return fmt.Errorf("room missing id")
	}
	if r.Title == "" {
		return fmt.Errorf("room %s missing title", r.ID)
	}
	return nil
}

// Message is a single Webex message. Webhook notifications carry only
// the message id; the full content requires a separate fetch.
type Message struct {
	ID          string `json:"id"`
	RoomID      string `json:"roomId"`
	RoomType    string `json:"roomType"`
	PersonID    string `json:"personId"`
	PersonEmail string `json:"personEmail"`
	Text        string `json:"text"`
	Markdown    string `json:"markdown"`
}

func (m *Message) validate() error {
	if m.ID == "" {
		return fmt.Errorf("message missing id")
	}
	if m.PersonEmail == "" {
		return fmt.Errorf("message %s missing personEmail", m.ID)
	}
	return nil
}

// Webhook is a Webex-managed subscription that POSTs event
// notifications to a target URL.
type Webhook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TargetURL string `json:"targetUrl"`
	Resource  string `json:"resource"`
	Event     string `json:"event"`
}

// LocalPart returns the part of an email address before the '@',
// or the whole string when no '@' is present.
func LocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
