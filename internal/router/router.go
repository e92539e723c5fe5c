// ABOUTME: InboundEventRouter resolves webhook notification payloads to conversations
// ABOUTME: Never raises: decode, lookup, and API failures are logged and swallowed

package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/chatbridge/webex-gateway/internal/conversation"
	"github.com/chatbridge/webex-gateway/internal/webex"
)

// Event is a decoded webhook notification. It lives for one routing
// call and is never persisted; the payload intentionally omits message
// text, so rendering always goes back to the API.
type Event struct {
	MessageID string `json:"id"`
	RoomID    string `json:"roomId"`
	RoomType  string `json:"roomType"`
	PersonID  string `json:"personId"`
}

// payload is the raw webhook body shape. Top-level fields other than
// "data" are ignored.
type payload struct {
	Data *Event `json:"data"`
}

// Registry is the conversation lookup the router needs.
type Registry interface {
	FindByRemoteID(id string) *conversation.Conversation
}

// DirectOpener creates a direct-chat conversation for a previously
// unseen sender, keyed by their person id.
type DirectOpener interface {
	OpenDirectByPersonID(ctx context.Context, personID string) (*conversation.Conversation, error)
}

// Deduper reports whether a message id was already routed. A nil
// Deduper disables duplicate suppression.
type Deduper interface {
	Seen(id string) bool
}

// Router demultiplexes inbound events to conversations.
type Router struct {
	selfID   string
	registry Registry
	opener   DirectOpener
	dedupe   Deduper
	logger   *slog.Logger
}

// New creates a Router. selfID is the authenticated identity's person
// id, used to discard echoes of this session's own messages.
func New(selfID string, registry Registry, opener DirectOpener, dedupe Deduper, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		selfID:   selfID,
		registry: registry,
		opener:   opener,
		dedupe:   dedupe,
		logger:   logger.With("component", "router"),
	}
}

// Route decodes rawBody and dispatches the event to the matching
// conversation, creating one for first-contact direct chats. It always
// returns normally: malformed bodies, unknown rooms, and resolution
// failures produce at most a log line.
func (r *Router) Route(ctx context.Context, rawBody []byte) {
	var p payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		r.logger.Debug("discarding unparseable webhook body", "error", err)
		return
	}
	if p.Data == nil {
		r.logger.Debug("discarding webhook body without data")
		return
	}
	event := p.Data

	// Self-echo check comes first, unconditionally: a message this
	// session sent must never create or update a conversation.
	if event.PersonID == r.selfID {
		return
	}

	if r.dedupe != nil && event.MessageID != "" && r.dedupe.Seen(event.MessageID) {
		r.logger.Debug("duplicate webhook delivery ignored", "message_id", event.MessageID)
		return
	}

	// Known room (group or already-open direct chat).
	if conv := r.registry.FindByRemoteID(event.RoomID); conv != nil {
		r.logger.Debug("routing message to room", "room_id", event.RoomID, "message_id", event.MessageID)
		conv.Receive(ctx, event.MessageID)
		return
	}

	// Direct chats are keyed by the peer's person id, not the room id.
	if event.RoomType == webex.RoomTypeDirect {
		conv := r.registry.FindByRemoteID(event.PersonID)
		if conv == nil {
			var err error
			conv, err = r.opener.OpenDirectByPersonID(ctx, event.PersonID)
			if err != nil {
				r.logger.Error("dropping direct message: sender resolution failed",
					"person_id", event.PersonID,
					"message_id", event.MessageID,
					"error", err)
				return
			}
		}
		r.logger.Debug("routing direct message", "person_id", event.PersonID, "message_id", event.MessageID)
		conv.Receive(ctx, event.MessageID)
		return
	}

	// Group message for an untracked room: never auto-join from
	// inbound events, only from explicit user action or autojoin.
	r.logger.Debug("ignoring message for untracked group room", "room_id", event.RoomID)
}
