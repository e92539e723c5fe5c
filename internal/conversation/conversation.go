// ABOUTME: Conversation models one chat session (group room or direct chat)
// ABOUTME: Owns send/receive formatting and the bound display surface

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chatbridge/webex-gateway/internal/render"
	"github.com/chatbridge/webex-gateway/internal/surface"
	"github.com/chatbridge/webex-gateway/internal/webex"
)

// Kind distinguishes group rooms from one-on-one chats.
type Kind string

const (
	// KindRoom is a multi-party chat; the conversation is keyed by the
	// Webex room id.
	KindRoom Kind = "room"

	// KindDirect is a one-on-one chat; the conversation is keyed by
	// the peer's person id, not a room id.
	KindDirect Kind = "direct"
)

// Messenger is what a conversation needs from the remote API.
type Messenger interface {
	GetMessage(ctx context.Context, id string) (*webex.Message, error)
	SendToRoom(ctx context.Context, roomID, text string) error
	SendToPerson(ctx context.Context, personID, text string) error
}

// Recorder receives best-effort copies of rendered and sent messages.
// A nil Recorder disables recording.
type Recorder interface {
	RecordInbound(conversationKey, author, text string)
	RecordOutbound(conversationKey, author, text string)
}

// Conversation is one chat session bound to a display surface.
type Conversation struct {
	remoteID   string
	name       string
	kind       Kind
	api        Messenger
	ledger     Recorder
	selfHandle string
	logger     *slog.Logger

	mu   sync.Mutex
	surf surface.Surface
}

// Params bundles the dependencies for New.
type Params struct {
	// RemoteID keys the conversation: a room id for KindRoom, the peer
	// person id for KindDirect.
	RemoteID string
	// Name is the display title (room title or peer handle).
	Name string
	Kind Kind
	// Surface is the bound display surface. Required.
	Surface surface.Surface
	// API performs the remote fetch and send calls. Required.
	API Messenger
	// SelfHandle tags optimistic local echoes.
	SelfHandle string
	// Ledger is optional.
	Ledger Recorder
	Logger *slog.Logger
}

// New creates a Conversation. The surface is assumed already opened by
// the host under RemoteID.
func New(p Params) *Conversation {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		remoteID:   p.RemoteID,
		name:       p.Name,
		kind:       p.Kind,
		surf:       p.Surface,
		api:        p.API,
		selfHandle: p.SelfHandle,
		ledger:     p.Ledger,
		logger:     logger.With("component", "conversation", "remote_id", p.RemoteID),
	}
}

// RemoteID returns the remote identifier the conversation is keyed by.
func (c *Conversation) RemoteID() string { return c.remoteID }

// Name returns the display name.
func (c *Conversation) Name() string { return c.name }

// Kind returns whether this is a room or a direct chat.
func (c *Conversation) Kind() Kind { return c.kind }

// Receive fetches the full message body by id and renders it on the
// display surface, tagged as a peer line. Fetch failures are reported
// on the surface and never propagate.
func (c *Conversation) Receive(ctx context.Context, messageID string) {
	surf := c.currentSurface()
	if surf == nil {
		c.logger.Debug("receive on detached conversation dropped", "message_id", messageID)
		return
	}

	msg, err := c.api.GetMessage(ctx, messageID)
	if err != nil {
		c.logger.Warn("message fetch failed", "message_id", messageID, "error", err)
		surf.Info(fmt.Sprintf("unable to retrieve message from the Webex API: %v", err))
		return
	}

	sender := webex.LocalPart(msg.PersonEmail)
	text := render.MessageText(msg.Text, msg.Markdown)
	surf.PeerLine(sender, text)

	if c.ledger != nil {
		c.ledger.RecordInbound(c.remoteID, sender, text)
	}
}

// Send relays locally typed text to the remote side, echoing it on the
// surface immediately. The echo is optimistic: a failed remote call is
// reported on the surface but the echoed line is not retracted.
func (c *Conversation) Send(ctx context.Context, text string) {
	surf := c.currentSurface()
	if surf == nil {
		c.logger.Debug("send on detached conversation dropped")
		return
	}

	surf.SelfLine(c.selfHandle, text)

	var err error
	if c.kind == KindRoom {
		err = c.api.SendToRoom(ctx, c.remoteID, text)
	} else {
		err = c.api.SendToPerson(ctx, c.remoteID, text)
	}
	if err != nil {
		c.logger.Warn("message send failed", "kind", c.kind, "error", err)
		surf.Info(fmt.Sprintf("message send failed: %v", err))
		return
	}

	if c.ledger != nil {
		c.ledger.RecordOutbound(c.remoteID, c.selfHandle, text)
	}
}

// Delete detaches the display surface. Remote-side state is left
// untouched: closing a buffer never deletes rooms or messages.
func (c *Conversation) Delete() {
	c.mu.Lock()
	c.surf = nil
	c.mu.Unlock()
}

func (c *Conversation) currentSurface() surface.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surf
}
