// ABOUTME: SessionController: startup state machine, registry ownership, shutdown
// ABOUTME: Wires the Webex client, ingress, router, dedupe, and display host together

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatbridge/webex-gateway/internal/config"
	"github.com/chatbridge/webex-gateway/internal/conversation"
	"github.com/chatbridge/webex-gateway/internal/dedupe"
	"github.com/chatbridge/webex-gateway/internal/ingress"
	"github.com/chatbridge/webex-gateway/internal/router"
	"github.com/chatbridge/webex-gateway/internal/surface"
	"github.com/chatbridge/webex-gateway/internal/webex"
)

// WebhookName is the fixed name this session registers its webhook
// under. At most one webhook with this name exists at a time: prior
// ones are deleted on every (re)connect to avoid duplicate delivery.
const WebhookName = "webex-gateway"

const webhookPath = "/webhook"

// State tracks startup progress. Any state can fall back to
// StateDisconnected on a fatal setup failure.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateAuthenticating    State = "authenticating"
	StateJoiningAutojoin   State = "joining-autojoin"
	StateListenerBound     State = "listener-bound"
	StateWebhookRegistered State = "webhook-registered"
	StateRunning           State = "running"
)

// RemoteAPI is everything the session needs from the Webex client.
// *webex.Client satisfies it.
type RemoteAPI interface {
	conversation.Messenger

	Me(ctx context.Context) (*webex.Person, error)
	GetPerson(ctx context.Context, id string) (*webex.Person, error)
	GetPersonByEmail(ctx context.Context, email string) (*webex.Person, error)
	SearchPeople(ctx context.Context, displayName string) ([]webex.Person, error)

	FindRoom(ctx context.Context, name string) (*webex.Room, error)
	SearchRooms(ctx context.Context, name string) ([]webex.Room, error)

	ListWebhooks(ctx context.Context) ([]webex.Webhook, error)
	CreateWebhook(ctx context.Context, name, targetURL, resource, event string) (*webex.Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

// APIFactory constructs the RemoteAPI during the authentication step.
// Construction failure is fatal to startup.
type APIFactory func(cfg *config.Config) (RemoteAPI, error)

// DefaultAPIFactory builds a real Webex client from the config.
func DefaultAPIFactory(cfg *config.Config) (RemoteAPI, error) {
	return webex.New(webex.Options{
		AccessToken: cfg.Webex.AccessToken,
		APIURL:      cfg.Webex.APIURL,
	})
}

// Params bundles the dependencies for New.
type Params struct {
	Config *config.Config
	Host   surface.Host
	// NewAPI defaults to DefaultAPIFactory.
	NewAPI APIFactory
	// Recorder is the optional message ledger.
	Recorder conversation.Recorder
	Logger   *slog.Logger
}

// Session owns one authenticated identity, one listening socket, and
// one registered webhook. It is constructed explicitly and passed to
// every handler; there is no package-level instance.
type Session struct {
	cfg      *config.Config
	host     surface.Host
	newAPI   APIFactory
	recorder conversation.Recorder
	logger   *slog.Logger

	registry *conversation.Registry
	ingress  *ingress.Ingress
	dedupe   *dedupe.Cache

	mu     sync.Mutex
	state  State
	api    RemoteAPI
	self   *webex.Person
	router *router.Router
}

// New creates a Session in the Disconnected state.
func New(p Params) *Session {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newAPI := p.NewAPI
	if newAPI == nil {
		newAPI = DefaultAPIFactory
	}

	s := &Session{
		cfg:      p.Config,
		host:     p.Host,
		newAPI:   newAPI,
		recorder: p.Recorder,
		logger:   logger.With("component", "session"),
		registry: conversation.NewRegistry(),
		dedupe:   dedupe.New(5*time.Minute, 10_000),
		state:    StateDisconnected,
	}
	s.ingress = ingress.New(p.Config.Ingress.ListenAddr, p.Config.Ingress.ReadTimeout, s.routeInbound, logger)
	p.Host.SetEvents(s)
	return s
}

// State returns the current startup state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Self returns the authenticated identity, or nil before Connect.
func (s *Session) Self() *webex.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Registry exposes the conversation registry.
func (s *Session) Registry() *conversation.Registry {
	return s.registry
}

// IngressAddr returns the bound listener address, or nil.
func (s *Session) IngressAddr() string {
	addr := s.ingress.Addr()
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Connect runs the startup sequence: authenticate, resolve identity,
// autojoin, bind the listener, and (re)register the webhook. Fatal
// failures abort the remaining steps, report the cause, and leave the
// session Disconnected. Connect may be invoked again for a manual
// reconnect; the listener bind and ingress registration are
// idempotent, and the webhook is deleted and recreated.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateAuthenticating)

	api, err := s.newAPI(s.cfg)
	if err != nil {
		s.setState(StateDisconnected)
		s.host.Log(fmt.Sprintf("error connecting to the Webex API: %v", err))
		return fmt.Errorf("authenticating: %w", err)
	}

	self, err := api.Me(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		s.host.Log(fmt.Sprintf("error resolving own identity: %v", err))
		return fmt.Errorf("resolving identity: %w", err)
	}

	s.mu.Lock()
	s.api = api
	s.self = self
	s.router = router.New(self.ID, s.registry, s, s.dedupe, s.logger)
	s.mu.Unlock()

	s.host.Log(fmt.Sprintf("welcome %s", self.Handle()))

	s.setState(StateJoiningAutojoin)
	s.autojoin(ctx, api)

	if err := s.ingress.Bind(); err != nil {
		s.setState(StateDisconnected)
		s.host.Log(fmt.Sprintf("error binding the webhook listener: %v", err))
		return fmt.Errorf("binding listener: %w", err)
	}
	s.ingress.Start(ctx)
	s.setState(StateListenerBound)

	if err := s.registerWebhook(ctx, api); err != nil {
		s.setState(StateDisconnected)
		s.host.Log(fmt.Sprintf("error registering the Webex webhook: %v", err))
		return fmt.Errorf("registering webhook: %w", err)
	}
	s.setState(StateWebhookRegistered)

	s.setState(StateRunning)
	s.logger.Info("session running",
		"self", self.Handle(),
		"listen_addr", s.IngressAddr(),
		"conversations", s.registry.Len())
	return nil
}

// autojoin opens conversations for the configured room names and
// direct contacts. Every entry is best-effort: unresolvable names are
// skipped with a log line and never abort startup.
func (s *Session) autojoin(ctx context.Context, api RemoteAPI) {
	for _, name := range config.SplitList(s.cfg.Webex.AutojoinRooms) {
		room, err := api.FindRoom(ctx, name)
		if err != nil {
			// Unresolved autojoin names must never become a
			// conversation built from a missing room.
			s.logger.Warn("skipping autojoin room", "name", name, "error", err)
			s.host.Log(fmt.Sprintf("no room found with name %s", name))
			continue
		}
		s.openRoom(room, false)
	}

	for _, email := range config.SplitList(s.cfg.Webex.AutojoinDirects) {
		email = s.qualifyEmail(email)
		person, err := api.GetPersonByEmail(ctx, email)
		if err != nil {
			s.logger.Warn("skipping autojoin direct", "email", email, "error", err)
			s.host.Log(fmt.Sprintf("no person found with email %s", email))
			continue
		}
		s.openDirect(person, false)
	}
}

// registerWebhook deletes any webhook left over under the session name
// and creates a fresh one pointing at the configured public base URL.
func (s *Session) registerWebhook(ctx context.Context, api RemoteAPI) error {
	if err := s.deleteOwnedWebhooks(ctx, api); err != nil {
		// Deletion is best-effort: a stale webhook is preferable to a
		// failed startup when the only problem is listing.
		s.logger.Warn("deleting old webhooks failed", "error", err)
	}

	targetURL := strings.TrimRight(s.cfg.Webex.BaseURL, "/") + webhookPath
	hook, err := api.CreateWebhook(ctx, WebhookName, targetURL, "messages", "created")
	if err != nil {
		return err
	}
	s.logger.Info("webhook registered", "webhook_id", hook.ID, "target_url", targetURL)
	return nil
}

// deleteOwnedWebhooks removes every webhook registered under the
// session's fixed name.
func (s *Session) deleteOwnedWebhooks(ctx context.Context, api RemoteAPI) error {
	hooks, err := api.ListWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("listing webhooks: %w", err)
	}
	for _, hook := range hooks {
		if hook.Name != WebhookName {
			continue
		}
		if err := api.DeleteWebhook(ctx, hook.ID); err != nil {
			s.logger.Warn("deleting old webhook failed", "webhook_id", hook.ID, "error", err)
			continue
		}
		s.logger.Info("removed old webhook", "webhook_id", hook.ID)
	}
	return nil
}

// Shutdown releases session resources. Every step is best-effort: a
// failure in one never prevents the next.
func (s *Session) Shutdown(ctx context.Context) {
	s.host.Log("disconnecting")

	if err := s.ingress.Close(); err != nil {
		s.logger.Warn("closing listener failed", "error", err)
	}

	s.mu.Lock()
	api := s.api
	s.mu.Unlock()
	if api != nil {
		if err := s.deleteOwnedWebhooks(ctx, api); err != nil {
			s.logger.Warn("webhook cleanup failed", "error", err)
		}
	}

	s.dedupe.Close()
	s.setState(StateDisconnected)
}

// routeInbound is the ingress callback. It delegates to the router
// built during Connect; bytes arriving before that are dropped.
func (s *Session) routeInbound(ctx context.Context, body []byte) {
	s.mu.Lock()
	r := s.router
	s.mu.Unlock()
	if r == nil {
		s.logger.Debug("dropping webhook body before connect")
		return
	}
	r.Route(ctx, body)
}

// qualifyEmail appends the configured default domain to bare
// local-parts.
func (s *Session) qualifyEmail(email string) string {
	if strings.Contains(email, "@") || s.cfg.Webex.DefaultDomain == "" {
		return email
	}
	return email + "@" + s.cfg.Webex.DefaultDomain
}

// openRoom returns the conversation for a group room, creating and
// registering one when absent.
func (s *Session) openRoom(room *webex.Room, display bool) *conversation.Conversation {
	return s.openConversation(room.ID, room.Title, conversation.KindRoom, display)
}

// openDirect returns the direct-chat conversation for a person,
// creating one keyed by their person id when absent.
func (s *Session) openDirect(person *webex.Person, display bool) *conversation.Conversation {
	return s.openConversation(person.ID, person.Handle(), conversation.KindDirect, display)
}

// openConversation is the single creation path enforcing
// lookup-before-create.
func (s *Session) openConversation(remoteID, name string, kind conversation.Kind, display bool) *conversation.Conversation {
	if existing := s.registry.FindByRemoteID(remoteID); existing != nil {
		return existing
	}

	s.mu.Lock()
	selfHandle := ""
	if s.self != nil {
		selfHandle = s.self.Handle()
	}
	api := s.api
	s.mu.Unlock()

	surf := s.host.Open(remoteID, name, display)
	conv := conversation.New(conversation.Params{
		RemoteID:   remoteID,
		Name:       name,
		Kind:       kind,
		Surface:    surf,
		API:        api,
		SelfHandle: selfHandle,
		Ledger:     s.recorder,
		Logger:     s.logger,
	})
	if err := s.registry.Add(conv); err != nil {
		// Lost a race with another creation path; the registered one wins.
		return s.registry.FindByRemoteID(remoteID)
	}
	s.logger.Info("conversation opened", "remote_id", remoteID, "kind", kind, "name", name)
	return conv
}

// OpenDirectByPersonID implements router.DirectOpener for reactive
// direct-chat creation on first contact.
func (s *Session) OpenDirectByPersonID(ctx context.Context, personID string) (*conversation.Conversation, error) {
	s.mu.Lock()
	api := s.api
	s.mu.Unlock()
	if api == nil {
		return nil, errors.New("session not connected")
	}

	person, err := api.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("resolving person %s: %w", personID, err)
	}
	return s.openDirect(person, false), nil
}

// InputSubmitted implements surface.Events: typed text goes out
// through the owning conversation.
func (s *Session) InputSubmitted(surfaceID, text string) {
	conv := s.registry.FindBySurfaceID(surfaceID)
	if conv == nil {
		s.logger.Debug("input on unknown surface dropped", "surface_id", surfaceID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conv.Send(ctx, text)
}

// SurfaceClosed implements surface.Events: closing a buffer destroys
// its conversation immediately and unconditionally.
func (s *Session) SurfaceClosed(surfaceID string) {
	conv := s.registry.FindBySurfaceID(surfaceID)
	if conv == nil {
		return
	}
	conv.Delete()
	s.registry.Remove(conv.RemoteID())
	s.logger.Info("conversation closed", "remote_id", conv.RemoteID())
}
