// ABOUTME: Tests for the session startup state machine, webhook lifecycle,
// ABOUTME: autojoin handling, and surface event wiring

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbridge/webex-gateway/internal/config"
	"github.com/chatbridge/webex-gateway/internal/surface"
	"github.com/chatbridge/webex-gateway/internal/webex"
)

type sentMessage struct {
	kind   string // "room" or "person"
	target string
	text   string
}

// fakeAPI is an in-memory RemoteAPI with a small seeded directory.
type fakeAPI struct {
	mu sync.Mutex

	self  webex.Person
	meErr error

	people   map[string]webex.Person // keyed by id
	byEmail  map[string]webex.Person
	rooms    []webex.Room
	messages map[string]webex.Message

	hooks     []webex.Webhook
	nextHook  int
	createErr error
	deleted   []string

	sent []sentMessage
}

func newFakeAPI() *fakeAPI {
	f := &fakeAPI{
		self:     webex.Person{ID: "p-self", Emails: []string{"me@example.com"}, DisplayName: "Me"},
		people:   make(map[string]webex.Person),
		byEmail:  make(map[string]webex.Person),
		messages: make(map[string]webex.Message),
	}
	f.addPerson(webex.Person{ID: "p-bob", Emails: []string{"bob@example.com"}, DisplayName: "Bob Builder"})
	f.rooms = append(f.rooms, webex.Room{ID: "r-ops", Title: "ops war room", Type: webex.RoomTypeGroup})
	return f
}

func (f *fakeAPI) addPerson(p webex.Person) {
	f.people[p.ID] = p
	f.byEmail[p.Email()] = p
}

func (f *fakeAPI) Me(ctx context.Context) (*webex.Person, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	self := f.self
	return &self, nil
}

func (f *fakeAPI) GetPerson(ctx context.Context, id string) (*webex.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.people[id]
	if !ok {
		return nil, webex.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAPI) GetPersonByEmail(ctx context.Context, email string) (*webex.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byEmail[email]
	if !ok {
		return nil, webex.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAPI) SearchPeople(ctx context.Context, displayName string) ([]webex.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []webex.Person
	for _, p := range f.people {
		if strings.Contains(strings.ToLower(p.DisplayName), strings.ToLower(displayName)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) FindRoom(ctx context.Context, name string) (*webex.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if strings.Contains(r.Title, name) {
			room := r
			return &room, nil
		}
	}
	return nil, webex.ErrNotFound
}

func (f *fakeAPI) SearchRooms(ctx context.Context, name string) ([]webex.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []webex.Room
	for _, r := range f.rooms {
		if strings.Contains(strings.ToLower(r.Title), strings.ToLower(name)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetMessage(ctx context.Context, id string) (*webex.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, webex.ErrNotFound
	}
	return &m, nil
}

func (f *fakeAPI) SendToRoom(ctx context.Context, roomID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{kind: "room", target: roomID, text: text})
	return nil
}

func (f *fakeAPI) SendToPerson(ctx context.Context, personID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{kind: "person", target: personID, text: text})
	return nil
}

func (f *fakeAPI) ListWebhooks(ctx context.Context) ([]webex.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webex.Webhook(nil), f.hooks...), nil
}

func (f *fakeAPI) CreateWebhook(ctx context.Context, name, targetURL, resource, event string) (*webex.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextHook++
	hook := webex.Webhook{
		ID:        fmt.Sprintf("wh-%d", f.nextHook),
		Name:      name,
		TargetURL: targetURL,
		Resource:  resource,
		Event:     event,
	}
	f.hooks = append(f.hooks, hook)
	return &hook, nil
}

func (f *fakeAPI) DeleteWebhook(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, hook := range f.hooks {
		if hook.ID == id {
			f.hooks = append(f.hooks[:i], f.hooks[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return webex.ErrNotFound
}

func (f *fakeAPI) liveHooks() []webex.Webhook {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webex.Webhook(nil), f.hooks...)
}

func (f *fakeAPI) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func testConfig() *config.Config {
	return &config.Config{
		Webex: config.WebexConfig{
			AccessToken:   "test-token",
			BaseURL:       "https://bridge.example.com",
			DefaultDomain: "example.com",
		},
		Ingress: config.IngressConfig{
			ListenAddr:  "127.0.0.1:0",
			ReadTimeout: 300 * time.Millisecond,
		},
	}
}

func newTestSession(t *testing.T, fake *fakeAPI, mutate func(*config.Config)) (*Session, *surface.MemoryHost) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	host := surface.NewMemoryHost()
	sess := New(Params{
		Config: cfg,
		Host:   host,
		NewAPI: func(*config.Config) (RemoteAPI, error) { return fake, nil },
	})
	t.Cleanup(func() { sess.Shutdown(context.Background()) })
	return sess, host
}

func requireLogged(t *testing.T, host *surface.MemoryHost, want string) {
	t.Helper()
	for _, line := range host.LogLines() {
		if strings.Contains(line, want) {
			return
		}
	}
	t.Fatalf("log line containing %q not found in %v", want, host.LogLines())
}

func TestConnect_RunsStartupSequence(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ops"
		cfg.Webex.AutojoinDirects = "bob"
	})

	require.NoError(t, sess.Connect(context.Background()))

	assert.Equal(t, StateRunning, sess.State())
	assert.Equal(t, "p-self", sess.Self().ID)
	requireLogged(t, host, "welcome me")

	// Autojoin opened both conversations without displaying them.
	assert.NotNil(t, sess.Registry().FindByRemoteID("r-ops"))
	assert.NotNil(t, sess.Registry().FindByRemoteID("p-bob"))
	assert.Equal(t, 2, sess.Registry().Len())

	hooks := fake.liveHooks()
	require.Len(t, hooks, 1)
	assert.Equal(t, WebhookName, hooks[0].Name)
	assert.Equal(t, "https://bridge.example.com/webhook", hooks[0].TargetURL)
	assert.Equal(t, "messages", hooks[0].Resource)
	assert.Equal(t, "created", hooks[0].Event)

	assert.NotEmpty(t, sess.IngressAddr())
}

func TestConnect_AuthFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	host := surface.NewMemoryHost()
	sess := New(Params{
		Config: cfg,
		Host:   host,
		NewAPI: func(*config.Config) (RemoteAPI, error) { return nil, errors.New("bad token") },
	})
	t.Cleanup(func() { sess.Shutdown(context.Background()) })

	err := sess.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sess.State())
	assert.Equal(t, "", sess.IngressAddr())
}

func TestConnect_IdentityFailureIsFatal(t *testing.T) {
	fake := newFakeAPI()
	fake.meErr = errors.New("401 unauthorized")
	sess, _ := newTestSession(t, fake, nil)

	err := sess.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sess.State())
	assert.Empty(t, fake.liveHooks())
}

func TestConnect_WebhookFailureIsFatal(t *testing.T) {
	fake := newFakeAPI()
	fake.createErr = errors.New("target url unreachable")
	sess, _ := newTestSession(t, fake, nil)

	err := sess.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sess.State())
}

func TestConnect_UnresolvedAutojoinSkipped(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ghost, ops"
		cfg.Webex.AutojoinDirects = "nobody"
	})

	require.NoError(t, sess.Connect(context.Background()))

	assert.Equal(t, StateRunning, sess.State())
	requireLogged(t, host, "no room found with name ghost")
	requireLogged(t, host, "no person found with email nobody@example.com")
	assert.Nil(t, sess.Registry().FindByRemoteID("ghost"))
	assert.NotNil(t, sess.Registry().FindByRemoteID("r-ops"))
	assert.Equal(t, 1, sess.Registry().Len())
}

func TestConnect_ReconnectReplacesWebhook(t *testing.T) {
	fake := newFakeAPI()
	sess, _ := newTestSession(t, fake, nil)

	require.NoError(t, sess.Connect(context.Background()))
	firstAddr := sess.IngressAddr()
	first := fake.liveHooks()
	require.Len(t, first, 1)

	require.NoError(t, sess.Connect(context.Background()))

	assert.Equal(t, firstAddr, sess.IngressAddr())
	hooks := fake.liveHooks()
	require.Len(t, hooks, 1)
	assert.NotEqual(t, first[0].ID, hooks[0].ID)
	assert.Contains(t, fake.deleted, first[0].ID)
}

func TestConnect_AfterShutdownRoutesAgain(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["m-2"] = webex.Message{
		ID:          "m-2",
		RoomID:      "r-ops",
		RoomType:    webex.RoomTypeGroup,
		PersonID:    "p-bob",
		PersonEmail: "bob@example.com",
		Text:        "back online",
	}
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ops"
	})
	require.NoError(t, sess.Connect(context.Background()))

	sess.Shutdown(context.Background())
	require.NoError(t, sess.Connect(context.Background()))
	require.Equal(t, StateRunning, sess.State())

	hooks := fake.liveHooks()
	require.Len(t, hooks, 1, "reconnect must leave exactly one live webhook")

	body := `{"data":{"id":"m-2","roomId":"r-ops","roomType":"group","personId":"p-bob"}}`
	postWebhook(t, sess.IngressAddr(), body)

	require.Eventually(t, func() bool {
		return len(host.Surface("r-ops").Lines()) > 0
	}, 2*time.Second, 10*time.Millisecond, "listener must serve after shutdown and reconnect")
	assert.Equal(t, "back online", host.Surface("r-ops").Lines()[0].Text)
}

func TestConnect_DeletesStaleWebhooksOnly(t *testing.T) {
	fake := newFakeAPI()
	fake.hooks = []webex.Webhook{
		{ID: "wh-stale", Name: WebhookName, TargetURL: "https://old.example.com/webhook"},
		{ID: "wh-other", Name: "someone-else", TargetURL: "https://other.example.com/hook"},
	}
	sess, _ := newTestSession(t, fake, nil)

	require.NoError(t, sess.Connect(context.Background()))

	assert.Contains(t, fake.deleted, "wh-stale")
	var names []string
	for _, hook := range fake.liveHooks() {
		names = append(names, hook.Name)
	}
	assert.ElementsMatch(t, []string{"someone-else", WebhookName}, names)
}

func TestOpenDirect_CompletesDefaultDomain(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	sess.OpenDirect(context.Background(), "bob")

	requireLogged(t, host, "opening chat with bob@example.com")
	conv := sess.Registry().FindByRemoteID("p-bob")
	require.NotNil(t, conv)
	assert.NotNil(t, host.Surface("p-bob"))
}

func TestOpenDirect_UnknownPerson(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	sess.OpenDirect(context.Background(), "stranger@elsewhere.net")

	requireLogged(t, host, "no person found with email stranger@elsewhere.net")
	assert.Equal(t, 0, sess.Registry().Len())
}

func TestJoinRoom_ReusesExistingConversation(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	sess.JoinRoom(context.Background(), "ops")
	sess.JoinRoom(context.Background(), "ops")

	assert.Equal(t, 1, sess.Registry().Len())
	assert.Equal(t, 1, host.SurfaceCount())
}

func TestListRoomsAndSearchPeople(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	sess.ListRooms(context.Background(), "war")
	requireLogged(t, host, " - ops war room")

	sess.SearchPeople(context.Background(), "builder")
	requireLogged(t, host, " - Bob Builder <bob@example.com>")

	sess.ListRooms(context.Background(), "nope")
	requireLogged(t, host, "no rooms found")
}

func TestInputSubmitted_SendsThroughConversation(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ops"
		cfg.Webex.AutojoinDirects = "bob"
	})
	require.NoError(t, sess.Connect(context.Background()))

	host.SubmitInput("r-ops", "deploy is done")
	host.SubmitInput("p-bob", "lunch?")

	sent := fake.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, sentMessage{kind: "room", target: "r-ops", text: "deploy is done"}, sent[0])
	assert.Equal(t, sentMessage{kind: "person", target: "p-bob", text: "lunch?"}, sent[1])

	// The local echo renders before the send completes.
	lines := host.Surface("r-ops").Lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "self", lines[0].Kind)
	assert.Equal(t, "me", lines[0].Sender)
}

func TestInputSubmitted_UnknownSurfaceIgnored(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	host.SubmitInput("no-such-surface", "hello?")
	assert.Empty(t, fake.sentMessages())
}

func TestSurfaceClosed_DestroysConversation(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ops"
	})
	require.NoError(t, sess.Connect(context.Background()))
	require.NotNil(t, sess.Registry().FindByRemoteID("r-ops"))

	host.CloseSurface("r-ops")

	assert.Nil(t, sess.Registry().FindByRemoteID("r-ops"))
	assert.Equal(t, 0, sess.Registry().Len())
}

func TestOpenDirectByPersonID_ReactiveCreation(t *testing.T) {
	fake := newFakeAPI()
	sess, host := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))

	conv, err := sess.OpenDirectByPersonID(context.Background(), "p-bob")
	require.NoError(t, err)
	assert.Equal(t, "p-bob", conv.RemoteID())
	assert.NotNil(t, host.Surface("p-bob"))

	again, err := sess.OpenDirectByPersonID(context.Background(), "p-bob")
	require.NoError(t, err)
	assert.Same(t, conv, again)

	_, err = sess.OpenDirectByPersonID(context.Background(), "p-unknown")
	require.Error(t, err)
}

// TestInboundDelivery drives a webhook body through the real listener
// and asserts the message lands on the room surface.
func TestInboundDelivery(t *testing.T) {
	fake := newFakeAPI()
	fake.messages["m-1"] = webex.Message{
		ID:          "m-1",
		RoomID:      "r-ops",
		RoomType:    webex.RoomTypeGroup,
		PersonID:    "p-bob",
		PersonEmail: "bob@example.com",
		Text:        "build is green",
	}
	sess, host := newTestSession(t, fake, func(cfg *config.Config) {
		cfg.Webex.AutojoinRooms = "ops"
	})
	require.NoError(t, sess.Connect(context.Background()))

	body := `{"data":{"id":"m-1","roomId":"r-ops","roomType":"group","personId":"p-bob"}}`
	postWebhook(t, sess.IngressAddr(), body)

	require.Eventually(t, func() bool {
		return len(host.Surface("r-ops").Lines()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	lines := host.Surface("r-ops").Lines()
	assert.Equal(t, "peer", lines[0].Kind)
	assert.Equal(t, "bob", lines[0].Sender)
	assert.Equal(t, "build is green", lines[0].Text)
}

func TestShutdown_ReleasesResources(t *testing.T) {
	fake := newFakeAPI()
	sess, _ := newTestSession(t, fake, nil)
	require.NoError(t, sess.Connect(context.Background()))
	addr := sess.IngressAddr()

	sess.Shutdown(context.Background())

	assert.Equal(t, StateDisconnected, sess.State())
	assert.Empty(t, fake.liveHooks())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestShutdown_BeforeConnectIsSafe(t *testing.T) {
	fake := newFakeAPI()
	sess, _ := newTestSession(t, fake, nil)
	sess.Shutdown(context.Background())
	assert.Equal(t, StateDisconnected, sess.State())
}

func postWebhook(t *testing.T, addr, body string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	req := "POST /webhook HTTP/1.1\r\nHost: test\r\nContent-Type: application/json\r\n\r\n" + body
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)
}
