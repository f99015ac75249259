package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/urosperisic/chatapp/internal/app"
	"github.com/urosperisic/chatapp/internal/store"
	"github.com/urosperisic/chatapp/pkg/auth"
)

// fakeStore is an in-memory ChatStore for exercising the hub without
// a database.
type fakeStore struct {
	mu        sync.Mutex
	rooms     map[string]store.Room
	messages  []store.Message
	appendErr error
	seq       int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: map[string]store.Room{}}
}

func (f *fakeStore) EnsureRoom(_ context.Context, name string) (store.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[name]; ok {
		return r, nil
	}
	r := store.Room{ID: uuid.NewString(), Name: name, IsActive: true, CreatedAt: time.Now()}
	f.rooms[name] = r
	return r, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, roomID, userID, content string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return store.Message{}, f.appendErr
	}
	if strings.TrimSpace(content) == "" {
		return store.Message{}, store.ErrEmptyMessage
	}
	f.seq++
	m := store.Message{ID: f.seq, RoomID: roomID, UserID: userID, Content: content, Timestamp: time.Now()}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) stored() []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages...)
}

func (f *fakeStore) roomCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms)
}

// fakeUsers resolves token user ids for the verifier.
type fakeUsers struct{ users map[string]store.User }

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	u, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

// fakePresence records add/remove calls.
type fakePresence struct {
	mu     sync.Mutex
	online map[string][]string
}

func newFakePresence() *fakePresence { return &fakePresence{online: map[string][]string{}} }

func (f *fakePresence) Add(_ context.Context, room, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[room] = append(f.online[room], username)
}

func (f *fakePresence) Remove(_ context.Context, room, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, u := range f.online[room] {
		if u != username {
			out = append(out, u)
		}
	}
	f.online[room] = out
}

func (f *fakePresence) Online(_ context.Context, room string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.online[room]...), nil
}

type hubFixture struct {
	hub      *Hub
	db       *fakeStore
	presence *fakePresence
	jwt      *auth.JWT
	srv      *httptest.Server
}

func newHubFixture(t *testing.T, users ...store.User) *hubFixture {
	t.Helper()

	db := newFakeStore()
	presence := newFakePresence()
	j := auth.New("test-secret")

	um := map[string]store.User{}
	for _, u := range users {
		um[u.ID] = u
	}
	verifier := NewStoreVerifier(j, &fakeUsers{users: um})

	hub := NewHub(app.NewLogger("dev", testWriter{t}), verifier, db, presence)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/chat/{room}", http.HandlerFunc(hub.ServeWS))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, db: db, presence: presence, jwt: j, srv: srv}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (fx *hubFixture) token(t *testing.T, uid string, ttl time.Duration) string {
	t.Helper()
	tok, err := fx.jwt.Sign(uid, ttl)
	require.NoError(t, err)
	return tok
}

// dial opens a client connection with the token in the subprotocol.
func (fx *hubFixture) dial(t *testing.T, room, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "/ws/chat/" + room
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.Subprotocols = []string{"authorization", token}
	}
	c, _, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func sendMessage(t *testing.T, c *websocket.Conn, text string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(map[string]string{"message": text})
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func readEvent(t *testing.T, c *websocket.Conn) map[string]string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev map[string]string
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func (fx *hubFixture) waitMembers(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		rm := fx.hub.lookup(room)
		if rm == nil {
			return n == 0
		}
		return rm.size() == n
	}, 3*time.Second, 10*time.Millisecond, "room %q should have %d members", room, n)
}

var (
	alice = store.User{ID: "11111111-1111-1111-1111-111111111111", Username: "alice"}
	bob   = store.User{ID: "22222222-2222-2222-2222-222222222222", Username: "bob"}
)

func TestChatScenario(t *testing.T) {
	fx := newHubFixture(t, alice, bob)

	// alice joins an empty room; she is alone so her join event goes
	// to no one
	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	fx.waitMembers(t, "general", 1)

	// she sends a message and receives it back through the fan-out
	sendMessage(t, ac, "hello")
	ev := readEvent(t, ac)
	assert.Equal(t, "message", ev["type"])
	assert.Equal(t, "hello", ev["message"])
	assert.Equal(t, "alice", ev["username"])
	_, err := time.Parse(time.RFC3339Nano, ev["timestamp"])
	assert.NoError(t, err, "timestamp must be RFC3339")

	// bob joins; alice is told, bob is not told about himself
	bc := fx.dial(t, "general", fx.token(t, bob.ID, time.Hour))
	fx.waitMembers(t, "general", 2)
	ev = readEvent(t, ac)
	assert.Equal(t, "user_join", ev["type"])
	assert.Equal(t, "bob", ev["username"])

	// the message was persisted exactly once
	msgs := fx.db.stored()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, alice.ID, msgs[0].UserID)

	// alice leaves; bob sees the departure
	require.NoError(t, ac.Close(websocket.StatusNormalClosure, ""))
	ev = readEvent(t, bc)
	assert.Equal(t, "user_leave", ev["type"])
	assert.Equal(t, "alice", ev["username"])
	fx.waitMembers(t, "general", 1)
}

func TestRejectedTokenNoSideEffects(t *testing.T) {
	fx := newHubFixture(t, alice)

	cases := map[string]string{
		"expired":  fx.token(t, alice.ID, -time.Hour),
		"bad user": fx.token(t, "deadbeef", time.Hour),
		"garbage":  "not-a-jwt",
		"missing":  "",
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			c := fx.dial(t, "general", tok)

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, _, err := c.Read(ctx)
			require.Error(t, err)
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
		})
	}

	// no rooms created, no membership, no messages, no presence
	assert.Zero(t, fx.db.roomCount())
	assert.Empty(t, fx.db.stored())
	assert.Nil(t, fx.hub.lookup("general"))
	online, _ := fx.presence.Online(context.Background(), "general")
	assert.Empty(t, online)
}

func TestWhitespaceMessageDropped(t *testing.T) {
	fx := newHubFixture(t, alice)

	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	fx.waitMembers(t, "general", 1)

	// whitespace and malformed frames produce no store row and no
	// broadcast; the next real message is the first event delivered
	sendMessage(t, ac, "   ")
	sendMessage(t, ac, "")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	require.NoError(t, ac.Write(ctx, websocket.MessageText, []byte("{not json")))
	cancel()
	sendMessage(t, ac, "real")

	ev := readEvent(t, ac)
	assert.Equal(t, "message", ev["type"])
	assert.Equal(t, "real", ev["message"])

	msgs := fx.db.stored()
	require.Len(t, msgs, 1)
	assert.Equal(t, "real", msgs[0].Content)
}

func TestStorageFailureClosesConnection(t *testing.T) {
	fx := newHubFixture(t, alice, bob)

	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	bc := fx.dial(t, "general", fx.token(t, bob.ID, time.Hour))
	fx.waitMembers(t, "general", 2)
	ev := readEvent(t, ac) // bob's join
	require.Equal(t, "user_join", ev["type"])

	fx.db.mu.Lock()
	fx.db.appendErr = errors.New("db down")
	fx.db.mu.Unlock()

	sendMessage(t, ac, "will not survive")

	// alice's connection is closed instead of broadcasting the
	// unpersisted message
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := ac.Read(ctx)
	require.Error(t, err)

	// bob sees alice leave, never the message
	ev = readEvent(t, bc)
	assert.Equal(t, "user_leave", ev["type"])
	assert.Equal(t, "alice", ev["username"])
	assert.Empty(t, fx.db.stored())
}

func TestWithinRoomOrdering(t *testing.T) {
	fx := newHubFixture(t, alice, bob)

	bc := fx.dial(t, "general", fx.token(t, bob.ID, time.Hour))
	fx.waitMembers(t, "general", 1)
	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	fx.waitMembers(t, "general", 2)

	ev := readEvent(t, bc)
	require.Equal(t, "user_join", ev["type"])

	for i := 1; i <= 5; i++ {
		sendMessage(t, ac, fmt.Sprintf("m%d", i))
	}
	for i := 1; i <= 5; i++ {
		ev := readEvent(t, bc)
		assert.Equal(t, "message", ev["type"])
		assert.Equal(t, fmt.Sprintf("m%d", i), ev["message"], "events must arrive in publish order")
	}
}

func TestConcurrentFirstJoins(t *testing.T) {
	fx := newHubFixture(t, alice)
	tok := fx.token(t, alice.ID, time.Hour)

	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "/ws/chat/busy"
	errc := make(chan error, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
				Subprotocols: []string{"authorization", tok},
			})
			if err == nil {
				t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
			}
			errc <- err
		}()
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		require.NoError(t, err)
	}

	fx.waitMembers(t, "busy", 5)
	assert.Equal(t, 1, fx.db.roomCount(), "concurrent first joins create one room record")
}

func TestPresenceTracking(t *testing.T) {
	fx := newHubFixture(t, alice, bob)

	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	fx.dial(t, "general", fx.token(t, bob.ID, time.Hour))
	fx.waitMembers(t, "general", 2)

	online, err := fx.presence.Online(context.Background(), "general")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, online)

	require.NoError(t, ac.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		online, _ := fx.presence.Online(context.Background(), "general")
		return len(online) == 1 && online[0] == "bob"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestJoinDuringLastMemberTeardown(t *testing.T) {
	h := NewHub(app.NewLogger("dev", testWriter{t}), nil, nil, nil)

	a := testConn(4)
	h.join("lobby", a)

	// A join landing while the last member tears down must never be
	// stranded in a membership set that the teardown prunes from the
	// registry. Race the two repeatedly and require the joiner to stay
	// reachable for the publish that follows.
	for i := 0; i < 200; i++ {
		b := testConn(4)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.leave("lobby", a)
		}()
		go func() {
			defer wg.Done()
			h.join("lobby", b)
		}()
		wg.Wait()

		require.NotNil(t, h.lookup("lobby"),
			"iteration %d: joined member unreachable through the registry", i)
		h.Publish("lobby", PresenceEvent{Username: "x", Joined: true})
		require.Len(t, b.out, 1, "iteration %d: publish missed the joiner", i)

		drain(b)
		a = b
	}
}

// drain empties a test conn's outbound buffer.
func drain(c *Conn) {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

func TestShutdownDropsMembers(t *testing.T) {
	fx := newHubFixture(t, alice)

	ac := fx.dial(t, "general", fx.token(t, alice.ID, time.Hour))
	fx.waitMembers(t, "general", 1)

	fx.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := ac.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	assert.Nil(t, fx.hub.lookup("general"))
}
