package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/chatrooms/internal/cache"
	"github.com/johndosdos/chatrooms/internal/model"
)

type fakeVerifier map[string]int64

func (v fakeVerifier) VerifyToken(_ context.Context, token string) (int64, error) {
	id, ok := v[token]
	if !ok {
		return 0, errors.New("bad token")
	}
	return id, nil
}

type fakeStore struct {
	mu       sync.Mutex
	members  map[int64][]int64
	messages []model.Message
	addErr   error
}

func (s *fakeStore) IsParticipant(_ context.Context, chatRoomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.members[chatRoomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) ListParticipantIDs(_ context.Context, chatRoomID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]int64(nil), s.members[chatRoomID]...), nil
}

func (s *fakeStore) AddMessage(_ context.Context, chatRoomID, senderID int64, body string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.addErr != nil {
		return model.Message{}, s.addErr
	}

	msg := model.Message{
		ID:         int64(len(s.messages) + 1),
		ChatRoomID: chatRoomID,
		SenderID:   senderID,
		Body:       body,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *fakeStore) stored() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.Message(nil), s.messages...)
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	store    *fakeStore
	cache    *cache.Memory
	registry *Registry
}

// Users 1 (A) and 2 (B) are members of room 7; user 3 (C) is not.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	return newHarnessWithCache(t, opts, nil)
}

// newHarnessWithCache serves the engine with recent as its cache. A nil
// recent uses h.cache.
func newHarnessWithCache(t *testing.T, opts Options, recent cache.Cache) *harness {
	t.Helper()

	h := &harness{
		t: t,
		store: &fakeStore{members: map[int64][]int64{
			7: {1, 2},
		}},
		cache:    cache.NewMemory(cache.DefaultCapacity),
		registry: NewRegistry(),
	}
	if recent == nil {
		recent = h.cache
	}

	engine := NewEngine(Deps{
		Verifier: fakeVerifier{"a": 1, "b": 2, "c": 3},
		Members:  h.store,
		Messages: h.store,
		Cache:    recent,
		Registry: h.registry,
	}, opts)

	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = engine.Serve(r.Context(), c, r.URL.Query().Get("token"))
	}))
	t.Cleanup(h.srv.Close)

	return h
}

func (h *harness) dial(token string) *websocket.Conn {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "?token=" + token
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { c.CloseNow() }) //nolint:errcheck

	return c
}

// connect dials as token and waits until the server has registered the
// connection.
func (h *harness) connect(token string, userID int64) *websocket.Conn {
	h.t.Helper()

	before := h.registry.Count(userID)
	c := h.dial(token)
	require.Eventually(h.t, func() bool {
		return h.registry.Count(userID) == before+1
	}, 2*time.Second, 10*time.Millisecond)

	return c
}

func send(t *testing.T, c *websocket.Conn, chatRoomID int64, body string) {
	t.Helper()

	p, err := json.Marshal(InboundFrame{ChatRoomID: chatRoomID, Message: body})
	require.NoError(t, err)
	require.NoError(t, c.Write(context.Background(), websocket.MessageText, p))
}

func read[T any](t *testing.T, c *websocket.Conn) T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, p, err := c.Read(ctx)
	require.NoError(t, err)

	var v T
	require.NoError(t, json.Unmarshal(p, &v))
	return v
}

// requireSilent asserts that nothing arrives on c within a short window.
// The read deadline closes c, so call it last.
func requireSilent(t *testing.T, c *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, p, err := c.Read(ctx)
	require.Error(t, err, "unexpected frame: %s", p)
}

func TestEngineDelivery(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	b := h.connect("b", 2)

	send(t, a, 7, "hi")

	ack := read[AckFrame](t, a)
	require.Equal(t, FrameTypeAck, ack.Type)
	require.Equal(t, int64(7), ack.ChatRoomID)
	require.NotZero(t, ack.ID)

	got := read[model.Message](t, b)
	assert.Equal(t, ack.ID, got.ID)
	assert.Equal(t, int64(7), got.ChatRoomID)
	assert.Equal(t, int64(1), got.SenderID)
	assert.Equal(t, "hi", got.Body)

	stored := h.store.stored()
	require.Len(t, stored, 1)
	require.Equal(t, "hi", stored[0].Body)

	cached, err := h.cache.List(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, ack.ID, cached[0].ID)

	// The sender gets its ack, never its own broadcast.
	requireSilent(t, a)
}

func TestEngineFanOutToAllConnections(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	b1 := h.connect("b", 2)
	b2 := h.connect("b", 2)

	send(t, a, 7, "hi")
	read[AckFrame](t, a)

	for _, c := range []*websocket.Conn{b1, b2} {
		got := read[model.Message](t, c)
		require.Equal(t, "hi", got.Body)
	}
}

func TestEngineNonMember(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	b := h.connect("b", 2)
	c := h.connect("c", 3)

	send(t, c, 7, "let me in")

	got := read[ErrorFrame](t, c)
	require.Equal(t, FrameTypeError, got.Type)
	require.Equal(t, CodeAuthorizationDenied, got.Code)
	require.Equal(t, int64(7), got.ChatRoomID)

	require.Empty(t, h.store.stored())
	requireSilent(t, a)
	requireSilent(t, b)
}

func TestEnginePersistenceFailure(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.store.addErr = errors.New("connection refused")

	a := h.connect("a", 1)
	b := h.connect("b", 2)

	send(t, a, 7, "hi")

	got := read[ErrorFrame](t, a)
	require.Equal(t, CodePersistenceFailed, got.Code)
	require.NotContains(t, got.Message, "connection refused")

	cached, err := h.cache.List(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, cached)

	requireSilent(t, b)
}

func TestEngineMalformedPayload(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)

	tests := []struct {
		name    string
		typ     websocket.MessageType
		payload string
	}{
		{"not_json", websocket.MessageText, "hello"},
		{"missing_room", websocket.MessageText, `{"message":"hi"}`},
		{"blank_after_sanitize", websocket.MessageText, `{"chatRoomId":7,"message":"<script></script>  "}`},
		{"binary", websocket.MessageBinary, `{"chatRoomId":7,"message":"hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, a.Write(context.Background(), tt.typ, []byte(tt.payload)))

			got := read[ErrorFrame](t, a)
			require.Equal(t, CodeMalformedPayload, got.Code)
		})
	}

	// The connection survives malformed input.
	send(t, a, 7, "still here")
	ack := read[AckFrame](t, a)
	require.Equal(t, FrameTypeAck, ack.Type)
	require.Len(t, h.store.stored(), 1)
}

func TestEngineSanitizesBody(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	b := h.connect("b", 2)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips_tags", `<b onclick="x()">hi</b>`, "hi"},
		{"keeps_plain_text", `Tom & Jerry's "show": 1 < 2`, `Tom & Jerry's "show": 1 < 2`},
		{"trims", "  spaced out \n", "spaced out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, a, 7, tt.in)
			ack := read[AckFrame](t, a)

			got := read[model.Message](t, b)
			require.Equal(t, tt.want, got.Body)

			stored := h.store.stored()
			require.Equal(t, ack.ID, stored[len(stored)-1].ID)
			require.Equal(t, tt.want, stored[len(stored)-1].Body)

			cached, err := h.cache.List(context.Background(), 7)
			require.NoError(t, err)
			require.Equal(t, tt.want, cached[0].Body)
		})
	}
}

func TestEngineBodyLengthIsPlainText(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)

	// 4000 ampersands escape to 20000 bytes; the limit applies to the text.
	send(t, a, 7, strings.Repeat("&", 4000))
	require.Equal(t, FrameTypeAck, read[AckFrame](t, a).Type)

	send(t, a, 7, strings.Repeat("&", 4001))
	require.Equal(t, CodeMalformedPayload, read[ErrorFrame](t, a).Code)
}

func TestEngineUnauthorized(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	c := h.dial("nope")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := c.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	require.Zero(t, h.registry.Len())
}

func TestEngineUnregistersOnDisconnect(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	h.connect("b", 2)

	require.NoError(t, a.Close(websocket.StatusNormalClosure, ""))

	require.Eventually(t, func() bool {
		return h.registry.Count(1) == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, h.registry.Len())
}

func TestEnginePreservesOrder(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)
	b := h.connect("b", 2)

	bodies := []string{"one", "two", "three", "four", "five"}
	for _, body := range bodies {
		send(t, a, 7, body)
	}

	var lastID int64
	for _, body := range bodies {
		got := read[model.Message](t, b)
		require.Equal(t, body, got.Body)
		require.Greater(t, got.ID, lastID)
		lastID = got.ID
	}
}

func TestEngineRateLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MessageRate = 1
	opts.MessageWindow = time.Hour

	h := newHarness(t, opts)
	a := h.connect("a", 1)

	send(t, a, 7, "first")
	require.Equal(t, FrameTypeAck, read[AckFrame](t, a).Type)

	send(t, a, 7, "second")
	got := read[ErrorFrame](t, a)
	require.Equal(t, CodeRateLimited, got.Code)
	require.Len(t, h.store.stored(), 1)
}

func TestEngineKeepaliveDropsSilentPeer(t *testing.T) {
	opts := DefaultOptions()
	opts.PingInterval = 20 * time.Millisecond
	opts.WriteTimeout = 100 * time.Millisecond

	h := newHarness(t, opts)

	// The client never reads, so pings go unanswered.
	h.connect("a", 1)

	require.Eventually(t, func() bool {
		return h.registry.Count(1) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// stuckCache never answers until its context gives up, like a cache behind
// an unreachable network.
type stuckCache struct{}

func (stuckCache) Push(ctx context.Context, _ int64, _ model.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckCache) List(context.Context, int64) ([]model.Message, error) {
	return nil, nil
}

func (stuckCache) Warm(context.Context, int64, []model.Message) error {
	return nil
}

func TestEngineCacheDoesNotBlockDelivery(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheTimeout = 50 * time.Millisecond

	h := newHarnessWithCache(t, opts, stuckCache{})
	a := h.connect("a", 1)
	b := h.connect("b", 2)

	start := time.Now()
	send(t, a, 7, "hi")

	require.Equal(t, "hi", read[model.Message](t, b).Body)
	require.Equal(t, FrameTypeAck, read[AckFrame](t, a).Type)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, h.store.stored(), 1)
}

func TestEngineFlushesQueueOnServerClose(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	a := h.connect("a", 1)

	peers := h.registry.snapshot(1)
	require.Len(t, peers, 1)

	frames := [][]byte{
		encodeError(ErrRateLimited, 0),
		encodeError(ErrAuthorizationDenied, 7),
	}
	for _, f := range frames {
		require.True(t, peers[0].Enqueue(f))
	}
	require.Equal(t, 1, h.registry.CloseAll(websocket.StatusGoingAway, "server shutting down"))

	require.Equal(t, CodeRateLimited, read[ErrorFrame](t, a).Code)
	require.Equal(t, CodeAuthorizationDenied, read[ErrorFrame](t, a).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := a.Read(ctx)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	require.Eventually(t, func() bool {
		return h.registry.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
