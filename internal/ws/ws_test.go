package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tbourn/blind-relay/internal/store"
)

const testGrace = 75 * time.Millisecond

func newTestServer(t *testing.T, guard *rate.Limiter) (*httptest.Server, *Rooms, *Chat, *store.Mailbox) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mbox := store.NewMailbox(time.Hour)
	rooms := NewRooms(testGrace, nil)
	chat := NewChat(mbox)
	mbox.SetNotifier(chat)

	r := gin.New()
	r.GET("/ws", Handler(rooms, chat, guard))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rooms, chat, mbox
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame returns the next frame within a short deadline.
func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return mt, data
}

func readJSONFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data := readFrame(t, conn)
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("frame %q is not JSON: %v", data, err)
	}
	return m
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected closed connection, got a frame")
	}
}

func TestRoom_PresenceRelayAndBurn(t *testing.T) {
	srv, rooms, _, _ := newTestServer(t, nil)

	a := dial(t, srv, "?roomId=r1")
	if f := readJSONFrame(t, a); f["type"] != "presence" || f["count"] != float64(1) {
		t.Fatalf("unexpected first presence: %v", f)
	}

	b := dial(t, srv, "?roomId=r1")
	for _, conn := range []*websocket.Conn{a, b} {
		if f := readJSONFrame(t, conn); f["type"] != "presence" || f["count"] != float64(2) {
			t.Fatalf("unexpected presence after second join: %v", f)
		}
	}

	// Text relay: everyone but the sender.
	if err := a.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if mt, data := readFrame(t, b); mt != websocket.TextMessage || string(data) != "hello" {
		t.Fatalf("relay mismatch: %d %q", mt, data)
	}

	// Binary relay is verbatim.
	if err := a.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x01, 0x02}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if mt, data := readFrame(t, b); mt != websocket.BinaryMessage || string(data) != "\x00\x01\x02" {
		t.Fatalf("binary relay mismatch: %d %v", mt, data)
	}

	// A control frame naming a different room is opaque text, not a burn.
	other := `{"type":"control","action":"burnRoom","roomId":"other"}`
	a.WriteMessage(websocket.TextMessage, []byte(other))
	if _, data := readFrame(t, b); string(data) != other {
		t.Fatalf("foreign control frame not relayed: %q", data)
	}
	if rooms.Burned("r1") {
		t.Fatalf("room burned by foreign control frame")
	}

	// The real burn: everyone, sender included, gets roomDestroyed and is
	// closed.
	a.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","action":"burnRoom","roomId":"r1"}`))
	for _, conn := range []*websocket.Conn{a, b} {
		if f := readJSONFrame(t, conn); f["type"] != "roomDestroyed" || f["roomId"] != "r1" {
			t.Fatalf("unexpected burn frame: %v", f)
		}
		expectClosed(t, conn)
	}
	if !rooms.Burned("r1") || rooms.Live("r1") {
		t.Fatalf("burn did not seal and remove the room")
	}

	// Rejoins are refused for the rest of the process lifetime.
	c := dial(t, srv, "?roomId=r1")
	if f := readJSONFrame(t, c); f["type"] != "roomDestroyed" {
		t.Fatalf("burned rejoin not refused: %v", f)
	}
	expectClosed(t, c)
}

func TestRoom_MalformedTextIsRelayed(t *testing.T) {
	srv, _, _, _ := newTestServer(t, nil)

	a := dial(t, srv, "?roomId=r2")
	readJSONFrame(t, a) // presence 1
	b := dial(t, srv, "?roomId=r2")
	readJSONFrame(t, a) // presence 2
	readJSONFrame(t, b)

	a.WriteMessage(websocket.TextMessage, []byte(`{"broken json`))
	if _, data := readFrame(t, b); string(data) != `{"broken json` {
		t.Fatalf("malformed text not relayed verbatim: %q", data)
	}
}

func TestRoom_LeaveBroadcastsPresence(t *testing.T) {
	srv, _, _, _ := newTestServer(t, nil)

	a := dial(t, srv, "?roomId=r3")
	readJSONFrame(t, a)
	b := dial(t, srv, "?roomId=r3")
	readJSONFrame(t, a)
	readJSONFrame(t, b)

	b.Close()
	if f := readJSONFrame(t, a); f["type"] != "presence" || f["count"] != float64(1) {
		t.Fatalf("unexpected presence after leave: %v", f)
	}
}

func TestRoom_GraceDestructionAndCancel(t *testing.T) {
	srv, rooms, _, _ := newTestServer(t, nil)

	a := dial(t, srv, "?roomId=r4")
	readJSONFrame(t, a)
	a.Close()

	// Still addressable inside the grace period; a rejoin cancels the timer.
	time.Sleep(testGrace / 3)
	if !rooms.Live("r4") {
		t.Fatalf("room destroyed before grace elapsed")
	}
	b := dial(t, srv, "?roomId=r4")
	readJSONFrame(t, b)
	time.Sleep(testGrace * 2)
	if !rooms.Live("r4") {
		t.Fatalf("join did not cancel destruction")
	}

	// Empty again: destroyed after the grace period.
	b.Close()
	deadline := time.Now().Add(2 * time.Second)
	for rooms.Live("r4") {
		if time.Now().After(deadline) {
			t.Fatalf("room not destroyed after grace period")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rooms.Burned("r4") {
		t.Fatalf("grace destruction must not burn the id")
	}

	// A destroyed-but-not-burned id is joinable again.
	c := dial(t, srv, "?roomId=r4")
	if f := readJSONFrame(t, c); f["type"] != "presence" || f["count"] != float64(1) {
		t.Fatalf("rejoin after destruction failed: %v", f)
	}
}

func TestChat_ConnectedPushAndAck(t *testing.T) {
	srv, _, _, mbox := newTestServer(t, nil)

	conn := dial(t, srv, "?chatFingerprint=fpB")
	if f := readJSONFrame(t, conn); f["type"] != "connected" || f["fingerprint"] != "fpB" {
		t.Fatalf("unexpected hello frame: %v", f)
	}

	// Enqueue triggers a live push; the mailbox still holds the message.
	if dup := mbox.Enqueue("fpB", "fpA", "E1", "m1"); dup {
		t.Fatalf("enqueue flagged duplicate")
	}
	f := readJSONFrame(t, conn)
	if f["type"] != "newMessage" {
		t.Fatalf("expected newMessage, got %v", f)
	}
	msg, _ := f["message"].(map[string]any)
	if msg["id"] != "m1" || msg["from"] != "fpA" || msg["payload"] != "E1" {
		t.Fatalf("push payload wrong: %v", msg)
	}
	if mbox.Pending("fpB") != 1 {
		t.Fatalf("live push dequeued the message")
	}

	// Socket-level ack drops it.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack","messageIds":["m1"]}`))
	deadline := time.Now().Add(2 * time.Second)
	for mbox.Pending("fpB") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ack never drained the mailbox")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChat_LastWriterWinsAndStaleClose(t *testing.T) {
	srv, _, chat, mbox := newTestServer(t, nil)

	first := dial(t, srv, "?chatFingerprint=fpX")
	readJSONFrame(t, first)

	second := dial(t, srv, "?chatFingerprint=fpX")
	readJSONFrame(t, second)

	// The replaced socket is closed...
	expectClosed(t, first)
	// ...and its close must not evict the replacement.
	first.Close()
	time.Sleep(50 * time.Millisecond)
	if !chat.Connected("fpX") {
		t.Fatalf("stale close evicted the live socket")
	}

	// Pushes go to the survivor.
	mbox.Enqueue("fpX", "fpA", "E1", "m1")
	if f := readJSONFrame(t, second); f["type"] != "newMessage" {
		t.Fatalf("replacement socket missed the push: %v", f)
	}
}

func TestHandshake_Classification(t *testing.T) {
	srv, _, _, _ := newTestServer(t, nil)

	// Neither parameter: upgraded then closed immediately.
	neither := dial(t, srv, "")
	expectClosed(t, neither)

	// Both parameters: the chat fingerprint wins.
	both := dial(t, srv, "?roomId=r9&chatFingerprint=fpZ")
	if f := readJSONFrame(t, both); f["type"] != "connected" || f["fingerprint"] != "fpZ" {
		t.Fatalf("chatFingerprint should take precedence: %v", f)
	}
}

func TestHandshake_GuardRejectsExcessChurn(t *testing.T) {
	srv, _, _, _ := newTestServer(t, rate.NewLimiter(rate.Limit(0), 1))

	// The single burst token admits one handshake.
	ok := dial(t, srv, "?chatFingerprint=fpA")
	readJSONFrame(t, ok)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?chatFingerprint=fpB"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("second handshake should have been rejected")
	}
}
