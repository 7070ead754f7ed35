package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

// wsTestServer hands accepted connections to the test so it can script the
// server side of the channel frame by frame.
type wsTestServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	dials atomic.Int32
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := &wsTestServer{conns: make(chan *websocket.Conn, 8)}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.dials.Add(1)
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *wsTestServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for client connection")
		return nil
	}
}

type statusEvent struct {
	state ConnState
	err   error
}

func newTestClient(t *testing.T, url string) (*Client, chan View, chan statusEvent) {
	t.Helper()
	views := make(chan View, 32)
	statuses := make(chan statusEvent, 32)
	c := New(Config{
		URL:            url,
		EventID:        uuid.New(),
		Token:          "test-token",
		ReconnectMin:   10 * time.Millisecond,
		ReconnectMax:   40 * time.Millisecond,
		ReactionBuffer: 5,
		OnChange:       func(v View) { views <- v },
		OnStatus:       func(s ConnState, err error) { statuses <- statusEvent{s, err} },
	}, zap.NewNop())
	t.Cleanup(c.Close)
	return c, views, statuses
}

func waitStatus(t *testing.T, ch chan statusEvent, want ConnState) statusEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.state == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitView(t *testing.T, ch chan View, ok func(View) bool) View {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view condition")
		}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	// Peek at the raw connection rather than ReadJSON: gorilla makes read
	// errors sticky, so an expected timeout would poison later reads.
	raw := conn.UnderlyingConn()
	_ = raw.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	if n, err := raw.Read(buf); err == nil || n > 0 {
		t.Fatalf("expected no outbound frame, got data (n=%d, err=%v)", n, err)
	}
	_ = raw.SetReadDeadline(time.Time{})
}

func TestClientSubmitQuestionFlow(t *testing.T) {
	ts := newWSTestServer(t)
	c, views, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)

	snap := SnapshotData{Event: models.Event{ID: c.cfg.EventID, Title: "Investor Q&A", Format: models.EventFormatVideo}}
	writeFrame(t, conn, FrameSnapshot, snap)
	waitView(t, views, func(v View) bool { return v.Event != nil })
	if len(c.View().Questions) != 0 {
		t.Fatalf("expected empty question list after snapshot")
	}

	const content = "Will this project be profitable?"
	if err := c.SubmitQuestion(content); err != nil {
		t.Fatalf("submit: %v", err)
	}
	f := readFrame(t, conn)
	if f.Event != FrameQuestionSubmit {
		t.Fatalf("expected question.submit, got %q", f.Event)
	}

	// Nothing appears locally until the server echo.
	if len(c.View().Questions) != 0 {
		t.Fatalf("expected no optimistic local append")
	}

	echo := models.Question{ID: uuid.New(), Content: content, Status: models.QuestionPending}
	writeFrame(t, conn, FrameQuestionCreated, echo)
	v := waitView(t, views, func(v View) bool { return len(v.Questions) == 1 })
	if v.Questions[0].ID != echo.ID || v.Questions[0].Content != content {
		t.Fatalf("expected echoed question, got %+v", v.Questions[0])
	}
}

func TestClientValidationNeverSends(t *testing.T) {
	ts := newWSTestServer(t)
	c, _, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)

	if err := c.SubmitQuestion(""); err != ErrEmptyQuestion {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if err := c.SubmitQuestion("   \t  "); err != ErrEmptyQuestion {
		t.Fatalf("expected ErrEmptyQuestion for whitespace, got %v", err)
	}
	if err := c.SubmitQuestion(strings.Repeat("g", models.MaxQuestionLength+1)); err != ErrQuestionTooLong {
		t.Fatalf("expected ErrQuestionTooLong, got %v", err)
	}
	if err := c.SendReaction(models.ReactionType("confetti")); err != ErrUnknownReaction {
		t.Fatalf("expected ErrUnknownReaction, got %v", err)
	}
	expectNoFrame(t, conn)

	// A question of exactly the limit goes through.
	if err := c.SubmitQuestion(strings.Repeat("g", models.MaxQuestionLength)); err != nil {
		t.Fatalf("expected max-length question to send: %v", err)
	}
	if f := readFrame(t, conn); f.Event != FrameQuestionSubmit {
		t.Fatalf("expected question.submit, got %q", f.Event)
	}
}

func TestClientCommandsWhileNotConnected(t *testing.T) {
	ts := newWSTestServer(t)
	statuses := make(chan statusEvent, 32)
	// A wide reconnect window so the mid-reconnect assertions cannot race a
	// successful reconnect.
	c := New(Config{
		URL:          ts.url(),
		EventID:      uuid.New(),
		Token:        "test-token",
		ReconnectMin: 400 * time.Millisecond,
		ReconnectMax: time.Second,
		OnStatus:     func(s ConnState, err error) { statuses <- statusEvent{s, err} },
	}, zap.NewNop())
	t.Cleanup(c.Close)

	// Before Start the client is disconnected.
	if err := c.SubmitQuestion("anyone there?"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected before start, got %v", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)

	// Kill the connection and command during the reconnect window.
	_ = conn.Close()
	waitStatus(t, statuses, StateReconnecting)
	if err := c.UpvoteQuestion(uuid.New()); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected while reconnecting, got %v", err)
	}
	if err := c.SendReaction(models.ReactionFire); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected while reconnecting, got %v", err)
	}

	// The client recovers on its own.
	next := ts.accept(t)
	defer next.Close()
	waitStatus(t, statuses, StateConnected)
	if err := c.SendReaction(models.ReactionFire); err != nil {
		t.Fatalf("expected send after reconnect: %v", err)
	}
}

func TestClientReconnectTakesFreshSnapshot(t *testing.T) {
	ts := newWSTestServer(t)
	c, views, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)
	stale := models.Question{ID: uuid.New(), Content: "old question"}
	writeFrame(t, conn, FrameSnapshot, SnapshotData{
		Event:     models.Event{ID: c.cfg.EventID, Title: "Site Tour"},
		Questions: []models.Question{stale},
	})
	waitView(t, views, func(v View) bool { return len(v.Questions) == 1 })

	// Abrupt disconnect; the server state moved on while we were away.
	_ = conn.Close()
	waitStatus(t, statuses, StateReconnecting)

	conn2 := ts.accept(t)
	defer conn2.Close()
	waitStatus(t, statuses, StateConnected)
	fresh := models.Question{ID: uuid.New(), Content: "new question"}
	writeFrame(t, conn2, FrameSnapshot, SnapshotData{
		Event:     models.Event{ID: c.cfg.EventID, Title: "Site Tour"},
		Questions: []models.Question{fresh},
	})

	v := waitView(t, views, func(v View) bool {
		return len(v.Questions) == 1 && v.Questions[0].ID == fresh.ID
	})
	for _, q := range v.Questions {
		if q.ID == stale.ID {
			t.Fatalf("stale question survived reconnect")
		}
	}
}

func TestClientAuthCloseIsFatal(t *testing.T) {
	ts := newWSTestServer(t)
	c, _, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseUnauthorized, "token rejected"),
		time.Now().Add(time.Second))

	ev := waitStatus(t, statuses, StateDisconnected)
	if ev.err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", ev.err)
	}

	// No retry loop after an auth rejection.
	dials := ts.dials.Load()
	time.Sleep(150 * time.Millisecond)
	if got := ts.dials.Load(); got != dials {
		t.Fatalf("expected no reconnect attempts after auth rejection, got %d new dials", got-dials)
	}
}

func TestClientHandshakeRejectionIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _, statuses := newTestClient(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ev := waitStatus(t, statuses, StateDisconnected)
	if ev.err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", ev.err)
	}
}

func TestClientStartTwice(t *testing.T) {
	ts := newWSTestServer(t)
	c, _, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	defer conn.Close()
	waitStatus(t, statuses, StateConnected)
	if err := c.Start(); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestClientCloseCancelsReconnect(t *testing.T) {
	ts := newWSTestServer(t)
	c, _, statuses := newTestClient(t, ts.url())
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	conn := ts.accept(t)
	waitStatus(t, statuses, StateConnected)

	_ = conn.Close()
	waitStatus(t, statuses, StateReconnecting)
	c.Close()
	if got := c.ConnState(); got != StateDisconnected {
		t.Fatalf("expected disconnected after close, got %s", got)
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	f, err := NewFrame(event, payload)
	if err != nil {
		t.Fatalf("NewFrame(%s): %v", event, err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}
