package live

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adamdasovich/goldventure-live/internal/models"
)

// ConnState is the connection lifecycle state of a Client.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

const (
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 15 * time.Second

	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 64 << 10
	sendBuffer = 16
)

var (
	// ErrNotConnected is returned by commands while the connection is not in
	// the connected state. Commands never panic and never queue for later.
	ErrNotConnected = errors.New("live: not connected")
	// ErrEmptyQuestion is returned when question content is empty after trimming.
	ErrEmptyQuestion = errors.New("live: question content is empty")
	// ErrQuestionTooLong is returned when question content exceeds the limit.
	ErrQuestionTooLong = errors.New("live: question content too long")
	// ErrUnknownReaction is returned for a reaction type outside the fixed set.
	ErrUnknownReaction = errors.New("live: unknown reaction type")
	// ErrUnauthorized means the server rejected the token. Fatal: the client
	// stops and does not retry.
	ErrUnauthorized = errors.New("live: token rejected")
	// ErrAlreadyStarted is returned by Start on a client that already ran.
	ErrAlreadyStarted = errors.New("live: client already started")
)

// Config configures a Client for one event session.
type Config struct {
	// URL is the channel endpoint, e.g. "ws://localhost:8080/ws". Event id
	// and token are appended as query parameters.
	URL     string
	EventID uuid.UUID
	Token   string

	// ReconnectMin/ReconnectMax bound the exponential backoff between
	// reconnect attempts. Zero values pick the defaults (500ms / 15s).
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// ReactionBuffer caps the recent-reactions history (default 20).
	ReactionBuffer int

	// OnChange, when set, is called from the client's run loop with a copy of
	// the collections after every frame that changed state.
	OnChange func(View)
	// OnStatus, when set, is called on every connection state transition. The
	// error is nil except for reconnecting (transient cause) and fatal stops.
	OnStatus func(ConnState, error)

	// Dialer overrides the default websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Client owns one live-event connection. Each mounted view constructs its own
// Client and closes it on teardown; there is no process-wide state.
type Client struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	state   ConnState
	lastErr error
	st      *eventState
	send    chan Frame // nil unless connected

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a client in the disconnected state. Call Start to connect.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		st:     newEventState(cfg.ReactionBuffer, logger),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start opens the connection and keeps it alive until Close. It returns
// immediately; connection progress is reported through OnStatus.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()
	c.setStatus(StateConnecting, nil)
	go c.run()
	return nil
}

// Close tears the connection down and cancels any pending reconnect. It is
// safe to call more than once and blocks until the run loop has exited.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.done
	}
}

// ConnState returns the current connection state.
func (c *Client) ConnState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the most recent connection error, nil while healthy.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// View returns a copy of the current collections.
func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.view()
}

// SubmitQuestion sends a question.submit frame. The question is not added
// locally; the list grows when the server echoes question.created.
func (c *Client) SubmitQuestion(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyQuestion
	}
	if utf8.RuneCountInString(content) > models.MaxQuestionLength {
		return ErrQuestionTooLong
	}
	f, err := NewFrame(FrameQuestionSubmit, QuestionSubmitData{Content: content})
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

// UpvoteQuestion sends a question.upvote frame. The count changes only when
// the server broadcasts the new total.
func (c *Client) UpvoteQuestion(questionID uuid.UUID) error {
	f, err := NewFrame(FrameQuestionUpvote, QuestionUpvoteData{QuestionID: questionID})
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

// SendReaction sends a fire-and-forget reaction.send frame.
func (c *Client) SendReaction(kind models.ReactionType) error {
	if !kind.Valid() {
		return ErrUnknownReaction
	}
	f, err := NewFrame(FrameReactionSend, ReactionSendData{Type: kind})
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

func (c *Client) enqueue(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- f:
		return nil
	default:
		// Buffer full; drop like the hub does rather than block the caller.
		c.logger.Debug("outbound buffer full, dropping frame", zap.String("event", f.Event))
		return nil
	}
}

func (c *Client) run() {
	defer close(c.done)
	delay := c.cfg.ReconnectMin
	for {
		conn, err := c.dial()
		if err != nil {
			if c.ctx.Err() != nil {
				c.setStatus(StateDisconnected, nil)
				return
			}
			if isHandshakeRejection(err) {
				c.setStatus(StateDisconnected, ErrUnauthorized)
				return
			}
			c.setStatus(StateReconnecting, err)
			if !c.sleep(delay) {
				c.setStatus(StateDisconnected, nil)
				return
			}
			delay = nextDelay(delay, c.cfg.ReconnectMax)
			continue
		}

		delay = c.cfg.ReconnectMin
		send := make(chan Frame, sendBuffer)
		c.mu.Lock()
		c.send = send
		c.mu.Unlock()
		c.setStatus(StateConnected, nil)

		stop := make(chan struct{})
		go c.writePump(conn, send, stop)
		err = c.readLoop(conn)
		close(stop)
		_ = conn.Close()

		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()

		if c.ctx.Err() != nil {
			c.setStatus(StateDisconnected, nil)
			return
		}
		if websocket.IsCloseError(err, CloseUnauthorized) {
			c.setStatus(StateDisconnected, ErrUnauthorized)
			return
		}
		// Clean server close and abrupt network failure take the same path.
		c.setStatus(StateReconnecting, err)
		if !c.sleep(delay) {
			c.setStatus(StateDisconnected, nil)
			return
		}
		delay = nextDelay(delay, c.cfg.ReconnectMax)
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("event_id", c.cfg.EventID.String())
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	dialCtx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, errHandshakeRejected
		}
		return nil, err
	}
	return conn, nil
}

var errHandshakeRejected = errors.New("live: handshake rejected")

func isHandshakeRejection(err error) bool {
	return errors.Is(err, errHandshakeRejected)
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("dropping undecodable message", zap.Error(err))
			continue
		}

		c.mu.Lock()
		changed := c.st.apply(f)
		var v View
		if changed {
			v = c.st.view()
		}
		c.mu.Unlock()

		if changed && c.cfg.OnChange != nil {
			c.cfg.OnChange(v)
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan Frame, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case f := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) setStatus(state ConnState, err error) {
	c.mu.Lock()
	if c.state == state && c.lastErr == err {
		c.mu.Unlock()
		return
	}
	c.state = state
	switch state {
	case StateConnected:
		c.lastErr = nil
	default:
		if err != nil {
			c.lastErr = err
		}
	}
	cb := c.cfg.OnStatus
	c.mu.Unlock()
	if cb != nil {
		cb(state, err)
	}
	c.logger.Debug("connection state", zap.String("state", string(state)), zap.Error(err))
}

// sleep waits for a jittered delay, returning false if the client was closed.
func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(jitter(d))
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// jitter spreads d over [d/2, 3d/2) so reconnect storms decorrelate.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func nextDelay(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	return d
}
