package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"session-service/internal/models"
	"session-service/internal/observability"
	"session-service/internal/store"
)

// ConnState is the transport connection state.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrAlreadyConnected is returned when Connect is called on a running
// client. Exactly one realtime connection exists per signed-in user.
var ErrAlreadyConnected = errors.New("sync client already connected")

// Client maintains the realtime connection for one authenticated user and
// translates server pushes into Session Store and message cache
// mutations. Events are read and applied by a single goroutine, so they
// land in receipt order. Reconnects use exponential backoff; handlers
// are implicitly re-attached because the read loop survives reconnects.
type Client struct {
	url      string
	token    string
	userID   string
	store    *store.Store
	messages *MessageCache
	queries  *QueryCache
	log      *zap.SugaredLogger

	state   atomic.Int32
	mu      sync.Mutex
	cancel  context.CancelFunc
	conn    *websocket.Conn
	done    chan struct{}
	running bool
}

// NewClient builds a sync client for the user. queries may be nil.
func NewClient(url, token, userID string, st *store.Store, messages *MessageCache, queries *QueryCache, log *zap.SugaredLogger) *Client {
	return &Client{
		url:      url,
		token:    token,
		userID:   userID,
		store:    st,
		messages: messages,
		queries:  queries,
		log:      log,
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// Connect starts the connect/read loop. It returns once the loop is
// running; dialing and reconnecting happen in the background until Close
// or ctx cancellation.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Close tears the connection down and waits for the loop to exit. The
// client may be connected again afterwards. Cancellation and the conn
// close happen under the same mutex the run loop publishes the conn
// under, so a dial that completes mid-Close cannot strand a live
// connection in the read loop.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	done := c.done
	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	<-done

	c.mu.Lock()
	c.running = false
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.state.Store(int32(Disconnected))

	for {
		c.state.Store(int32(Connecting))
		conn, err := c.dial(ctx)
		if err != nil {
			// Only context cancellation stops the retry loop.
			return
		}

		// Close cancels and closes the published conn under this mutex.
		// A dial that finished after cancellation was never visible to
		// Close, so it must be shut down here.
		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.state.Store(int32(Connected))
		c.log.Infow("realtime channel connected", "userId", c.userID)

		c.readLoop(conn)
		c.state.Store(int32(Disconnected))
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			observability.IncSyncReconnect()
			c.log.Infow("realtime channel lost, reconnecting", "userId", c.userID)
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, c.url, header)
		return err
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop applies pushes one at a time until the connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnw("realtime read error", "error", err)
			}
			return
		}

		var ev models.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.log.Warnw("malformed realtime payload dropped", "error", err)
			continue
		}
		c.handle(ev)
	}
}

// handle never fails: it runs inside the push loop with no caller able to
// react, so malformed payloads are dropped with a warning.
func (c *Client) handle(ev models.Event) {
	switch ev.Event {
	case models.EventSessionUpdate:
		var sessions []models.Session
		if err := json.Unmarshal(ev.Data, &sessions); err != nil {
			c.log.Warnw("malformed session:update dropped", "error", err)
			return
		}
		c.store.Set(sessions)
		if c.queries != nil {
			c.queries.Set("sessions:"+c.userID, sessions)
		}

	case models.EventSessionStarted:
		var p models.SessionStartedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Warnw("malformed session:started dropped", "error", err)
			return
		}
		started := models.LiveStarted
		c.store.Apply(p.SessionID, store.Patch{
			LiveStatus:      &started,
			ActualStartTime: &p.ActualStartTime,
		})

	case models.EventSessionCompleted:
		var p models.SessionCompletedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Warnw("malformed session:completed dropped", "error", err)
			return
		}
		completed := models.LiveCompleted
		status := models.StatusCompleted
		c.store.Apply(p.SessionID, store.Patch{
			LiveStatus:    &completed,
			Status:        &status,
			ActualEndTime: &p.ActualEndTime,
		})

	case models.EventChatNewMessage:
		var msgs []models.Message
		if err := json.Unmarshal(ev.Data, &msgs); err != nil {
			c.log.Warnw("malformed chat:newMessage dropped", "error", err)
			return
		}
		c.applyMessages(msgs)

	case models.EventLiveStatusUpdate:
		var p models.LiveStatusPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			c.log.Warnw("malformed liveStatusUpdate dropped", "error", err)
			return
		}
		c.store.Apply(p.SessionID, store.Patch{LiveStatus: &p.LiveStatus})

	default:
		// Forward-compatible: documented-but-unwired events are no-ops.
		c.log.Debugw("ignoring realtime event", "event", ev.Event)
	}
}

func (c *Client) applyMessages(msgs []models.Message) {
	// A push normally carries messages for a single session; grouping
	// keeps a mixed batch from landing in the wrong cache.
	bySession := make(map[string][]models.Message)
	order := make([]string, 0, 1)
	for _, m := range msgs {
		if m.SessionID == "" {
			c.log.Warnw("dropping message without session id", "messageId", m.ID)
			continue
		}
		if _, ok := bySession[m.SessionID]; !ok {
			order = append(order, m.SessionID)
		}
		bySession[m.SessionID] = append(bySession[m.SessionID], m)
	}

	for _, sessionID := range order {
		snapshot := c.messages.Append(sessionID, bySession[sessionID]...)
		if c.queries != nil {
			c.queries.Set("messages:"+sessionID, snapshot)
		}
	}
}
