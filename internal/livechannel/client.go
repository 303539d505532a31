// Package livechannel is the client side of the real-time auction event
// stream: one websocket, per-auction rooms, best-effort sends and typed
// inbound events.
package livechannel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/gorilla/websocket"
)

// Config configures live channel behavior.
type Config struct {
	// HandshakeTimeout bounds connection establishment.
	HandshakeTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReconnectDelay is initial delay before reconnect attempt. Zero
	// disables automatic reconnection.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

// DefaultConfig returns default live channel configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      25 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		EventBuffer:       256,
	}
}

// session is one established websocket connection.
type session struct {
	conn     *websocket.Conn
	done     chan struct{}
	stopOnce sync.Once
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Client manages a single logical connection to the event stream.
type Client struct {
	endpoint string
	config   Config
	dialer   websocket.Dialer

	// connectMu serializes Connect calls
	connectMu sync.Mutex

	mu            sync.Mutex
	sess          *session
	state         models.ConnectionStatus
	userID        string
	rooms         map[string]struct{}
	wantConnected bool
	reconnecting  bool
	closed        bool

	// writeMu enforces a single concurrent writer per connection
	writeMu sync.Mutex

	events       chan Event
	emitMu       sync.RWMutex
	eventsClosed bool
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewClient creates a client for the websocket endpoint. It does not connect.
func NewClient(endpoint string, config *Config) *Client {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}

	return &Client{
		endpoint: endpoint,
		config:   cfg,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:    models.ConnectionDisconnected,
		rooms:    make(map[string]struct{}),
		events:   make(chan Event, cfg.EventBuffer),
		done:     make(chan struct{}),
	}
}

// Events returns the inbound event stream. It is closed by Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Client) State() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the session for userID and rejoins any tracked
// rooms. Connecting while already connected as the same user is a no-op.
func (c *Client) Connect(ctx context.Context, userID string) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return biddingerrors.ErrClientClosed
	}
	if c.state == models.ConnectionConnected && c.userID == userID {
		c.mu.Unlock()
		return nil
	}
	old := c.sess
	c.sess = nil
	c.userID = userID
	c.wantConnected = true
	c.mu.Unlock()

	if old != nil {
		old.stop()
	}

	c.setState(models.ConnectionConnecting, nil)

	target, err := c.dialURL(userID)
	if err != nil {
		c.setState(models.ConnectionDisconnected, err)
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		err = &biddingerrors.NetworkError{Op: "websocket dial", Err: err}
		c.setState(models.ConnectionDisconnected, err)
		return fmt.Errorf("live channel connect: %w", err)
	}

	sess := &session{conn: conn, done: make(chan struct{})}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sess.stop()
		return biddingerrors.ErrClientClosed
	}
	if !c.wantConnected {
		c.mu.Unlock()
		sess.stop()
		return fmt.Errorf("live channel connect aborted: %w", biddingerrors.ErrNotConnected)
	}
	c.sess = sess
	c.reconnecting = false
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	// added under mu so Close never waits on a zero counter we are about to raise
	c.wg.Add(2)
	c.mu.Unlock()

	go c.readLoop(sess)
	go c.pingLoop(sess)

	for _, id := range rooms {
		if err := c.send(sess, TypeJoinAuction, RoomPayload{AuctionID: id}); err != nil {
			utils.Warn("rejoin room failed", map[string]any{"component": "livechannel", "auction_id": id, "error": err.Error()})
		}
	}

	c.setState(models.ConnectionConnected, nil)
	utils.Info("live channel connected", map[string]any{"component": "livechannel", "user_id": userID, "rooms": len(rooms)})
	return nil
}

func (c *Client) dialURL(userID string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Disconnect tears down the channel and stops reconnection. It is idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.wantConnected = false
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		c.writeMu.Lock()
		_ = sess.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		_ = sess.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		sess.stop()
	}

	// the caller asked for this, so a full buffer must not hold it up
	if ev, ok := c.transition(models.ConnectionDisconnected, nil); ok {
		c.tryEmit(ev)
	}
	return nil
}

// Close disconnects, waits for background goroutines and closes Events.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	_ = c.Disconnect()
	c.wg.Wait()

	c.emitMu.Lock()
	c.eventsClosed = true
	close(c.events)
	c.emitMu.Unlock()
	return nil
}

// JoinAuction subscribes to the auction's room. The membership is kept
// and replayed after every reconnect.
func (c *Client) JoinAuction(auctionID string) {
	c.mu.Lock()
	c.rooms[auctionID] = struct{}{}
	sess := c.sess
	c.mu.Unlock()

	if sess != nil {
		if err := c.send(sess, TypeJoinAuction, RoomPayload{AuctionID: auctionID}); err != nil {
			utils.Warn("join room failed", map[string]any{"component": "livechannel", "auction_id": auctionID, "error": err.Error()})
		}
	}
}

// LeaveAuction unsubscribes from the auction's room.
func (c *Client) LeaveAuction(auctionID string) {
	c.mu.Lock()
	_, member := c.rooms[auctionID]
	delete(c.rooms, auctionID)
	sess := c.sess
	c.mu.Unlock()

	if member && sess != nil {
		if err := c.send(sess, TypeLeaveAuction, RoomPayload{AuctionID: auctionID}); err != nil {
			utils.Warn("leave room failed", map[string]any{"component": "livechannel", "auction_id": auctionID, "error": err.Error()})
		}
	}
}

// Rooms returns the tracked room memberships.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// PlaceBid sends a bid over the channel. It returns true when the frame
// was written, which says nothing about whether the service accepted the
// bid; false means the channel is not connected.
func (c *Client) PlaceBid(auctionID string, amount float64, userID, userName string) bool {
	c.mu.Lock()
	sess := c.sess
	connected := c.state == models.ConnectionConnected
	c.mu.Unlock()

	if sess == nil || !connected {
		return false
	}

	err := c.send(sess, TypePlaceBid, PlaceBidPayload{
		AuctionID: auctionID,
		Amount:    amount,
		UserID:    userID,
		UserName:  userName,
	})
	if err != nil {
		utils.Warn("place_bid send failed", map[string]any{"component": "livechannel", "auction_id": auctionID, "error": err.Error()})
		return false
	}
	return true
}

func (c *Client) send(sess *session, eventType string, payload any) error {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = sess.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := sess.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}
	return nil
}

func (c *Client) setState(status models.ConnectionStatus, cause error) {
	if ev, ok := c.transition(status, cause); ok {
		c.emit(ev)
	}
}

// transition records the new state and reports whether it changed.
func (c *Client) transition(status models.ConnectionStatus, cause error) (StateChanged, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == status {
		return StateChanged{}, false
	}
	c.state = status
	return StateChanged{Status: status, Err: cause}, true
}

// tryEmit delivers ev only if the buffer has room.
func (c *Client) tryEmit(ev StateChanged) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.eventsClosed {
		return
	}

	select {
	case c.events <- ev:
	default:
		utils.Debug("events buffer full, dropping state change", map[string]any{"component": "livechannel", "status": ev.Status})
	}
}

// emit blocks until the consumer takes ev, so no event is dropped; the
// buffer absorbs bursts.
func (c *Client) emit(ev Event) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	if c.eventsClosed {
		return
	}

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// readLoop reads frames from one session and dispatches them.
func (c *Client) readLoop(sess *session) {
	defer c.wg.Done()

	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, frame, err := sess.conn.ReadMessage()
		if err != nil {
			c.handleDrop(sess, err)
			return
		}

		ev, err := Decode(frame)
		if err != nil {
			utils.Warn("malformed live frame", map[string]any{"component": "livechannel", "error": err.Error()})
			continue
		}
		if ev == nil {
			utils.Debug("ignoring unknown live frame", map[string]any{"component": "livechannel"})
			continue
		}
		c.emit(ev)
	}
}

// handleDrop tears down a session that failed on its own and schedules
// a reconnect when one is wanted.
func (c *Client) handleDrop(sess *session, cause error) {
	c.mu.Lock()
	current := c.sess == sess
	if current {
		c.sess = nil
	}
	reconnect := current && c.wantConnected && !c.closed && c.config.ReconnectDelay > 0 && !c.reconnecting
	if reconnect {
		c.reconnecting = true
		c.wg.Add(1)
	}
	c.mu.Unlock()

	sess.stop()
	if !current {
		return
	}

	var closeErr *websocket.CloseError
	if !errors.As(cause, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		cause = &biddingerrors.NetworkError{Op: "websocket read", Err: cause}
	}
	utils.Warn("live channel dropped", map[string]any{"component": "livechannel", "error": cause.Error()})
	c.setState(models.ConnectionDisconnected, cause)

	if reconnect {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries Connect with exponential backoff until it
// succeeds, Disconnect is called, or the client is closed.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	succeeded := false
	defer func() {
		// Connect clears the flag itself when it installs a session
		if !succeeded {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
		}
	}()

	delay := c.config.ReconnectDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		want, userID := c.wantConnected, c.userID
		c.mu.Unlock()
		if !want {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout+time.Second)
		err := c.Connect(ctx, userID)
		cancel()
		if err == nil {
			succeeded = true
			return
		}
		if errors.Is(err, biddingerrors.ErrClientClosed) || errors.Is(err, biddingerrors.ErrNotConnected) {
			return
		}

		utils.Warn("live channel reconnect failed", map[string]any{"component": "livechannel", "attempt": attempt, "error": err.Error()})
		delay *= 2
		if c.config.MaxReconnectDelay > 0 && delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// pingLoop sends periodic ping frames to keep one session alive.
func (c *Client) pingLoop(sess *session) {
	defer c.wg.Done()

	if c.config.PingInterval <= 0 {
		<-sess.done
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = sess.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := sess.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// reader will notice the dead connection
				utils.Debug("ping failed", map[string]any{"component": "livechannel", "error": err.Error()})
			}
		}
	}
}
