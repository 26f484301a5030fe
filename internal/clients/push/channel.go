// Package push maintains the websocket push channel that streams traffic
// observations from the backend. The channel reconnects itself; consumers
// only ever see a message stream and a connection-state signal.
package push

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope types the backend sends on the push channel.
const (
	TypeTrafficUpdate    = "traffic_update"
	TypeCollectiveUpdate = "collective_update"
	TypeActiveUsers      = "active_users"
	TypeSignalUpdate     = "signal_update"
)

// Envelope is the push message wrapper. Data stays raw until the consumer
// knows the type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// State is the channel's connection state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// DefaultReconnectDelay is the fixed backoff between a disconnect and the
// single reconnect attempt that follows it.
const DefaultReconnectDelay = 5 * time.Second

// Channel is a reconnecting websocket subscription. Create with NewChannel,
// start with Run; the channel closes its streams when the context ends.
type Channel struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	messages chan Envelope
	states   chan State
	logger   *zap.Logger
}

// NewChannel creates a push channel for the given websocket URL, e.g.
// "ws://localhost:8000/ws/traffic".
func NewChannel(url string, reconnectDelay time.Duration, logger *zap.Logger) *Channel {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:            url,
		reconnectDelay: reconnectDelay,
		dialer:         websocket.DefaultDialer,
		messages:       make(chan Envelope, 64),
		states:         make(chan State, 8),
		logger:         logger.Named("push"),
	}
}

// Messages returns the stream of decoded push envelopes.
func (c *Channel) Messages() <-chan Envelope {
	return c.messages
}

// States returns the connection-state signal. Slow consumers miss
// intermediate states rather than blocking the channel.
func (c *Channel) States() <-chan State {
	return c.states
}

// Run connects and keeps the subscription alive until ctx is canceled. Each
// disconnect is followed by exactly one reconnect attempt after the fixed
// backoff; a failed attempt counts as the next disconnect. Run closes both
// streams on return.
func (c *Channel) Run(ctx context.Context) {
	defer close(c.messages)
	defer close(c.states)

	for {
		c.setState(StateConnecting)

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("push channel dial failed", zap.Error(err))
			c.setState(StateDisconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.setState(StateConnected)
		c.logger.Info("push channel connected", zap.String("url", c.url))

		c.readLoop(ctx, conn)
		conn.Close()

		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		c.logger.Info("push channel disconnected, reconnecting",
			zap.Duration("delay", c.reconnectDelay))
		if !c.sleep(ctx) {
			return
		}
	}
}

// readLoop drains messages until read error or cancellation.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock the read when the context ends
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push channel read failed", zap.Error(err))
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			c.logger.Warn("dropping malformed push message", zap.Error(err))
			continue
		}

		select {
		case c.messages <- envelope:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) setState(s State) {
	select {
	case c.states <- s:
	default:
	}
}

// sleep waits the reconnect delay; false means the context ended.
func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-time.After(c.reconnectDelay):
		return true
	case <-ctx.Done():
		return false
	}
}
