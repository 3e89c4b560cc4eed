package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/verte-zerg/landolt/internal/endpoint"
)

const (
	voicePath            = "/ws_voice"
	defaultDialTimeout   = 10 * time.Second
	writeTimeout         = 5 * time.Second
	stopTimeout          = time.Second
	sendQueueSize        = 32
	statusAbnormalClosed = 1006
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("voice: channel closed")

// CloseInfo describes why a channel ended.
type CloseInfo struct {
	Code   int
	Reason string
	Err    error
}

// Normal reports a clean 1000 close.
func (c CloseInfo) Normal() bool {
	return c.Code == int(websocket.StatusNormalClosure)
}

// Handler receives inbound traffic. HandleClose is called exactly once.
type Handler interface {
	HandleMessage(Inbound)
	HandleClose(CloseInfo)
}

// Dialer opens voice channels against one server.
type Dialer struct {
	ServerURL   string
	Token       string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Dial connects and starts the read and write loops. Messages and the final
// close are delivered to h from the read goroutine.
func (d *Dialer) Dial(ctx context.Context, h Handler) (*Conn, error) {
	if h == nil {
		return nil, errors.New("voice: handler is required")
	}
	if d.Token == "" {
		return nil, errors.New("voice: token is required")
	}
	u, err := endpoint.WebSocket(d.ServerURL, voicePath, url.Values{"token": {d.Token}})
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("voice: dial: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return newConn(ws, h, logger), nil
}

// Conn is one live voice channel.
type Conn struct {
	ws      *websocket.Conn
	handler Handler
	logger  *slog.Logger

	out    chan Outbound
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closing      atomic.Bool
	closeOnce    sync.Once
	teardownOnce sync.Once
}

func newConn(ws *websocket.Conn, h Handler, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:      ws,
		handler: h,
		logger:  logger,
		out:     make(chan Outbound, sendQueueSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Send queues msg for delivery without blocking.
func (c *Conn) Send(msg Outbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return fmt.Errorf("voice: send queue full, dropped %s", msg.Command)
	}
}

// Close sends STOP_LISTENING and closes with a normal status.
// Closing an already closed channel is a no-op.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		select {
		case <-c.done:
		default:
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			if err := wsjson.Write(ctx, c.ws, StopListening()); err != nil {
				c.logger.Debug("voice stop message not delivered", "err", err)
			}
			cancel()
			if err := c.ws.Close(websocket.StatusNormalClosure, "client closing"); err != nil {
				c.logger.Debug("voice close handshake incomplete", "err", err)
			}
		}
		c.teardown()
	})
	return nil
}

func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		close(c.done)
		c.cancel()
		_ = c.ws.CloseNow()
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.ws, msg)
			cancel()
			if err != nil {
				c.logger.Warn("voice write failed", "command", msg.Command, "err", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			info := CloseInfo{Code: int(websocket.CloseStatus(err)), Err: err}
			switch {
			case c.closing.Load():
				info.Code = int(websocket.StatusNormalClosure)
				info.Err = nil
			case info.Code < 0:
				info.Code = statusAbnormalClosed
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				info.Reason = ce.Reason
			}
			c.teardown()
			c.handler.HandleClose(info)
			return
		}
		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("voice message dropped", "err", err)
			continue
		}
		c.handler.HandleMessage(msg)
	}
}
