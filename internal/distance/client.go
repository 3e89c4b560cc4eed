package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/landolt/internal/endpoint"
	"github.com/verte-zerg/landolt/internal/model"
)

const (
	distancePath       = "/ws"
	defaultDialTimeout = 10 * time.Second
	writeTimeout       = 5 * time.Second
	stopTimeout        = time.Second
	// FrameInterval is the pace of the frame pump.
	FrameInterval = 100 * time.Millisecond
	// Processed frames echo the image back, so readings can be large.
	readLimit = 8 << 20
)

// Dialer opens distance channels.
type Dialer struct {
	ServerURL   string
	Token       string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Dial connects and authenticates with the token.
func (d *Dialer) Dial(ctx context.Context) (*Client, error) {
	if d.Token == "" {
		return nil, errors.New("distance: token is required")
	}
	u, err := endpoint.WebSocket(d.ServerURL, distancePath, nil)
	if err != nil {
		return nil, fmt.Errorf("distance: %w", err)
	}
	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("distance: dial: %w", err)
	}
	ws.SetReadLimit(readLimit)
	if err := wsjson.Write(dialCtx, ws, authMessage{Token: d.Token}); err != nil {
		_ = ws.CloseNow()
		return nil, fmt.Errorf("distance: send token: %w", err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{ws: ws, logger: logger}, nil
}

// Client is one open distance channel.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger

	closeOnce sync.Once
}

// StartDistance begins measurement with the camera profile.
func (c *Client) StartDistance(ctx context.Context, cal model.Calibration) error {
	return c.write(ctx, newStart(cal))
}

// SendFrame submits one camera frame as a data URL.
func (c *Client) SendFrame(ctx context.Context, image string) error {
	return c.write(ctx, frameMessage{Image: image})
}

func (c *Client) write(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		return fmt.Errorf("distance: write: %w", err)
	}
	return nil
}

// Read blocks for the next reading. Malformed frames are skipped.
func (c *Client) Read(ctx context.Context) (Reading, error) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return Reading{}, err
		}
		r, err := decodeReading(data)
		if err != nil {
			c.logger.Warn("distance reading dropped", "err", err)
			continue
		}
		return r, nil
	}
}

// Run pumps frames at interval and delivers readings until ctx ends or the
// channel fails. A normal close from either side returns nil.
func (c *Client) Run(ctx context.Context, frames FrameSource, interval time.Duration, onReading func(Reading)) error {
	if interval <= 0 {
		interval = FrameInterval
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			r, err := c.Read(gctx)
			if err != nil {
				return err
			}
			if onReading != nil {
				onReading(r)
			}
		}
	})
	if frames != nil {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
				}
				img, err := frames.Next(gctx)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrFrames, err)
				}
				if err := c.SendFrame(gctx, img); err != nil {
					// The read loop reports why the channel ended.
					c.logger.Debug("distance frame not sent", "err", err)
					return nil
				}
			}
		})
	}
	err := g.Wait()
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// Close sends stop_all and closes normally. Later calls are no-ops.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := wsjson.Write(ctx, c.ws, commandMessage{Command: commandStop}); err != nil {
			c.logger.Debug("distance stop message not delivered", "err", err)
		}
		cancel()
		if err := c.ws.Close(websocket.StatusNormalClosure, "client closing"); err != nil {
			c.logger.Debug("distance close handshake incomplete", "err", err)
		}
	})
	return nil
}
