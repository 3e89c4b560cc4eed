package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/landolt/internal/model"
)

// ErrConnectionLost is returned once reconnect attempts are exhausted.
var ErrConnectionLost = errors.New("distance: connection lost")

// ErrFrames wraps a FrameSource failure. The monitor does not reconnect on it.
var ErrFrames = errors.New("distance: frame source failed")

const (
	defaultRetryDelay = 3 * time.Second
	defaultMaxRetries = 5
)

// Monitor keeps a distance channel running, reconnecting with a fixed delay
// up to MaxRetries times in a row.
type Monitor struct {
	Dialer      *Dialer
	Calibration model.Calibration
	Frames      FrameSource
	Interval    time.Duration
	RetryDelay  time.Duration
	MaxRetries  int
	Logger      *slog.Logger
	OnReading   func(Reading)
	OnStatus    func(string)

	mu     sync.Mutex
	client *Client
	cancel context.CancelFunc
	closed bool
}

// Run blocks until ctx ends, Close is called, the server closes normally,
// or reconnects are exhausted.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.cancel = cancel
	m.mu.Unlock()

	delay := m.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	maxRetries := m.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := 0
	for {
		err := m.runOnce(ctx, &attempts)
		if ctx.Err() != nil || err == nil || m.isClosed() {
			return nil
		}
		if errors.Is(err, ErrFrames) {
			m.status("Camera frames unavailable.")
			logger.Error("distance frames failed", "err", err)
			return err
		}
		if attempts >= maxRetries {
			m.status("Distance service connection lost.")
			logger.Error("distance reconnect attempts exhausted", "attempts", attempts, "err", err)
			return fmt.Errorf("%w after %d attempts: %v", ErrConnectionLost, attempts, err)
		}
		attempts++
		logger.Warn("distance channel dropped", "attempt", attempts, "err", err)
		m.status(fmt.Sprintf("Distance service disconnected. Reconnecting (%d/%d)...", attempts, maxRetries))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, attempts *int) error {
	client, err := m.Dialer.Dial(ctx)
	if err != nil {
		return err
	}
	m.setClient(client)
	defer func() {
		m.setClient(nil)
		_ = client.Close()
	}()
	if err := client.StartDistance(ctx, m.Calibration); err != nil {
		return err
	}
	*attempts = 0
	m.status(fmt.Sprintf("Move to %.0fm from the screen", TargetMeters))
	return client.Run(ctx, m.Frames, m.Interval, m.OnReading)
}

func (m *Monitor) setClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = c
}

func (m *Monitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Monitor) status(msg string) {
	if m.OnStatus != nil {
		m.OnStatus(msg)
	}
}

// Close stops the monitor and closes the open channel with stop_all.
// It is safe to call more than once.
func (m *Monitor) Close() error {
	m.mu.Lock()
	m.closed = true
	client := m.client
	cancel := m.cancel
	m.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}
