package distance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/landolt/internal/model"
)

func startServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readMap(conn *websocket.Conn) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	err = json.Unmarshal(data, &m)
	return m, err
}

func writeAny(conn *websocket.Conn, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

type staticFrames struct{}

func (staticFrames) Next(context.Context) (string, error) {
	return "data:image/jpeg;base64,AAAA", nil
}

func TestDialAuthenticatesAndStarts(t *testing.T) {
	got := make(chan map[string]any, 4)
	srv := startServer(t, func(conn *websocket.Conn) {
		for {
			m, err := readMap(conn)
			if err != nil {
				return
			}
			got <- m
			if m["command"] == "start_distance" {
				writeAny(conn, Reading{Success: true, Message: "Authenticated successfully"})
			}
		}
	})

	d := &Dialer{ServerURL: srv.URL, Token: "tok"}
	c, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()

	cal := model.Calibration{FocalLength: 612.5, PixelsPerMM: 3.78, ScreenPPI: 96}
	require.NoError(t, c.StartDistance(context.Background(), cal))

	require.Equal(t, "tok", (<-got)["token"])
	start := <-got
	require.Equal(t, "start_distance", start["command"])
	require.InDelta(t, 612.5, start["focal_length"], 1e-9)
	require.InDelta(t, 3.78, start["pixels_per_mm"], 1e-9)
	require.InDelta(t, 96.0, start["screen_ppi"], 1e-9)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := c.Read(ctx)
	require.NoError(t, err)
	require.True(t, r.Success)
}

func TestRunPumpsFramesUntilServerCloses(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		if _, err := readMap(conn); err != nil {
			return
		}
		for i := 0; i < 3; i++ {
			m, err := readMap(conn)
			if err != nil {
				return
			}
			if !strings.HasPrefix(m["image"].(string), "data:image/jpeg") {
				return
			}
			writeAny(conn, Reading{Success: true, Faces: []Face{{Distance: 4}}, AtTargetDistance: true})
		}
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	d := &Dialer{ServerURL: srv.URL, Token: "tok"}
	c, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var readings []Reading
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Run(ctx, staticFrames{}, 5*time.Millisecond, func(r Reading) {
		mu.Lock()
		readings = append(readings, r)
		mu.Unlock()
	})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, readings, 3)
}

func TestCloseSendsStopAllOnce(t *testing.T) {
	commands := make(chan string, 4)
	srv := startServer(t, func(conn *websocket.Conn) {
		for {
			m, err := readMap(conn)
			if err != nil {
				close(commands)
				return
			}
			if cmd, ok := m["command"].(string); ok {
				commands <- cmd
			}
		}
	})

	d := &Dialer{ServerURL: srv.URL, Token: "tok"}
	c, err := d.Dial(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	var seen []string
	for cmd := range commands {
		seen = append(seen, cmd)
	}
	require.Equal(t, []string{"stop_all"}, seen)
}

func TestMonitorGivesUpAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var statuses []string
	m := &Monitor{
		Dialer:     &Dialer{ServerURL: srv.URL, Token: "tok"},
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
		OnStatus:   func(s string) { statuses = append(statuses, s) },
	}
	err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrConnectionLost)
	require.Equal(t, []string{
		"Distance service disconnected. Reconnecting (1/2)...",
		"Distance service disconnected. Reconnecting (2/2)...",
		"Distance service connection lost.",
	}, statuses)
}

type brokenFrames struct{}

func (brokenFrames) Next(context.Context) (string, error) {
	return "", os.ErrPermission
}

func TestMonitorStopsOnFrameSourceError(t *testing.T) {
	var dials atomic.Int32
	srv := startServer(t, func(conn *websocket.Conn) {
		dials.Add(1)
		for {
			if _, err := readMap(conn); err != nil {
				return
			}
		}
	})

	var statuses []string
	m := &Monitor{
		Dialer:     &Dialer{ServerURL: srv.URL, Token: "tok"},
		Frames:     brokenFrames{},
		Interval:   time.Millisecond,
		RetryDelay: time.Millisecond,
		MaxRetries: 3,
		OnStatus:   func(s string) { statuses = append(statuses, s) },
	}
	err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrFrames)
	require.ErrorIs(t, err, os.ErrPermission)
	require.NotErrorIs(t, err, ErrConnectionLost)
	require.LessOrEqual(t, dials.Load(), int32(1))
	require.Equal(t, "Camera frames unavailable.", statuses[len(statuses)-1])
	for _, s := range statuses {
		require.NotContains(t, s, "Reconnecting")
	}
}

func TestMonitorCloseStopsRun(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		for {
			if _, err := readMap(conn); err != nil {
				return
			}
		}
	})

	readings := make(chan Reading, 1)
	m := &Monitor{
		Dialer:    &Dialer{ServerURL: srv.URL, Token: "tok"},
		Frames:    staticFrames{},
		Interval:  5 * time.Millisecond,
		OnReading: func(r Reading) { readings <- r },
	}
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestDirFramesLoopsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte{2}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte{1}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	f, err := NewDirFrames(dir)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := f.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "data:image/jpeg;base64,AQ==", first)
	second, err := f.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,Ag==", second)
	third, err := f.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, first, third)
}

func TestNewDirFramesRejectsEmptyDir(t *testing.T) {
	_, err := NewDirFrames(t.TempDir())
	require.Error(t, err)
}
