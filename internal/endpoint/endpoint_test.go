package endpoint

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTP(t *testing.T) {
	got, err := HTTP("https://vision.example/", "/api/get-screen-ppi")
	require.NoError(t, err)
	require.Equal(t, "https://vision.example/api/get-screen-ppi", got)

	got, err = HTTP("localhost:8000", "/auth/calibration")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/auth/calibration", got)
}

func TestWebSocket(t *testing.T) {
	got, err := WebSocket("https://vision.example", "/ws_voice", url.Values{"token": {"a b"}})
	require.NoError(t, err)
	require.Equal(t, "wss://vision.example/ws_voice?token=a+b", got)

	got, err = WebSocket("http://127.0.0.1:9000/base/", "/ws", nil)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9000/base/ws", got)
}

func TestRejectsBadBase(t *testing.T) {
	for _, base := range []string{"", "   ", "ftp://host", "http://"} {
		_, err := HTTP(base, "/x")
		require.Error(t, err, "base %q", base)
	}
}
