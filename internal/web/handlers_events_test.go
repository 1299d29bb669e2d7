package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideapedyudi/tabby/internal/profile"
)

// readSSE returns the next event name and data line.
func readSSE(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.hub.Info("", "earlier")

	httpSrv := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(httpSrv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	name, data := readSSE(t, r)
	assert.Equal(t, "tabs", name)
	assert.Equal(t, "[]", data)

	name, data = readSSE(t, r)
	assert.Equal(t, "notification", name)
	assert.Contains(t, data, "earlier")

	tb, err := ts.host.Open(ctx, profile.Profile{Type: profile.TypeLocal, Name: "bash"})
	require.NoError(t, err)

	name, data = readSSE(t, r)
	assert.Equal(t, "tab", name)
	assert.Contains(t, data, tb.ID())

	ts.hub.Error(tb.ID(), "boom")
	for {
		name, data = readSSE(t, r)
		if name == "notification" {
			break
		}
	}
	assert.Contains(t, data, "boom")
}

func TestEventsRequiresToken(t *testing.T) {
	ts := newTestServer(t, Config{Token: "secret"})
	rr := ts.do(t, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
