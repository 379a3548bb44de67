package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzsnip/buzzsnip/pulse/async"
)

func netListen(t *testing.T) (net.Listener, error) {
	t.Helper()
	return net.Listen("tcp", "127.0.0.1:0")
}

func dialJobs(t *testing.T, f *fixture, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/jobs"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestJobStreamPushesUpdates(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	conn, _, err := dialJobs(t, f, "http://localhost:3000")
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, "job_stats", hello["type"])

	require.Eventually(t, func() bool { return f.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	job, err := f.jobs.Submit(context.Background(), async.JobRequest{Kind: async.KindFace, Params: async.Params{PersonaID: "p"}})
	require.NoError(t, err)

	update := readMessage(t, conn)
	assert.Equal(t, "job_update", update["type"])
	pushed := update["job"].(map[string]interface{})
	assert.Equal(t, job.ID, pushed["job_id"])
	assert.Equal(t, "queued", pushed["status"])
}

func TestJobStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, resp, err := dialJobs(t, f, "http://evil.test")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJobStreamClientsDisconnectOnShutdown(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	conn, _, err := dialJobs(t, f, "")
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	require.Eventually(t, func() bool { return f.srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, f.srv.hub.ClientCount())
}
