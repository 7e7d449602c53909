package handler_test

import (
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/model"
)

func TestSystemMessages(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, uploadRequest(t, "clip.mp4", "", ""))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ta.waitForState(t, "clip.mp4", model.JobStateCompleted)

	resp = ta.get(t, "/system-messages?limit=3")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseJSON(t, resp)
	assert.EqualValues(t, 3, body["count"])

	resp = ta.get(t, "/system-messages")
	body = parseJSON(t, resp)
	joined := ""
	for _, m := range body["messages"].([]interface{}) {
		joined += m.(string) + "\n"
	}
	assert.Contains(t, joined, "job created")
	assert.Contains(t, joined, "job finished")

	resp = ta.get(t, "/system-messages?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobStatus(t *testing.T) {
	ta := setupApp(t)
	gate := ta.transcriber.hold()

	resp := ta.get(t, "/jobs/clip.mp4")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ta.do(t, uploadRequest(t, "clip.mp4", "true", "Ukrainian"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = ta.get(t, "/jobs/clip.mp4")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseJSON(t, resp)
	assert.Equal(t, "processing", body["state"])
	assert.Equal(t, "Ukrainian", body["targetLanguage"])

	resp = ta.get(t, "/jobs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, parseJSON(t, resp)["jobs"], 1)

	close(gate)
	ta.waitForState(t, "clip.mp4", model.JobStateCompleted)
}

func TestHealthAndMetrics(t *testing.T) {
	ta := setupApp(t)

	resp := ta.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", parseJSON(t, resp)["status"])

	resp = ta.do(t, uploadRequest(t, "clip.mp4", "", ""))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ta.waitForState(t, "clip.mp4", model.JobStateCompleted)

	resp = ta.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), "subgen_submissions_total")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ta := setupApp(t)

	resp := ta.get(t, "/nope")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, parseJSON(t, resp)))
}

func TestSystemMessagesWebsocket(t *testing.T) {
	ta := setupApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = ta.app.Listener(ln) }()
	t.Cleanup(func() { _ = ta.app.ShutdownWithTimeout(2 * time.Second) })

	logger := logging.WithComponent("test")
	logger.Info().Msg("backlog line")

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/system-messages", nil)
	require.NoError(t, err)
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				logger.Info().Msg("live line")
			}
		}
	}()

	var sawBacklog, sawLive bool
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !(sawBacklog && sawLive) {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		sawBacklog = sawBacklog || strings.Contains(string(msg), "backlog line")
		sawLive = sawLive || strings.Contains(string(msg), "live line")
	}
}
