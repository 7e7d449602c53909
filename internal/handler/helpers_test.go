package handler_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/subgen/api/internal/handler"
	"github.com/subgen/api/internal/logging"
	"github.com/subgen/api/internal/middleware"
	"github.com/subgen/api/internal/model"
	"github.com/subgen/api/internal/service"
	"github.com/subgen/api/internal/storage"
	"github.com/subgen/api/internal/subtitle"
	"github.com/subgen/api/internal/tracker"
	"github.com/subgen/api/internal/worker"
	ws "github.com/subgen/api/internal/websocket"
)

const transcriptFixture = "1\n00:00:01,000 --> 00:00:02,000\nHello there\n\n2\n00:00:03,000 --> 00:00:04,500\nGeneral Kenobi\n\n"

// fakeTranscriber writes a fixed SRT where the real tool would.
type fakeTranscriber struct {
	mu   sync.Mutex
	gate chan struct{}
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, input, outDir string) (string, error) {
	f.mu.Lock()
	gate, failure := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}
	out := filepath.Join(outDir, storage.Stem(filepath.Base(input))+".srt")
	return out, os.WriteFile(out, []byte(transcriptFixture), 0o644)
}

func (f *fakeTranscriber) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeTranscriber) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// prefixTranslator tags each line with the target language.
type prefixTranslator struct{}

func (prefixTranslator) Translate(ctx context.Context, text string, lang model.Language) (string, error) {
	return fmt.Sprintf("[%s] %s", lang, text), nil
}

// testApp holds all components needed for testing
type testApp struct {
	app         *fiber.App
	store       *storage.Store
	tracker     *tracker.Tracker
	ring        *logging.Ring
	hub         *ws.Hub
	transcriber *fakeTranscriber
}

// setupApp wires the app the way main does, with fake external tools.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	ring := logging.NewRing(200)
	logging.Configure(logging.Config{Level: "debug", Output: io.Discard, Service: "subgen-test", Ring: ring})

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	tr := tracker.New(tracker.NewMemoryStore())
	transcriber := &fakeTranscriber{}
	pipeline := worker.NewPipelineWorker(
		transcriber,
		subtitle.NewTranslator(prefixTranslator{}),
		tr,
		store,
		worker.PipelineOptions{Timeout: 5 * time.Second, ToolConcurrency: 1, TranslateConcurrency: 1},
	)
	pool := worker.NewPool()
	svc := service.NewSubtitleService(tr, store, pool, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(ring)
	go hub.Run(ctx)

	app := fiber.New(fiber.Config{ErrorHandler: handler.ErrorHandler})
	validate := validator.New()
	handler.Register(app, handler.Routes{
		Upload:      handler.NewUploadHandler(svc, validate),
		Download:    handler.NewDownloadHandler(svc),
		System:      handler.NewSystemHandler(svc, ring),
		Hub:         hub,
		UploadLimit: middleware.NewRateLimiter(10000, 10000).Limit(),
		Backlog:     10,
	})

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = pool.Shutdown(shutdownCtx)
	})

	return &testApp{
		app:         app,
		store:       store,
		tracker:     tr,
		ring:        ring,
		hub:         hub,
		transcriber: transcriber,
	}
}

// uploadRequest builds a multipart POST /upload. Empty fields are omitted.
func uploadRequest(t *testing.T, filename, needsTranslation, language string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if needsTranslation != "" {
		require.NoError(t, writer.WriteField("needs_translation", needsTranslation))
	}
	if language != "" {
		require.NoError(t, writer.WriteField("target_language", language))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("fake media payload"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (ta *testApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (ta *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	return ta.do(t, req)
}

func (ta *testApp) waitForState(t *testing.T, key string, state model.JobState) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, ok := ta.tracker.Get(key)
		return ok && job.State == state
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", key, state)
}

func (ta *testApp) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(ta.store.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// readBody reads and returns the response body.
func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &result), "body: %s", body)
	return result
}

// errorCode extracts error.code from the response envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := errObj["code"].(string)
	return code
}

// unzip returns entry name -> content.
func unzip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

var errToolCrashed = errors.New("faster-whisper exited with code 1")
