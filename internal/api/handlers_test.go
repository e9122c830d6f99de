package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge_server/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedGenerator replays a fixed event sequence.
type scriptedGenerator struct {
	events []types.StreamEvent
	block  chan struct{} // when set, the stream stays open until closed
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ types.GenerationRequest) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent)
	go func() {
		defer close(out)
		if g.block != nil {
			<-g.block
		}
		for _, ev := range g.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func newTestRouter(gen Generator) *gin.Engine {
	router := gin.New()
	RegisterRoutes(router, NewAPIHandler(gen))
	return router
}

func codeEvents() []types.StreamEvent {
	return []types.StreamEvent{
		{Kind: types.EventThinking, Message: "Analyzing your request..."},
		{Kind: types.EventWriteFile, Path: "/App.js", Content: "function App() {}", Description: "Creating /App.js"},
		{Kind: types.EventShowPreview, Message: "Your app is ready!"},
		{Kind: types.EventDone},
	}
}

func TestGenerate_CodeResponse(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{events: codeEvents()})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "build a counter"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp CodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "code", resp.Type)
	assert.Equal(t, "function App() {}", resp.Files["/App.js"])
	assert.Equal(t, "Your app is ready!", resp.Description)
}

func TestGenerate_ChatResponse(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{events: []types.StreamEvent{
		{Kind: types.EventThinking, Message: "Analyzing your request..."},
		{Kind: types.EventText, Content: "What should the site be about?"},
		{Kind: types.EventDone},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chat", resp.Type)
	assert.Equal(t, "What should the site be about?", resp.Message)
}

func TestGenerate_ErrorResponse(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{events: []types.StreamEvent{
		{Kind: types.EventThinking, Message: "Analyzing your request..."},
		{Kind: types.EventError, Message: "all models failed"},
		{Kind: types.EventDone},
	}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "build"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "all models failed")
}

func TestGenerate_MissingPrompt(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerate_SessionGate(t *testing.T) {
	block := make(chan struct{})
	gen := &scriptedGenerator{events: codeEvents(), block: block}
	router := newTestRouter(gen)

	var wg sync.WaitGroup
	wg.Add(1)
	firstStarted := make(chan struct{})
	go func() {
		defer wg.Done()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "one"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Session-ID", "s1")
		close(firstStarted)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}()

	<-firstStarted
	time.Sleep(20 * time.Millisecond) // let the first request take the gate

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "two"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", "s1")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// A different session is unaffected by the gate.
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt": "three"}`))
	req2.Header.Set("Content-Type", "application/json")
	req2.Header.Set("X-Session-ID", "s2")
	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w2, req2)
		close(done)
	}()

	close(block)
	wg.Wait()
	<-done
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestGenerateStream_SSEFraming(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{events: codeEvents()})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate/stream", strings.NewReader(`{"prompt": "build"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, lines, 4)

	var last types.StreamEvent
	require.True(t, strings.HasPrefix(lines[3], "data: "))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[3], "data: ")), &last))
	assert.Equal(t, types.EventDone, last.Kind)

	var first types.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "data: ")), &first))
	assert.Equal(t, types.EventThinking, first.Kind)
}

func TestExpandProject(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{})

	body := `{"files": {"/App.js": "import Foo from './components/Foo';", "/components/Foo.js": "export default function Foo() { return null; }"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/project/expand", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ExpandResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Files, "package.json")
	assert.Contains(t, resp.Files, "src/components/Foo.jsx")
	assert.Contains(t, resp.Files["src/App.jsx"], "./components/Foo.jsx")
	assert.Equal(t, "javascript", resp.Languages["src/App.jsx"])
	assert.Equal(t, "json", resp.Languages["package.json"])
}

func TestExportProject(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{})
	dir := t.TempDir()

	body, err := json.Marshal(ExportRequest{
		Files: types.FileSet{"/App.js": "export default function App() { return null; }"},
		Dir:   dir,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/project/export", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ExportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Greater(t, resp.Written, 0)
	assert.FileExists(t, dir+"/package.json")
	assert.FileExists(t, dir+"/src/App.jsx")
}

func TestHealth(t *testing.T) {
	router := newTestRouter(&scriptedGenerator{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
