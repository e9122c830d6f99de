package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"webforge_server/internal/project"
	"webforge_server/internal/types"
	"webforge_server/internal/utils"
)

// Generator is the generation orchestrator as the API layer sees it.
type Generator interface {
	Generate(ctx context.Context, req types.GenerationRequest) <-chan types.StreamEvent
}

// sessionGate enforces at most one in-flight generation per session. The
// file set is single-writer; a second concurrent request for the same
// session is rejected rather than queued.
type sessionGate struct {
	mu     sync.Mutex
	active map[string]bool
}

func (g *sessionGate) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[id] {
		return false
	}
	g.active[id] = true
	return true
}

func (g *sessionGate) release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, id)
}

// APIHandler holds dependencies for API endpoints.
type APIHandler struct {
	generator Generator
	sessions  sessionGate
}

// NewAPIHandler initializes a new API handler with its dependencies.
func NewAPIHandler(generator Generator) *APIHandler {
	return &APIHandler{
		generator: generator,
		sessions:  sessionGate{active: map[string]bool{}},
	}
}

func sessionID(c *gin.Context) string {
	if id := c.GetHeader("X-Session-ID"); id != "" {
		return id
	}
	return "default"
}

// --- Structs for API Requests/Responses ---

type CodeResponse struct {
	Type        string        `json:"type"`
	Files       types.FileSet `json:"files"`
	Description string        `json:"description"`
}

type ChatResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ExpandRequest struct {
	Files types.FileSet `json:"files" binding:"required"`
}

type ExpandResponse struct {
	Files     map[string]string `json:"files"`
	Languages map[string]string `json:"languages"`
}

type ExportRequest struct {
	Files types.FileSet `json:"files" binding:"required"`
	Dir   string        `json:"dir" binding:"required"`
}

type ExportResponse struct {
	Written int    `json:"written"`
	Dir     string `json:"dir"`
}

// --- API Handlers ---

// POST /generate
func (h *APIHandler) Generate(c *gin.Context) {
	var req types.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	session := sessionID(c)
	if !h.sessions.acquire(session) {
		c.JSON(http.StatusConflict, gin.H{"error": "A generation is already running for this session"})
		return
	}
	defer h.sessions.release(session)

	files := types.FileSet{}
	description := ""
	chatMessage := ""
	errMessage := ""

	for event := range h.generator.Generate(c.Request.Context(), req) {
		switch event.Kind {
		case types.EventWriteFile:
			files[event.Path] = event.Content
		case types.EventShowPreview:
			description = event.Message
		case types.EventText:
			chatMessage = event.Content
		case types.EventError:
			errMessage = event.Message
		}
	}

	switch {
	case errMessage != "":
		c.JSON(http.StatusInternalServerError, gin.H{"error": errMessage})
	case len(files) > 0:
		c.JSON(http.StatusOK, CodeResponse{Type: "code", Files: files, Description: description})
	case chatMessage != "":
		c.JSON(http.StatusOK, ChatResponse{Type: "chat", Message: chatMessage})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Generation produced no output"})
	}
}

// POST /generate/stream
func (h *APIHandler) GenerateStream(c *gin.Context) {
	var req types.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	session := sessionID(c)
	if !h.sessions.acquire(session) {
		c.JSON(http.StatusConflict, gin.H{"error": "A generation is already running for this session"})
		return
	}
	defer h.sessions.release(session)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for event := range h.generator.Generate(c.Request.Context(), req) {
		data, err := json.Marshal(event)
		if err != nil {
			logrus.Warnf("Failed to marshal stream event: %v", err)
			continue
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
		if event.Kind == types.EventDone {
			return
		}
	}
}

// POST /project/expand
func (h *APIHandler) ExpandProject(c *gin.Context) {
	var req ExpandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	tree := project.Expand(req.Files)
	languages := make(map[string]string, len(tree))
	for name := range tree {
		languages[name] = utils.DetermineLanguage(name)
	}

	c.JSON(http.StatusOK, ExpandResponse{Files: tree, Languages: languages})
}

// POST /project/export
func (h *APIHandler) ExportProject(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	written, err := project.WriteToDir(project.Expand(req.Files), req.Dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export project: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ExportResponse{Written: written, Dir: req.Dir})
}
