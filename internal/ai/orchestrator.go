package ai

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"webforge_server/internal/ai/parse"
	"webforge_server/internal/ai/prompts"
	"webforge_server/internal/ai/sanitize"
	"webforge_server/internal/types"
)

const (
	defaultPreviewMessage = "Your app is ready!"
	thinkingMessage       = "Analyzing your request..."
	maxHistoryEntries     = 4
)

// Rendered instead of the generated app when every JSON repair layer fails.
// The user always gets a mountable project, even if it only explains the
// failure.
const errorComponent = `export default function App() {
  return (
    <div style={{ padding: "2rem", fontFamily: "sans-serif" }}>
      <h1>Generation failed</h1>
      <p>The response could not be understood. Please try again with a simpler request.</p>
    </div>
  );
}
`

// Caller is the model-fallback chain as the orchestrator sees it.
type Caller interface {
	Call(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool, isFollowUp bool) (*FallbackResult, error)
}

// Orchestrator drives one generation request end-to-end and emits an ordered
// event stream: one thinking event, writeFile/showPreview progress, then
// exactly one done. An error event may replace further progress but is
// always followed by done. The event channel is closed after done.
type Orchestrator struct {
	client           Caller
	fileContextLimit int
	writePacing      time.Duration
}

func NewOrchestrator(client Caller, fileContextLimit int, writePacing time.Duration) *Orchestrator {
	return &Orchestrator{
		client:           client,
		fileContextLimit: fileContextLimit,
		writePacing:      writePacing,
	}
}

// Generate runs the request on a background goroutine. The returned channel
// delivers events in order and is closed after the terminal done event.
func (o *Orchestrator) Generate(ctx context.Context, req types.GenerationRequest) <-chan types.StreamEvent {
	events := make(chan types.StreamEvent, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req types.GenerationRequest, events chan<- types.StreamEvent) {
	log := logrus.WithField("generation", uuid.NewString())

	// Sends bail out once the caller's context is cancelled so an abandoned
	// stream never strands this goroutine.
	emit := func(ev types.StreamEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Generation panicked: %v", r)
			emit(types.StreamEvent{Kind: types.EventError, Message: fmt.Sprintf("generation failed: %v", r)})
			emit(types.StreamEvent{Kind: types.EventDone})
		}
	}()

	emit(types.StreamEvent{Kind: types.EventThinking, Message: thinkingMessage})

	messages := o.buildMessages(req)
	result, err := o.client.Call(ctx, messages, prompts.ToolDefinitions(), req.IsFollowUp())
	if err != nil {
		log.Errorf("Model fallback chain exhausted: %v", err)
		emit(types.StreamEvent{Kind: types.EventError, Message: err.Error()})
		emit(types.StreamEvent{Kind: types.EventDone})
		return
	}

	log = log.WithField("model", result.ModelID)

	if len(result.Response.Choices) == 0 {
		emit(types.StreamEvent{Kind: types.EventError, Message: "model returned an empty response"})
		emit(types.StreamEvent{Kind: types.EventDone})
		return
	}

	choice := result.Response.Choices[0]
	truncated := choice.FinishReason == openai.FinishReasonLength
	if truncated {
		log.Warn("Response was length-truncated, repair layer engaged")
	}

	if len(choice.Message.ToolCalls) > 0 {
		o.consumeToolCalls(ctx, choice, truncated, emit, log)
	} else {
		o.consumeText(ctx, choice.Message.Content, truncated, emit, log)
	}

	emit(types.StreamEvent{Kind: types.EventDone})
}

// buildMessages assembles trimmed history, current-file context and the
// user prompt. The system prompt is added per candidate by the fallback
// client.
func (o *Orchestrator) buildMessages(req types.GenerationRequest) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage

	history := req.ConversationHistory
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	for _, entry := range history {
		role := openai.ChatMessageRoleUser
		if entry.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: entry.Content})
	}

	if len(req.CurrentFiles) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: o.filesContext(req.CurrentFiles),
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return messages
}

func (o *Orchestrator) filesContext(files types.FileSet) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("These are the current project files:\n")
	for _, p := range paths {
		content := files[p]
		if o.fileContextLimit > 0 && len(content) > o.fileContextLimit {
			content = content[:o.fileContextLimit] + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", p, content)
	}
	return b.String()
}

var cssImportRe = regexp.MustCompile(`import\s+['"]([^'"]+\.css)['"]`)

// cssImports returns the absolute paths of every stylesheet the given file
// imports, resolved against the importing file's directory.
func cssImports(importerPath, content string) []string {
	var out []string
	for _, match := range cssImportRe.FindAllStringSubmatch(content, -1) {
		imported := match[1]
		if !strings.HasPrefix(imported, "/") {
			imported = path.Join(path.Dir(importerPath), imported)
		}
		out = append(out, imported)
	}
	return out
}

func isJSPath(p string) bool {
	return strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".jsx")
}

func (o *Orchestrator) consumeToolCalls(ctx context.Context, choice openai.ChatCompletionChoice, truncated bool, emit func(types.StreamEvent), log *logrus.Entry) {
	written := map[string]bool{}
	requiredCSS := map[string]bool{}
	previewRequested := false
	previewMessage := defaultPreviewMessage

	for _, call := range choice.Message.ToolCalls {
		switch call.Function.Name {
		case "show_preview":
			// Recorded here, emitted after CSS completion below so every
			// writeFile precedes the single showPreview event.
			if message := parse.ParsePreviewArgs(call.Function.Arguments); message != "" {
				previewMessage = message
			}
			previewRequested = true

		case "write_file":
			file, err := parse.ParseToolArgs(call.Function.Arguments, truncated)
			if err != nil {
				// A single unparseable call never aborts the batch.
				log.Warnf("Skipping unparseable write_file call: %v", err)
				continue
			}
			for _, cssPath := range cssImports(file.Path, file.Content) {
				requiredCSS[cssPath] = true
			}
			content := file.Content
			if isJSPath(file.Path) {
				content = sanitize.EnsureHookImports(sanitize.Sanitize(content))
			}
			description := file.Description
			if description == "" {
				description = "Creating " + file.Path
			}
			emit(types.StreamEvent{
				Kind:        types.EventWriteFile,
				Path:        file.Path,
				Content:     content,
				Description: description,
			})
			written[file.Path] = true
			o.pace(ctx)

		default:
			log.Warnf("Ignoring unknown tool call %q", call.Function.Name)
		}
	}

	// Stylesheets the generated code imports but the model never wrote get a
	// minimal placeholder so the project still builds.
	missing := make([]string, 0, len(requiredCSS))
	for cssPath := range requiredCSS {
		if !written[cssPath] {
			missing = append(missing, cssPath)
		}
	}
	sort.Strings(missing)
	for _, cssPath := range missing {
		emit(types.StreamEvent{
			Kind:        types.EventWriteFile,
			Path:        cssPath,
			Content:     fmt.Sprintf("/* Styles for %s */\n", strings.TrimSuffix(path.Base(cssPath), ".css")),
			Description: "Creating " + cssPath,
		})
		written[cssPath] = true
		o.pace(ctx)
	}

	if previewRequested || len(written) > 0 {
		emit(types.StreamEvent{Kind: types.EventShowPreview, Message: previewMessage})
	}

	if trailing := strings.TrimSpace(choice.Message.Content); trailing != "" {
		emit(types.StreamEvent{Kind: types.EventText, Content: trailing})
	}
}

func (o *Orchestrator) consumeText(ctx context.Context, text string, truncated bool, emit func(types.StreamEvent), log *logrus.Entry) {
	content := strings.TrimSpace(text)
	if content == "" {
		emit(types.StreamEvent{Kind: types.EventError, Message: "model returned an empty response"})
		return
	}

	if looksLikeJSONResponse(content) {
		resp, err := parse.ParseResponse(content, truncated)
		if err == nil {
			o.emitParsedResponse(ctx, resp, emit)
			return
		}
		// Every repair layer failed. Degrade gracefully: the user still gets
		// a renderable project explaining what happened.
		log.Warnf("Whole-response repair failed: %v", err)
		emit(types.StreamEvent{
			Kind:        types.EventWriteFile,
			Path:        "/App.js",
			Content:     errorComponent,
			Description: "Creating /App.js",
		})
		emit(types.StreamEvent{Kind: types.EventShowPreview, Message: "Something went wrong, showing an error page."})
		return
	}

	if hasLeakedToolSyntax(content) {
		log.Warn("Model leaked tool-call syntax into prose")
		emit(types.StreamEvent{Kind: types.EventError, Message: "The model produced malformed output. Please try a simpler request."})
		return
	}

	emit(types.StreamEvent{Kind: types.EventText, Content: content})
}

func (o *Orchestrator) emitParsedResponse(ctx context.Context, resp *parse.Response, emit func(types.StreamEvent)) {
	if resp.Type != "code" {
		emit(types.StreamEvent{Kind: types.EventText, Content: resp.Message})
		return
	}

	paths := make([]string, 0, len(resp.Files))
	for p := range resp.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := resp.Files[p]
		if isJSPath(p) {
			content = sanitize.EnsureHookImports(sanitize.Sanitize(content))
		}
		emit(types.StreamEvent{
			Kind:        types.EventWriteFile,
			Path:        p,
			Content:     content,
			Description: "Creating " + p,
		})
		o.pace(ctx)
	}

	message := resp.Description
	if message == "" {
		message = defaultPreviewMessage
	}
	emit(types.StreamEvent{Kind: types.EventShowPreview, Message: message})
}

// looksLikeJSONResponse reports whether prose output is actually a
// single-shot JSON payload.
func looksLikeJSONResponse(content string) bool {
	return strings.HasPrefix(content, "{") || strings.Contains(content, "```json")
}

// hasLeakedToolSyntax detects tool-call markup that escaped into prose. That
// output is a model defect, not something worth repairing.
func hasLeakedToolSyntax(content string) bool {
	return strings.Contains(content, `"path":`) ||
		strings.Contains(content, "<tool") ||
		strings.Contains(content, "write_file(") ||
		strings.Contains(content, "```")
}

// pace sleeps the configured delay after an emitted writeFile event so an
// interactive consumer can render incremental progress. Zero means no delay.
func (o *Orchestrator) pace(ctx context.Context) {
	if o.writePacing <= 0 {
		return
	}
	select {
	case <-time.After(o.writePacing):
	case <-ctx.Done():
	}
}
