package types

// FileSet maps an absolute path (always starting with "/") to file content.
// Keys are unique; writing an existing path overwrites it.
type FileSet map[string]string

// Clone returns an independent copy of the file set.
func (fs FileSet) Clone() FileSet {
	out := make(FileSet, len(fs))
	for path, content := range fs {
		out[path] = content
	}
	return out
}

// Message is one entry of a session conversation.
type Message struct {
	ID            string  `json:"id"`
	Role          string  `json:"role"` // "user" or "assistant"
	Text          string  `json:"text"`
	AttachedFiles FileSet `json:"attachedFiles,omitempty"`
}

// HistoryEntry is the trimmed {role, content} pair forwarded to the model.
type HistoryEntry struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// Stream event kinds, in the order a consumer may observe them.
const (
	EventThinking    = "thinking"
	EventWriteFile   = "writeFile"
	EventShowPreview = "showPreview"
	EventText        = "text"
	EventError       = "error"
	EventDone        = "done"
)

// StreamEvent is one tagged event of a generation stream. Exactly one
// terminal "done" event closes every stream; "error" may replace further
// progress events but is itself followed by "done".
type StreamEvent struct {
	Kind        string `json:"kind"`
	Message     string `json:"message,omitempty"`
	Path        string `json:"path,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
}

// GenerationRequest is the client-facing request body for a generation run.
type GenerationRequest struct {
	Prompt              string         `json:"prompt" binding:"required"`
	CurrentFiles        FileSet        `json:"currentFiles,omitempty"`
	ConversationHistory []HistoryEntry `json:"conversationHistory,omitempty"`
}

// IsFollowUp reports whether the request targets an existing project, which
// switches the workflow instructions sent to the model.
func (r GenerationRequest) IsFollowUp() bool {
	return len(r.CurrentFiles) > 1 || len(r.ConversationHistory) > 0
}

// Prompt variants a model candidate can be configured with.
const (
	VariantFull    = "full"
	VariantCompact = "compact"
)

// ModelCandidate is one entry of the ordered fallback chain. The list is
// never reordered at runtime, only skipped on failure.
type ModelCandidate struct {
	ID            string
	MaxTokens     int
	PromptVariant string
}

// GeneratedFile represents one file parsed out of a model response.
type GeneratedFile struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}
