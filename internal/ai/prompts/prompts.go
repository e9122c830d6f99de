package prompts

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"webforge_server/internal/types"
)

// The system prompt is assembled from modular sections so the workflow block
// can differ between new-project and follow-up requests. Tool schemas are
// NOT embedded here: they travel in the structured tools field of the chat
// request (see ToolDefinitions), never as prose the model could echo back.

const roleSection = `You are an expert React developer assistant. You build small, clean,
single-page React applications from user descriptions, one file at a time.`

const toolsSection = `You have two tools available:
- write_file: writes one project file. Takes a path, the full file content, and a short description of what the file does.
- show_preview: signals that the app is complete and ready to preview. Takes a short completion message.

Always use the tools to deliver code. Never paste code into your reply text.`

const rulesSection = `Rules:
- Only create files at /App.js, /App.css, or under /components/ (e.g. /components/Header.js, /components/Header.css).
- Every file path must be absolute and start with "/".
- /App.js is the entry component and must have a default export.
- Write complete files. Never write partial snippets, diffs, or placeholders like "rest unchanged".
- Import components from "./components/Name" relative to /App.js.
- If a component needs styles, import its CSS file next to it (e.g. import "./Header.css").`

const guidelinesSection = `Code style:
- Functional components with hooks. No class components.
- Declare components with the function keyword, either exported default inline or exported at the bottom.
- Import every hook you use from "react".
- Double quotes for JSX attributes.
- Plain CSS, no CSS-in-JS libraries and no external packages beyond react.`

const workflowNewProject = `Workflow for a new project:
1. Create /App.js first.
2. Create each component under /components/.
3. Create the CSS files the components import.
4. Call show_preview once everything is written.`

const workflowFollowUp = `Workflow for changes to an existing project:
1. Only rewrite the files that actually need to change. Leave everything else untouched.
2. Call show_preview once the changed files are written.`

const compactPrompt = `You are a React developer assistant. Build small React apps using the
write_file and show_preview tools only - never paste code in your reply.
Allowed paths: /App.js, /App.css, /components/*.js, /components/*.css.
Write complete files, use functional components with hooks, import every
hook from "react", import components from "./components/Name", and call
show_preview when done. For change requests, rewrite only the files that
need to change.`

// Compose builds the system prompt for one model candidate.
func Compose(variant string, isFollowUp bool) string {
	if variant == types.VariantCompact {
		return compactPrompt
	}

	workflow := workflowNewProject
	if isFollowUp {
		workflow = workflowFollowUp
	}

	sections := []string{
		roleSection,
		toolsSection,
		rulesSection,
		guidelinesSection,
		workflow,
	}
	return strings.Join(sections, "\n\n")
}

// ToolDefinitions returns the machine-readable schemas for the write_file
// and show_preview tools.
func ToolDefinitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "write_file",
				Description: "Write one complete project file.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": map[string]any{
							"type":        "string",
							"description": "Absolute file path, e.g. /App.js or /components/Header.js",
						},
						"content": map[string]any{
							"type":        "string",
							"description": "The complete file content.",
						},
						"description": map[string]any{
							"type":        "string",
							"description": "One short sentence describing the file.",
						},
					},
					"required": []string{"path", "content"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "show_preview",
				Description: "Signal that the app is complete and ready to preview.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{
							"type":        "string",
							"description": "Short completion message shown to the user.",
						},
					},
				},
			},
		},
	}
}
