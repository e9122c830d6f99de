package parse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"webforge_server/internal/types"
)

// This package turns whatever an LLM actually produced into something the
// orchestrator can use. Models wrap JSON in prose or code fences, delimit
// strings with backticks, leave raw newlines inside string values, trail
// commas, and get cut off mid-object by token limits. Each repair below is
// an isolated pure function; the Parse* entry points apply them in a fixed
// order, each layer only when the previous one failed. Nothing here ever
// panics on malformed input - a terminal miss is an ordinary error.

// ErrUnparseable is returned when every repair layer has failed and the
// input cannot even be field-extracted.
var ErrUnparseable = errors.New("response could not be parsed or repaired")

// Response is a whole-response parse result: either a code payload
// (Files + Description) or a chat payload (Message).
type Response struct {
	Type        string            `json:"type"`
	Files       map[string]string `json:"files"`
	Description string            `json:"description"`
	Message     string            `json:"message"`
}

// StripFences removes Markdown code-fence markers and, when prose surrounds
// the JSON, extracts the substring spanning the first '{' to the last '}'.
func StripFences(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return cleaned
}

// ConvertBacktickStrings rewrites backtick-delimited strings into properly
// escaped double-quoted JSON string literals. Models fall back to template
// literals when the content itself is full of double quotes.
func ConvertBacktickStrings(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	inString := false  // inside a legitimate double-quoted string
	inBacktick := false
	escaped := false

	for _, r := range s {
		if inString {
			out.WriteRune(r)
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}
		if inBacktick {
			switch r {
			case '`':
				out.WriteRune('"')
				inBacktick = false
			case '"':
				out.WriteString(`\"`)
			case '\\':
				out.WriteString(`\\`)
			case '\n':
				out.WriteString(`\n`)
			case '\r':
				out.WriteString(`\r`)
			case '\t':
				out.WriteString(`\t`)
			default:
				out.WriteRune(r)
			}
			continue
		}
		switch r {
		case '"':
			inString = true
			out.WriteRune(r)
		case '`':
			inBacktick = true
			out.WriteRune('"')
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// EscapeControlChars escapes literal newline, carriage-return and tab
// characters found inside string values. Models regularly emit raw
// multi-line code inside what is supposed to be a JSON string.
func EscapeControlChars(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	inString := false
	escaped := false

	for _, r := range s {
		if !inString {
			if r == '"' {
				inString = true
			}
			out.WriteRune(r)
			continue
		}
		if escaped {
			escaped = false
			out.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			escaped = true
			out.WriteRune(r)
		case '"':
			inString = false
			out.WriteRune(r)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case '\t':
			out.WriteString(`\t`)
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// StripTrailingCommas removes commas that directly precede a closing brace
// or bracket.
func StripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// RepairTruncation attempts a structural repair of a length-truncated
// response: cut back to the last complete string, add a description field
// if none made it into the output, and close the unbalanced braces.
func RepairTruncation(s string) string {
	idx := strings.LastIndex(s, `"`)
	if idx < 0 {
		return s
	}
	repaired := s[:idx+1]

	depth := 0
	inString := false
	escaped := false
	for _, r := range repaired {
		if inString {
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	if inString {
		repaired += `"`
		inString = false
	}
	if !strings.Contains(repaired, `"description"`) && depth > 0 {
		repaired += `, "description": "Generated files"`
	}
	for ; depth > 0; depth-- {
		repaired += "}"
	}
	return repaired
}

var (
	pathFieldRe        = regexp.MustCompile(`"path"\s*:\s*"([^"]+)"`)
	descriptionFieldRe = regexp.MustCompile(`"description"\s*:\s*"([^"]*)"`)
	messageFieldRe     = regexp.MustCompile(`"message"\s*:\s*"([^"]*)"`)
	contentKeyRe       = regexp.MustCompile(`"content"\s*:\s*"`)
)

// scanContentValue manually extracts the value of the "content" field,
// honoring backslash escapes, so a usable content string survives even when
// the surrounding JSON is beyond repair.
func scanContentValue(s string) (string, bool) {
	loc := contentKeyRe.FindStringIndex(s)
	if loc == nil {
		return "", false
	}
	body := s[loc[1]:]

	var raw strings.Builder
	escaped := false
	closed := false
	for _, r := range body {
		if escaped {
			raw.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			raw.WriteRune(r)
			escaped = true
			continue
		}
		if r == '"' {
			closed = true
			break
		}
		raw.WriteRune(r)
	}
	_ = closed // a truncated value is still usable as-is

	var decoded string
	if err := json.Unmarshal([]byte(`"`+raw.String()+`"`), &decoded); err != nil {
		// The escapes themselves are broken; hand back the raw scan with the
		// common sequences replaced manually.
		decoded = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\"`, `"`, `\\`, `\`).Replace(raw.String())
	}
	return decoded, true
}

// ParseToolArgs parses one write_file invocation's argument string through
// the layered repair pipeline. truncated marks a response the endpoint
// flagged with finish_reason "length".
func ParseToolArgs(raw string, truncated bool) (types.GeneratedFile, error) {
	cleaned := StripFences(raw)

	// A result without both a path and a content key is not usable, no
	// matter how cleanly the surrounding JSON parses.
	hasContentKey := strings.Contains(cleaned, `"content"`)

	var args types.GeneratedFile
	if err := json.Unmarshal([]byte(cleaned), &args); err == nil && args.Path != "" && hasContentKey {
		return args, nil
	}

	repaired := cleaned
	if strings.Contains(repaired, "`") {
		repaired = ConvertBacktickStrings(repaired)
	}
	repaired = EscapeControlChars(repaired)
	if err := json.Unmarshal([]byte(repaired), &args); err == nil && args.Path != "" && hasContentKey {
		return args, nil
	}

	repaired = StripTrailingCommas(repaired)
	if err := json.Unmarshal([]byte(repaired), &args); err == nil && args.Path != "" && hasContentKey {
		return args, nil
	}

	if truncated {
		closed := RepairTruncation(repaired)
		if err := json.Unmarshal([]byte(closed), &args); err == nil && args.Path != "" && hasContentKey {
			return args, nil
		}
	}

	// Last resort: direct field extraction. The path field and a content key
	// marker are the minimum for a usable result.
	pathMatch := pathFieldRe.FindStringSubmatch(cleaned)
	content, hasContent := scanContentValue(cleaned)
	if pathMatch == nil || !hasContent {
		return types.GeneratedFile{}, ErrUnparseable
	}
	extracted := types.GeneratedFile{
		Path:    pathMatch[1],
		Content: content,
	}
	if descMatch := descriptionFieldRe.FindStringSubmatch(cleaned); descMatch != nil {
		extracted.Description = descMatch[1]
	}
	return extracted, nil
}

// ParsePreviewArgs extracts the completion message from a show_preview
// invocation's argument string. A miss just yields an empty message; the
// orchestrator substitutes the default.
func ParsePreviewArgs(raw string) string {
	var args struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(StripFences(raw)), &args); err == nil {
		return args.Message
	}
	if m := messageFieldRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

// wrapped keys some models put the files map under instead of "files"
var wrappedFileKeys = []string{"files", "result", "code", "data", "output"}

// ParseResponse parses a full model response expected to be a strict JSON
// object of either the code shape {type, files, description} or the chat
// shape {type, message}.
func ParseResponse(raw string, truncated bool) (*Response, error) {
	cleaned := StripFences(raw)

	attempts := []string{cleaned}

	repaired := cleaned
	if strings.Contains(repaired, "`") {
		repaired = ConvertBacktickStrings(repaired)
	}
	repaired = EscapeControlChars(repaired)
	attempts = append(attempts, repaired, StripTrailingCommas(repaired))
	if truncated {
		attempts = append(attempts, RepairTruncation(StripTrailingCommas(repaired)))
	}

	for _, attempt := range attempts {
		if resp, ok := decodeResponse(attempt); ok {
			return resp, nil
		}
	}
	return nil, ErrUnparseable
}

func decodeResponse(s string) (*Response, bool) {
	var resp Response
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return nil, false
	}
	if len(resp.Files) == 0 && resp.Message == "" {
		// The files map may be hiding under an alternate key.
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &wrapper); err == nil {
			for _, key := range wrappedFileKeys {
				rawFiles, ok := wrapper[key]
				if !ok {
					continue
				}
				var files map[string]string
				if err := json.Unmarshal(rawFiles, &files); err == nil && len(files) > 0 {
					resp.Files = files
					break
				}
			}
		}
	}
	if len(resp.Files) == 0 && resp.Message == "" {
		return nil, false
	}
	if resp.Type == "" {
		if len(resp.Files) > 0 {
			resp.Type = "code"
		} else {
			resp.Type = "chat"
		}
	}
	return &resp, true
}
