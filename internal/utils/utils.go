package utils

import (
	"path/filepath"
	"strings"
)

// DetermineLanguage maps a filename to the language identifier the code
// display widget expects.
func DetermineLanguage(filename string) string {
	lower := strings.ToLower(filename)
	switch filepath.Ext(lower) {
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	case ".svg":
		return "xml"
	default:
		base := filepath.Base(lower)
		if strings.Contains(base, "vite.config") || strings.Contains(base, "tailwind.config") || strings.Contains(base, "postcss.config") {
			return "javascript"
		}
		return "plaintext"
	}
}
