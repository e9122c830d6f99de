package project

import (
	"regexp"
	"strings"

	"webforge_server/internal/types"
)

// ProjectTree maps a path relative to the project root to file content. It
// is the mountable directory tree the execution sandbox consumes.
type ProjectTree map[string]string

// The generated app only ever contains /App.js, /App.css (or /styles.css)
// and files under /components/. Expand turns that sparse set into a
// complete, buildable Vite + React + Tailwind project.

const packageJSON = `{
  "name": "webforge-app",
  "private": true,
  "version": "0.0.0",
  "type": "module",
  "scripts": {
    "dev": "vite",
    "build": "vite build",
    "preview": "vite preview"
  },
  "dependencies": {
    "react": "^18.2.0",
    "react-dom": "^18.2.0"
  },
  "devDependencies": {
    "@vitejs/plugin-react": "^4.2.0",
    "autoprefixer": "^10.4.16",
    "postcss": "^8.4.32",
    "tailwindcss": "^3.4.0",
    "vite": "^5.0.0"
  }
}
`

const viteConfig = `import { defineConfig } from "vite";
import react from "@vitejs/plugin-react";

export default defineConfig({
  plugins: [react()],
  server: {
    host: true,
  },
});
`

const tailwindConfig = `/** @type {import('tailwindcss').Config} */
export default {
  content: ["./index.html", "./src/**/*.{js,jsx}"],
  theme: {
    extend: {},
  },
  plugins: [],
};
`

const postcssConfig = `export default {
  plugins: {
    tailwindcss: {},
    autoprefixer: {},
  },
};
`

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>WebForge App</title>
  </head>
  <body>
    <div id="root"></div>
    <script type="module" src="/src/main.jsx"></script>
  </body>
</html>
`

const mainEntry = `import React from "react";
import ReactDOM from "react-dom/client";
import App from "./App.jsx";
import "./index.css";

ReactDOM.createRoot(document.getElementById("root")).render(
  <React.StrictMode>
    <App />
  </React.StrictMode>
);
`

const tailwindBase = `@tailwind base;
@tailwind components;
@tailwind utilities;
`

const placeholderApp = `export default function App() {
  return (
    <div style={{ padding: "2rem", fontFamily: "sans-serif" }}>
      <h1>Nothing here yet</h1>
      <p>Describe the app you want to build and the files will show up here.</p>
    </div>
  );
}
`

var componentImportRe = regexp.MustCompile(`(from\s*)(['"])(\./components/[A-Za-z0-9_./-]+)(['"])`)

// rewriteComponentImports normalizes "./components/Name" and
// "./components/Name.js" import paths to "./components/Name.jsx", matching
// the rename applied when component files are copied into the tree. It runs
// on every copied file, not only the App entry, since components may import
// siblings through the same prefix.
func rewriteComponentImports(src string) string {
	return componentImportRe.ReplaceAllStringFunc(src, func(match string) string {
		parts := componentImportRe.FindStringSubmatch(match)
		imported := parts[3]
		if strings.HasSuffix(imported, ".jsx") || strings.HasSuffix(imported, ".css") {
			return match
		}
		imported = strings.TrimSuffix(imported, ".js") + ".jsx"
		return parts[1] + parts[2] + imported + parts[4]
	})
}

// Expand builds a complete project tree from the sparse user file set. It is
// pure and deterministic: the input is never mutated, and the same input
// always yields a byte-identical tree. Top-level files other than /App.js,
// /App.css, /styles.css and /components/* are deliberately ignored.
func Expand(userFiles types.FileSet) ProjectTree {
	tree := ProjectTree{
		"package.json":       packageJSON,
		"vite.config.js":     viteConfig,
		"tailwind.config.js": tailwindConfig,
		"postcss.config.js":  postcssConfig,
		"index.html":         indexHTML,
		"src/main.jsx":       mainEntry,
	}

	userCSS := ""
	if css, ok := userFiles["/App.css"]; ok {
		userCSS = css
	} else if css, ok := userFiles["/styles.css"]; ok {
		userCSS = css
	}
	tree["src/index.css"] = tailwindBase + "\n" + userCSS

	if app, ok := userFiles["/App.js"]; ok {
		tree["src/App.jsx"] = rewriteComponentImports(app)
	} else {
		tree["src/App.jsx"] = placeholderApp
	}

	for p, content := range userFiles {
		name, ok := strings.CutPrefix(p, "/components/")
		if !ok || name == "" || strings.Contains(name, "/") {
			continue
		}
		if strings.HasSuffix(name, ".js") {
			name = strings.TrimSuffix(name, ".js") + ".jsx"
		}
		tree["src/components/"+name] = rewriteComponentImports(content)
	}

	return tree
}
