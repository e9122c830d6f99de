package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// Targeted repairs for the handful of mistakes LLMs make over and over when
// writing React components. These are anchored pattern fixes, not a parser:
// anything that does not match passes through untouched, and running the
// sanitizer twice yields the same output as running it once.

// A capitalized identifier opening a body at the start of a line, with no
// function keyword: "export default Footer() {" / "Footer() {".
var missingFunctionRe = regexp.MustCompile(`(?m)^(\s*)(export\s+default\s+)?([A-Z][A-Za-z0-9_]*)\s*\(([^)]*)\)\s*\{\s*$`)

// JSX attribute opened with one quote style and closed with the other.
var (
	mixedQuoteOpenSingleRe = regexp.MustCompile(`(\w+)='([^'"]*)"`)
	mixedQuoteOpenDoubleRe = regexp.MustCompile(`(\w+)="([^'"]*)'`)
	classNameSingleRe      = regexp.MustCompile(`className='([^'"]*)'`)
)

// Sanitize repairs common LLM code-generation mistakes in JS/JSX source.
func Sanitize(code string) string {
	fixed := missingFunctionRe.ReplaceAllString(code, "$1${2}function $3($4) {")
	fixed = mixedQuoteOpenSingleRe.ReplaceAllString(fixed, `$1="$2"`)
	fixed = mixedQuoteOpenDoubleRe.ReplaceAllString(fixed, `$1="$2"`)
	fixed = classNameSingleRe.ReplaceAllString(fixed, `className="$1"`)
	return fixed
}

// Hooks checked for use-without-import, in canonical import order.
var knownHooks = []string{
	"useState",
	"useEffect",
	"useContext",
	"useReducer",
	"useCallback",
	"useMemo",
	"useRef",
	"useLayoutEffect",
}

var hookCallRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(knownHooks))
	for _, hook := range knownHooks {
		res[hook] = regexp.MustCompile(`\b` + hook + `\s*\(`)
	}
	return res
}()

var (
	namedReactImportRe   = regexp.MustCompile(`import\s+(React\s*,\s*)?\{([^}]*)\}\s+from\s+['"]react['"];?`)
	defaultReactImportRe = regexp.MustCompile(`import\s+React\s+from\s+['"]react['"];?`)
)

// EnsureHookImports inserts or augments the react import so every hook the
// code calls is actually imported. Existing imported names are preserved;
// nothing is rewritten when no hook is missing.
func EnsureHookImports(code string) string {
	imported := map[string]bool{}
	named := namedReactImportRe.FindStringSubmatch(code)
	if named != nil {
		for _, name := range strings.Split(named[2], ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				imported[name] = true
			}
		}
	}

	var missing []string
	for _, hook := range knownHooks {
		if !imported[hook] && hookCallRes[hook].MatchString(code) {
			missing = append(missing, hook)
		}
	}
	if len(missing) == 0 {
		return code
	}

	if named != nil {
		existing := strings.TrimSpace(named[2])
		merged := existing
		if merged != "" {
			merged += ", "
		}
		merged += strings.Join(missing, ", ")
		replacement := fmt.Sprintf("import %s{ %s } from \"react\";", named[1], merged)
		return strings.Replace(code, named[0], replacement, 1)
	}

	if loc := defaultReactImportRe.FindStringIndex(code); loc != nil {
		replacement := fmt.Sprintf("import React, { %s } from \"react\";", strings.Join(missing, ", "))
		return code[:loc[0]] + replacement + code[loc[1]:]
	}

	return fmt.Sprintf("import { %s } from \"react\";\n", strings.Join(missing, ", ")) + code
}
