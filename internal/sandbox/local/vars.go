package local

import (
	"regexp"
	"strings"
)

var assignmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:let|const|var)\s+(\w+)\s*=`),
	regexp.MustCompile(`(?m)^\s*(\w+)\s*=`),
}

// extractAssignmentTargets scans source for identifiers assigned via
// let/const/var or bare reassignment, so the post-execution snapshot
// knows which new names to re-query from the VM.
func extractAssignmentTargets(source string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, pattern := range assignmentPatterns {
		for _, match := range pattern.FindAllStringSubmatch(source, -1) {
			if len(match) < 2 {
				continue
			}
			name := match[1]
			if isReservedWord(name) || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

var jsReservedWords = map[string]bool{
	"break": true, "case": true, "catch": true, "continue": true,
	"debugger": true, "default": true, "delete": true, "do": true,
	"else": true, "finally": true, "for": true, "function": true,
	"if": true, "in": true, "instanceof": true, "new": true,
	"return": true, "switch": true, "this": true, "throw": true,
	"try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "let": true, "const": true,
	"class": true, "export": true, "extends": true, "import": true,
	"super": true, "yield": true, "true": true, "false": true,
	"null": true, "undefined": true,
	"print": true, "console": true, "context": true, "re": true,
	"llm_query": true, "llm_query_batched": true,
	"FINAL_VAR": true, "SHOW_VARS": true,
}

func isReservedWord(name string) bool {
	return jsReservedWords[name]
}

// isReservedIdentifier reports whether name is reserved per §3 of the
// REPL-state data model: identifiers beginning with underscore are
// never persisted.
func isReservedIdentifier(name string) bool {
	return strings.HasPrefix(name, "_")
}

// displayableType names the value's type the way SHOW_VARS reports it.
func displayableType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "undefined"
	default:
		return "object"
	}
}
