package container

import "regexp"

var assignmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:let|const|var)\s+(\w+)\s*=`),
	regexp.MustCompile(`(?m)^\s*(\w+)\s*=`),
}

// extractAssignmentTargets scans source for identifiers assigned via
// let/const/var or bare reassignment, the same heuristic the local
// backend uses, so both backends agree on which names a completion's
// history should expect to persist.
func extractAssignmentTargets(source string) []string {
	var names []string
	for _, pattern := range assignmentPatterns {
		for _, match := range pattern.FindAllStringSubmatch(source, -1) {
			if len(match) < 2 {
				continue
			}
			names = append(names, match[1])
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
	"null": true, "undefined": true, "eval": true, "arguments": true,
	"require": true, "module": true, "exports": true, "process": true,
	"print": true, "console": true, "re": true,
	"llm_query": true, "llm_query_batched": true,
	"FINAL_VAR": true, "SHOW_VARS": true,
}

func isReservedWord(name string) bool {
	return jsReservedWords[name]
}
