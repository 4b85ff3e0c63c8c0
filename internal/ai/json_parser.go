package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled; responses are parsed on every merge.
var (
	// Matches ```json\n{...}\n```, ```{...}```, ``` json{...}``` and similar
	codeFenceRegex = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)^\s*//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// greedy so nested objects are captured whole
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// maxResponseSize bounds the text handed to the parser
const maxResponseSize = 1 << 20

// extractJSONObject returns the JSON object contained in a model response.
// Models wrap JSON in code fences, add trailing commas or surround it with
// prose; each strategy is tried in turn until one yields valid JSON:
//
//  1. the text as is
//  2. code fences removed
//  3. common syntax slips fixed
//  4. the outermost {...} cut out of mixed content
func extractJSONObject(text string) ([]byte, error) {
	if len(text) > maxResponseSize {
		return nil, fmt.Errorf("response exceeds size limit (%d > %d bytes)", len(text), maxResponseSize)
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	candidates := []string{trimmed}
	unfenced := removeCodeFences(trimmed)
	candidates = append(candidates, unfenced, cleanupJSON(unfenced))
	if obj := objectRegex.FindString(unfenced); obj != "" {
		candidates = append(candidates, obj, cleanupJSON(obj))
	}

	for _, c := range candidates {
		if isJSONObject(c) {
			return []byte(c), nil
		}
	}
	return nil, fmt.Errorf("no JSON object found in response: %s", truncate(trimmed, 200))
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}

// removeCodeFences strips markdown code fences, keeping the first fenced block
func removeCodeFences(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(text, "`") && strings.HasSuffix(text, "`") {
		return strings.TrimSpace(strings.Trim(text, "`"))
	}
	return text
}

// cleanupJSON fixes trailing commas, bare identifier keys and comments.
// Single quotes are left alone: converting them would break apostrophes in
// names such as O'Neill.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	return strings.TrimSpace(cleaned)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
