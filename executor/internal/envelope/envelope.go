// Package envelope decodes the JSON result envelope out of raw LLM
// responses. Models return JSON wrapped in markdown code blocks or embedded
// in prose even when told not to, so extraction is heuristic: strip fences
// first, then find the outermost balanced object.
package envelope

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/planloop"
)

var codeBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON returns the JSON fragment inside text. It prefers a fenced code
// block; otherwise it scans for the outermost balanced object, tracking
// string literals and escape sequences so braces inside strings do not
// confuse the depth counter.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if matches := codeBlockRegex.FindStringSubmatch(text); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

// ParseResult extracts and decodes the result envelope from a raw response.
func ParseResult(text string) (*planloop.Result, error) {
	raw := ExtractJSON(text)

	var result planloop.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, goerr.Wrap(err, "response is not a valid result envelope",
			goerr.V("response", truncate(text, 512)))
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
