package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractJSON pulls a JSON value out of free-form model text. It tolerates
// markdown code fences, Python-literal booleans/null, and trailing commas,
// and falls back to scraping the first balanced object or array. Returns nil
// when nothing parseable is found; it never panics on arbitrary input.
func ExtractJSON(text string) any {
	text = stripCodeBlock(text)

	if v, ok := tryParse(text); ok {
		return v
	}

	normalized := normalizeLiterals(text)
	if v, ok := tryParse(normalized); ok {
		return v
	}

	if span := firstBalancedSpan(normalized); span != "" {
		if v, ok := tryParse(span); ok {
			return v
		}
	}
	return nil
}

// DecodeJSON re-marshals an ExtractJSON value into a typed target.
func DecodeJSON(v any, target any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

var (
	codeBlockRe     = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	pyNoneRe        = regexp.MustCompile(`\bNone\b`)
	pyTrueRe        = regexp.MustCompile(`\bTrue\b`)
	pyFalseRe       = regexp.MustCompile(`\bFalse\b`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func normalizeLiterals(s string) string {
	s = pyNoneRe.ReplaceAllString(s, "null")
	s = pyTrueRe.ReplaceAllString(s, "true")
	s = pyFalseRe.ReplaceAllString(s, "false")
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

func tryParse(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// firstBalancedSpan returns the first balanced {...} or [...] substring,
// honoring string literals and escapes, or "" when none closes.
func firstBalancedSpan(s string) string {
	start := -1
	var opener, closer byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			opener = s[i]
			if opener == '{' {
				closer = '}'
			} else {
				closer = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
