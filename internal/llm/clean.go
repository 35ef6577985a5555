package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes a surrounding markdown code fence (```json ... ```)
// from a model response.
func StripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop the language tag on the opening fence line.
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(t[:nl]); !strings.ContainsAny(tag, "{[") {
			t = t[nl+1:]
		}
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// CleanJSON extracts the first complete JSON object or array from a model
// response, ignoring code fences and prose around it. When no balanced value
// is found the stripped text is returned so the decoder reports the error.
func CleanJSON(text string) string {
	text = StripFences(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return text
	}
	open := text[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// DecodeJSON cleans a model response and decodes it into v. Decode failures
// wrap ErrParse.
func DecodeJSON(text string, v any) error {
	cleaned := CleanJSON(text)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", ErrParse, err)
	}
	return nil
}
