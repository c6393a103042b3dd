package llm

import (
	"encoding/json"
	"strings"
)

const (
	rawTextKey     = "analysis"
	rawResponseKey = "raw_response"
)

// ParsePayload decodes a provider reply into a payload. Replies that are not a
// JSON object are wrapped with WrapRaw.
func ParsePayload(content string) Payload {
	text := stripCodeFence(strings.TrimSpace(content))
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return WrapRaw(content)
	}
	return out
}

// WrapRaw stores unparseable provider text as an unstructured payload.
func WrapRaw(content string) Payload {
	return Payload{rawTextKey: content, rawResponseKey: true}
}

// IsUnstructured reports whether p was produced by WrapRaw.
func IsUnstructured(p Payload) bool {
	if p == nil {
		return false
	}
	flag, ok := p[rawResponseKey].(bool)
	return ok && flag
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
