package orchestrator

import (
	"encoding/json"
	"fmt"
)

// Payload size caps for stored event input/output.
const (
	maxStringLen = 500
	maxListLen   = 20
)

// TruncatePayload renders a value as JSON with every string and array
// capped, applied depth-first through nested structures, so event rows
// stay bounded no matter how large a page or response was.
func TruncatePayload(v any) []byte {
	if v == nil {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		quoted, _ := json.Marshal(truncateString(fmt.Sprint(v)))
		return quoted
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}

	out, err := json.Marshal(truncateValue(decoded))
	if err != nil {
		return raw
	}
	return out
}

func truncateValue(v any) any {
	switch t := v.(type) {
	case string:
		return truncateString(t)
	case []any:
		if len(t) > maxListLen {
			t = t[:maxListLen]
		}
		for i := range t {
			t[i] = truncateValue(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = truncateValue(t[k])
		}
		return t
	default:
		return v
	}
}

func truncateString(s string) string {
	if len(s) <= maxStringLen {
		return s
	}
	// Back off to a rune boundary so the cut never splits a character.
	cut := maxStringLen
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
