package adapter

import (
	"encoding/json"
	"log/slog"
)

// maxEmbeddedObject caps how large a brace-balanced candidate may grow
// before the scanner abandons it. Log lines mixing braces with megabytes of
// other output are not conversations.
const maxEmbeddedObject = 1 << 20

// ParseLog recovers conversation objects embedded in free-text log output.
// It scans for balanced top-level JSON objects (string- and escape-aware),
// attempts to decode each candidate, and promotes the ones that pass the
// conversation validity predicate.
func ParseLog(data []byte, origin string, logger *slog.Logger) []RawConversation {
	var out []RawConversation
	for _, candidate := range scanBalancedObjects(data) {
		var m map[string]any
		if err := json.Unmarshal(candidate, &m); err != nil {
			continue
		}
		if !IsConversation(m) {
			continue
		}
		if rc, ok := promote(m, origin); ok {
			out = append(out, rc)
		}
	}
	if len(out) > 0 {
		logger.Debug("recovered conversations from log text", "origin", origin, "count", len(out))
	}
	return out
}

// scanBalancedObjects returns every top-level {...} span in the input whose
// braces balance. Braces inside JSON strings are ignored.
func scanBalancedObjects(data []byte) [][]byte {
	var spans [][]byte

	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, c := range data {
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closing brace in log text
			}
			depth--
			if depth == 0 && start >= 0 {
				spans = append(spans, data[start:i+1])
				start = -1
			}
		}

		if start >= 0 && i-start > maxEmbeddedObject {
			// Abandon the runaway candidate and resume scanning.
			depth = 0
			start = -1
			inString = false
		}
	}

	return spans
}
