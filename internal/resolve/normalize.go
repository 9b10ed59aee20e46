// Package resolve maps a noisy scanned string to exactly one batch via an
// ordered, deterministic set of matching strategies.
package resolve

import (
	"encoding/json"
	"regexp"
	"strings"
)

// anchorIDPattern matches the `"anchorId":"<value>"`-shaped substring embedded
// in scanned code payloads, tolerating whitespace around the colon.
var anchorIDPattern = regexp.MustCompile(`"anchorId"\s*:\s*"([^"]+)"`)

// strayRunes are the punctuation runes scanners commonly bolt onto an
// otherwise clean identifier.
const strayRunes = "\"'`{}[]()<> \t\r\n"

// Normalization method names recorded in the scan log.
const (
	methodAnchorJSON = "normalize_anchor_json"
	methodStrip      = "normalize_strip"
)

// Normalize applies the ordered input transforms to a raw scanned string and
// returns the working token plus the method that produced it. The token is
// empty when nothing usable remains.
//
// The transforms are pure: identical input always yields identical output.
func Normalize(raw string) (token, method string) {
	if m := anchorIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], methodAnchorJSON
	}
	return strings.Trim(raw, strayRunes), methodStrip
}

// embeddedIdentifiers is the structured-data fallback: when the raw string
// parses as JSON, the embedded identifiers are extracted for matching in
// fixed priority order (anchor id, then batch id, then batch number).
type embeddedIdentifiers struct {
	AnchorID    string
	BatchID     string
	BatchNumber string
}

// parseEmbedded attempts to parse the raw string as a structured payload.
// Both the wire-format camelCase keys and the storage-format snake_case keys
// are accepted; camelCase wins when both appear.
func parseEmbedded(raw string) (embeddedIdentifiers, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return embeddedIdentifiers{}, false
	}

	ids := embeddedIdentifiers{
		AnchorID:    stringField(doc, "anchorId", "anchor_id"),
		BatchID:     stringField(doc, "batchId", "batch_id"),
		BatchNumber: stringField(doc, "batchNumber", "batch_number"),
	}
	if ids.AnchorID == "" && ids.BatchID == "" && ids.BatchNumber == "" {
		return embeddedIdentifiers{}, false
	}
	return ids, true
}

func stringField(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := doc[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
