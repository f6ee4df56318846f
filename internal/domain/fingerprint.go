package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable hash over the mutable text fields of a feed
// record: title, summary, and category. Two records with identical text
// always produce the same fingerprint regardless of unrelated field changes
// such as GPS corrections. Used purely for change detection, not security.
func Fingerprint(raw RawEvent) string {
	content := strings.Join([]string{raw.Name, raw.Summary, raw.Type}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
