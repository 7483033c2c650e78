package core

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text data
)

// IsText reports whether data looks like text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 → binary
//  3. >10% non-printable control chars → binary
func IsText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data[:min(len(data), BinarySampleSize)]
	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if (b < 32 && b != '\t' && b != '\n' && b != '\r') || b == 127 {
			nonPrintable++
		}
	}
	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// UnifiedDiff returns a patch turning the stored blob into local, labelled
// with id and localName. It returns "" when both are identical.
func UnifiedDiff(id, localName string, stored, local []byte) string {
	if bytes.Equal(stored, local) {
		return ""
	}
	if !IsText(stored) || !IsText(local) {
		return fmt.Sprintf("Binary data %s and %s differ\n", id, localName)
	}

	dmp := diffmatchpatch.New()
	storedStr, localStr := string(stored), string(local)
	a, b, lines := dmp.DiffLinesToChars(storedStr, localStr)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	patches := dmp.PatchMake(storedStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- stored/%s\n", id)
	fmt.Fprintf(&out, "+++ %s\n", localName)
	out.WriteString(dmp.PatchToText(patches))
	return out.String()
}

// Diff compares the stored blob id with local.
func (m *Manager) Diff(id, localName string, local []byte) (string, error) {
	stored, err := m.Retrieve(id)
	if err != nil {
		return "", err
	}
	return UnifiedDiff(id, localName, stored, local), nil
}
