// Package differ computes word-level change runs between two text snapshots.
package differ

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/xhad/driftrag/internal/models"
)

// Diff aligns the words of oldText and newText, ignoring case and
// whitespace, and returns only the changed material. Adjacent words of the
// same kind are merged into one run. Equivalent texts yield an empty slice.
func Diff(oldText, newText string) []models.ChangeRun {
	oldWords := strings.Fields(oldText)
	newWords := strings.Fields(newText)

	matcher := difflib.NewMatcherWithJunk(lower(oldWords), lower(newWords), false, nil)

	runs := []models.ChangeRun{}
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'd':
			runs = appendRun(runs, models.ChangeRemoved, oldWords[op.I1:op.I2])
		case 'i':
			runs = appendRun(runs, models.ChangeAdded, newWords[op.J1:op.J2])
		case 'r':
			runs = appendRun(runs, models.ChangeRemoved, oldWords[op.I1:op.I2])
			runs = appendRun(runs, models.ChangeAdded, newWords[op.J1:op.J2])
		}
	}

	return runs
}

// Equivalent reports whether a and b differ only in case or whitespace.
func Equivalent(a, b string) bool {
	aw, bw := strings.Fields(a), strings.Fields(b)
	if len(aw) != len(bw) {
		return false
	}
	for i := range aw {
		if !strings.EqualFold(aw[i], bw[i]) {
			return false
		}
	}
	return true
}

// appendRun merges words into the previous run when it has the same type.
func appendRun(runs []models.ChangeRun, kind models.ChangeType, words []string) []models.ChangeRun {
	if len(words) == 0 {
		return runs
	}
	text := strings.Join(words, " ")
	if n := len(runs); n > 0 && runs[n-1].Type == kind {
		runs[n-1].Text += " " + text
		return runs
	}
	return append(runs, models.ChangeRun{Type: kind, Text: text})
}

func lower(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
