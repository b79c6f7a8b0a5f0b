package tracker

import (
	"strings"

	"Trendline/backend/go/internal/models"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineDiff computes a line-level LCS diff of old and new. Identical inputs yield an empty diff.
func LineDiff(old, new string) models.Diff {
	if old == new {
		return models.Diff{}
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	a, b, lines := dmp.DiffLinesToChars(terminate(old), terminate(new))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out models.Diff
	for _, d := range diffs {
		op := models.DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = models.DiffDelete
		case diffmatchpatch.DiffInsert:
			op = models.DiffInsert
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.Lines = append(out.Lines, models.DiffLine{Op: op, Text: strings.TrimSuffix(line, "\n")})
		}
	}
	return out
}

// terminate ends non-empty text with a newline so its last line compares equal to itself
// when text is appended after it. Empty text stays empty: it has no lines.
func terminate(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
