package store

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/thumbscan/internal/model"
)

// DiffDefects runs a line diff over the sorted defect lists of base and head.
func DiffDefects(base, head *model.Report) *model.ReportDiff {
	d := &model.ReportDiff{
		BaseID:  base.ID,
		HeadID:  head.ID,
		Added:   make([]string, 0),
		Removed: make([]string, 0),
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(asLines(base.Defects), asLines(head.Defects))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var unified strings.Builder
	for _, diff := range diffs {
		for _, id := range strings.Split(strings.TrimSuffix(diff.Text, "\n"), "\n") {
			if id == "" {
				continue
			}
			switch diff.Type {
			case diffmatchpatch.DiffInsert:
				d.Added = append(d.Added, id)
				unified.WriteString("+" + id + "\n")
			case diffmatchpatch.DiffDelete:
				d.Removed = append(d.Removed, id)
				unified.WriteString("-" + id + "\n")
			case diffmatchpatch.DiffEqual:
				unified.WriteString(" " + id + "\n")
			}
		}
	}
	d.Unified = unified.String()
	return d
}

func asLines(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return strings.Join(ids, "\n") + "\n"
}
