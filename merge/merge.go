// Package merge compares freshly translated description strings with the
// ones already present in a language block, the way msgmerge reconciles a
// catalog with its template.
package merge

import (
	"sort"

	"github.com/minios-linux/lessonkit/translate"
)

// Label classifies one translated key against the existing block.
type Label string

const (
	LabelNew       Label = "new"
	LabelChanged   Label = "changed"
	LabelUnchanged Label = "unchanged"
)

// Change is one translated key with its label.
type Change struct {
	Key   string
	Text  string
	Old   string // previous value, empty for LabelNew
	Label Label
	// Fallback is set when Text is the untranslated source string.
	Fallback bool
}

// Diff labels each translation relative to existing (key -> current value
// in the target block; nil when the block does not exist yet). Output order
// follows translated. Keys present only in existing are returned as
// obsolete, sorted.
func Diff(existing map[string]string, translated []translate.Result) (changes []Change, obsolete []string) {
	seen := make(map[string]bool, len(translated))
	for _, r := range translated {
		seen[r.Key] = true
		c := Change{
			Key:      r.Key,
			Text:     r.Text,
			Fallback: r.Status == translate.StatusFallback,
		}
		old, ok := existing[r.Key]
		switch {
		case !ok:
			c.Label = LabelNew
		case old == r.Text:
			c.Old = old
			c.Label = LabelUnchanged
		default:
			c.Old = old
			c.Label = LabelChanged
		}
		changes = append(changes, c)
	}

	for k := range existing {
		if !seen[k] {
			obsolete = append(obsolete, k)
		}
	}
	sort.Strings(obsolete)
	return changes, obsolete
}

// Pending drops unchanged entries, leaving what a reviewer has to merge.
func Pending(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if c.Label != LabelUnchanged {
			out = append(out, c)
		}
	}
	return out
}

// Count tallies changes by label.
func Count(changes []Change) map[Label]int {
	n := make(map[Label]int, 3)
	for _, c := range changes {
		n[c.Label]++
	}
	return n
}
