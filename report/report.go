// Package report analyses lesson records in the data file without changing it.
//
// For each selected key it reports how often the key literal occurs, whether
// the record can be located, its length and part count, and whether it meets
// the validation bounds.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"

	"github.com/minios-linux/lessonkit/lesson"
	"github.com/minios-linux/lessonkit/validate"
)

// Status is the verdict for one row.
type Status string

const (
	StatusPass      Status = "PASS"
	StatusFail      Status = "FAIL"
	StatusDuplicate Status = "DUP"
	StatusMissing   Status = "MISSING"
	StatusMalformed Status = "ERROR"
)

// Row is the analysis of one key.
type Row struct {
	Key         string
	Title       string
	Group       string
	Occurrences int
	Located     bool
	Chars       int
	Parts       int
	Status      Status
	Notes       []string
}

// Failed reports whether the row should fail a strict run.
func (r Row) Failed() bool { return r.Status != StatusPass }

// Select expands patterns against the keys found in the file. Patterns are
// doublestar globs ("as_*", "fx_{1,2,3}"); a pattern without glob syntax is
// kept even when it matches nothing, so missing keys are reported. No
// patterns selects every key.
func Select(keys, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return keys, nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid key pattern %q", p)
		}
		if !hasMeta(p) {
			add(p)
			continue
		}
		for _, k := range keys {
			if ok, _ := doublestar.Match(p, k); ok {
				add(k)
			}
		}
	}
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{\\")
}

// Analyze builds one row per key. A file that does not parse still gets
// occurrence counts; every row is then marked malformed.
func Analyze(src []byte, keys []string, b validate.Bounds) []Row {
	c, perr := lesson.Parse(src)

	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		r := Row{Key: key, Occurrences: lesson.Occurrences(src, key)}

		if perr != nil {
			r.Status = StatusMalformed
			r.Notes = append(r.Notes, perr.Error())
			rows = append(rows, r)
			continue
		}

		n := c.Count(key)
		if r.Occurrences > n {
			r.Notes = append(r.Notes, fmt.Sprintf("%d key literal(s) outside parsed records", r.Occurrences-n))
		}
		switch {
		case n == 0:
			r.Status = StatusMissing
			r.Notes = append(r.Notes, "not found")
		case n > 1:
			r.Status = StatusDuplicate
			r.Notes = append(r.Notes, fmt.Sprintf("duplicate: %d records share this key", n))
			// Measure the first occurrence so the row is still informative.
			for _, e := range c.Entries() {
				if e.Key == key {
					fill(&r, e, b)
					break
				}
			}
		default:
			e, _ := c.Lookup(key)
			r.Located = true
			res := fill(&r, e, b)
			if res.OK() {
				r.Status = StatusPass
			} else {
				r.Status = StatusFail
				for _, v := range res.Violations {
					r.Notes = append(r.Notes, v.String())
				}
			}
		}
		rows = append(rows, r)
	}
	return rows
}

func fill(r *Row, e *lesson.Entry, b validate.Bounds) validate.Result {
	res := validate.Check(e.Content, b)
	r.Title = e.Title
	r.Group = e.Group
	r.Chars = res.Chars
	r.Parts = res.Parts
	if e.Templated {
		r.Notes = append(r.Notes, "content uses ${} substitutions; length is of the raw literal")
	}
	return res
}

// Summary aggregates a set of rows.
type Summary struct {
	Total      int
	Passed     int
	Failed     int
	Duplicates []string
	Missing    []string
	Malformed  bool
}

// Summarize counts rows by status.
func Summarize(rows []Row) Summary {
	var s Summary
	s.Total = len(rows)
	for _, r := range rows {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusDuplicate:
			s.Failed++
			s.Duplicates = append(s.Duplicates, r.Key)
		case StatusMissing:
			s.Failed++
			s.Missing = append(s.Missing, r.Key)
		case StatusMalformed:
			s.Failed++
			s.Malformed = true
		default:
			s.Failed++
		}
	}
	sort.Strings(s.Duplicates)
	sort.Strings(s.Missing)
	return s
}

// Options controls Render.
type Options struct {
	Bounds validate.Bounds
	// NoColor disables ANSI colors.
	NoColor bool
	// Groups prints module comment headings between rows.
	Groups bool
}

// Render writes rows as a table followed by a summary.
func Render(w io.Writer, rows []Row, opts Options) {
	paint := func(attr color.Attribute) func(a ...any) string {
		c := color.New(attr)
		if opts.NoColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
		return c.SprintFunc()
	}
	green := paint(color.FgGreen)
	red := paint(color.FgRed)
	yellow := paint(color.FgYellow)
	blue := paint(color.FgBlue)

	statusText := func(s Status) string {
		cell := fmt.Sprintf("%-8s", s)
		switch s {
		case StatusPass:
			return green(cell)
		case StatusDuplicate, StatusMissing:
			return yellow(cell)
		default:
			return red(cell)
		}
	}

	fmt.Fprintf(w, "%s (chars %s, parts %s)\n", blue("Lesson Report"), opts.Bounds.CharRange(), opts.Bounds.PartRange())
	fmt.Fprintln(w, strings.Repeat("─", 72))
	fmt.Fprintf(w, "%-12s %-8s %-5s %-8s %-6s %s\n", "Key", "Status", "Occ", "Chars", "Parts", "Title")
	fmt.Fprintln(w, strings.Repeat("─", 72))

	group := ""
	for _, r := range rows {
		if opts.Groups && r.Group != "" && r.Group != group {
			group = r.Group
			fmt.Fprintf(w, "%s\n", blue("// "+group))
		}
		chars, parts := "-", "-"
		if r.Located || r.Status == StatusDuplicate {
			chars = fmt.Sprintf("%d", r.Chars)
			parts = fmt.Sprintf("%d", r.Parts)
		}
		fmt.Fprintf(w, "%-12s %s %-5d %-8s %-6s %s\n", r.Key, statusText(r.Status), r.Occurrences, chars, parts, truncate(r.Title, 36))
		for _, n := range r.Notes {
			fmt.Fprintf(w, "%-12s   %s\n", "", n)
		}
	}

	s := Summarize(rows)
	fmt.Fprintln(w, strings.Repeat("─", 72))
	fmt.Fprintf(w, "Total: %d  %s  %s\n", s.Total,
		green(fmt.Sprintf("passed: %d", s.Passed)),
		red(fmt.Sprintf("failed: %d", s.Failed)))
	if len(s.Duplicates) > 0 {
		fmt.Fprintf(w, "%s %s\n", yellow("Duplicate keys:"), strings.Join(s.Duplicates, ", "))
	}
	if len(s.Missing) > 0 {
		fmt.Fprintf(w, "%s %s\n", yellow("Missing keys:"), strings.Join(s.Missing, ", "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
