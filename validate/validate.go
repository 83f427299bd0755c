// Package validate checks lesson content against length and structure bounds.
//
// A lesson body must stay within a character range and contain a bounded
// number of "## Part N" section headings. Length is measured in UTF-16 code
// units, the unit JavaScript's String.length reports in the game.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf16"
)

// Bounds is an inclusive validation range. MaxChars == 0 means no upper
// limit on length.
type Bounds struct {
	MinChars int `yaml:"min_chars"`
	MaxChars int `yaml:"max_chars"`
	MinParts int `yaml:"min_parts"`
	MaxParts int `yaml:"max_parts"`
}

// Unbounded reports whether the length range has no upper limit.
func (b Bounds) Unbounded() bool { return b.MaxChars == 0 }

// CharRange formats the length range for messages, e.g. "8000-13000" or "6000+".
func (b Bounds) CharRange() string {
	if b.Unbounded() {
		return fmt.Sprintf("%d+", b.MinChars)
	}
	return fmt.Sprintf("%d-%d", b.MinChars, b.MaxChars)
}

// PartRange formats the part range for messages.
func (b Bounds) PartRange() string {
	return fmt.Sprintf("%d-%d", b.MinParts, b.MaxParts)
}

// Sanity checks that the bounds describe a non-empty range.
func (b Bounds) Sanity() error {
	switch {
	case b.MinChars < 0 || b.MaxChars < 0 || b.MinParts < 0 || b.MaxParts < 0:
		return fmt.Errorf("bounds must not be negative")
	case !b.Unbounded() && b.MaxChars < b.MinChars:
		return fmt.Errorf("max_chars %d is below min_chars %d", b.MaxChars, b.MinChars)
	case b.MaxParts < b.MinParts:
		return fmt.Errorf("max_parts %d is below min_parts %d", b.MaxParts, b.MinParts)
	}
	return nil
}

// Built-in presets.
var (
	Standard = Bounds{MinChars: 8000, MaxChars: 13000, MinParts: 5, MaxParts: 9}
	Extended = Bounds{MinChars: 6000, MaxChars: 0, MinParts: 5, MaxParts: 9}
)

// Presets maps preset names to bounds.
var Presets = map[string]Bounds{
	"standard": Standard,
	"extended": Extended,
}

// Preset looks up a named preset in extra first, then in the built-ins.
func Preset(name string, extra map[string]Bounds) (Bounds, error) {
	if b, ok := extra[name]; ok {
		return b, nil
	}
	if b, ok := Presets[name]; ok {
		return b, nil
	}
	names := make([]string, 0, len(Presets)+len(extra))
	for n := range Presets {
		names = append(names, n)
	}
	for n := range extra {
		if _, dup := Presets[n]; !dup {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return Bounds{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(names, ", "))
}

var partRe = regexp.MustCompile(`(?m)^##\s+Part\s+\d+\b`)

// CountParts returns the number of lines starting with a "## Part N" heading.
func CountParts(s string) int {
	return len(partRe.FindAllStringIndex(s, -1))
}

// Length returns the length of s in UTF-16 code units.
func Length(s string) int {
	n := 0
	for _, r := range s {
		if w := utf16.RuneLen(r); w > 0 {
			n += w
		} else {
			n++ // invalid UTF-8 decodes to U+FFFD
		}
	}
	return n
}

// Metric names a validated quantity.
type Metric string

const (
	MetricChars Metric = "characters"
	MetricParts Metric = "parts"
)

// Violation is one failed check.
type Violation struct {
	Metric Metric
	Got    int
	Range  string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %d outside %s", v.Metric, v.Got, v.Range)
}

// Result holds the measured values and any violations.
type Result struct {
	Chars      int
	Parts      int
	Bounds     Bounds
	Violations []Violation
}

// OK reports whether all checks passed.
func (r Result) OK() bool { return len(r.Violations) == 0 }

// Err returns nil when the result passed, otherwise a *ValidationError.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Result: r}
}

// Check measures s and compares it against b.
func Check(s string, b Bounds) Result {
	r := Result{Chars: Length(s), Parts: CountParts(s), Bounds: b}
	if r.Chars < b.MinChars || (!b.Unbounded() && r.Chars > b.MaxChars) {
		r.Violations = append(r.Violations, Violation{Metric: MetricChars, Got: r.Chars, Range: b.CharRange()})
	}
	if r.Parts < b.MinParts || r.Parts > b.MaxParts {
		r.Violations = append(r.Violations, Violation{Metric: MetricParts, Got: r.Parts, Range: b.PartRange()})
	}
	return r
}

// ValidationError reports a failed Check.
type ValidationError struct {
	Key    string
	Result Result
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Result.Violations))
	for i, v := range e.Result.Violations {
		msgs[i] = v.String()
	}
	prefix := "validation failed"
	if e.Key != "" {
		prefix = fmt.Sprintf("validation failed for %q", e.Key)
	}
	return prefix + ": " + strings.Join(msgs, "; ")
}

// Has reports whether the error includes a violation of metric m.
func (e *ValidationError) Has(m Metric) bool {
	for _, v := range e.Result.Violations {
		if v.Metric == m {
			return true
		}
	}
	return false
}
