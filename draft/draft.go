// Package draft reads and writes lesson draft files.
//
// A draft is a Markdown file whose YAML front matter carries the record
// metadata and whose body is the lesson content:
//
//	---
//	key: as_10
//	title: Position sizing
//	preset: standard
//	keyTakeaways:
//	  - Risk a fixed fraction per trade
//	---
//
//	# Position sizing
//
//	## Part 1
//	...
//
// The body is taken verbatim apart from surrounding blank lines, so the
// length measured by the validator is the length written to the data file.
// With "templated: true" the body is raw template-literal text and its
// ${...} substitutions are written back unescaped.
package draft

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/lessonkit/lesson"
)

// ---------------------------------------------------------------------------
// Draft model
// ---------------------------------------------------------------------------

// Meta is the front matter of a draft.
type Meta struct {
	Key          string   `yaml:"key"`
	Title        string   `yaml:"title"`
	Preset       string   `yaml:"preset,omitempty"`
	KeyTakeaways []string `yaml:"keyTakeaways"`
	// Templated marks a body written as raw template-literal text whose
	// ${...} substitutions stay live in the data file.
	Templated bool `yaml:"templated,omitempty"`
}

// Draft is a parsed draft file.
type Draft struct {
	Meta
	// Content is the Markdown body.
	Content string
	// Path is the file the draft was loaded from, if any.
	Path string
}

// Record converts the draft into a lesson record.
func (d *Draft) Record() lesson.Record {
	return lesson.Record{
		Key:          d.Key,
		Title:        d.Title,
		Content:      d.Content,
		KeyTakeaways: d.KeyTakeaways,
		Templated:    d.Templated,
	}
}

// FromRecord builds a draft from an existing lesson record.
func FromRecord(rec lesson.Record) *Draft {
	return &Draft{
		Meta: Meta{
			Key:          rec.Key,
			Title:        rec.Title,
			KeyTakeaways: rec.KeyTakeaways,
			Templated:    rec.Templated,
		},
		Content: rec.Content,
	}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// frontmatterBlock matches a YAML front matter block at the start of the file.
var frontmatterBlock = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

// Load reads and parses a draft file.
func Load(path string) (*Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// Parse parses draft data.
func Parse(data []byte) (*Draft, error) {
	text := strings.TrimPrefix(string(data), "\ufeff")

	m := frontmatterBlock.FindStringSubmatchIndex(text)
	if m == nil {
		return nil, fmt.Errorf("missing front matter (expected a --- block with key and title)")
	}

	d := &Draft{}
	if err := yaml.Unmarshal([]byte(text[m[2]:m[3]]), &d.Meta); err != nil {
		return nil, fmt.Errorf("parsing front matter: %w", err)
	}
	d.Content = strings.Trim(strings.ReplaceAll(text[m[1]:], "\r\n", "\n"), "\n")
	d.Content = strings.TrimRight(d.Content, " \t\n")

	if err := d.check(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Draft) check() error {
	switch {
	case strings.TrimSpace(d.Key) == "":
		return fmt.Errorf("front matter: key is required")
	case strings.ContainsAny(d.Key, "\"'`\\\n"):
		return fmt.Errorf("front matter: key %q contains quote or newline characters", d.Key)
	case strings.TrimSpace(d.Title) == "":
		return fmt.Errorf("front matter: title is required")
	case strings.TrimSpace(d.Content) == "":
		return fmt.Errorf("draft body is empty")
	}
	for i, kt := range d.KeyTakeaways {
		if strings.TrimSpace(kt) == "" {
			return fmt.Errorf("front matter: keyTakeaways[%d] is empty", i)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sections
// ---------------------------------------------------------------------------

// Section is one "## " section of the body.
type Section struct {
	Heading string
	// Body excludes the heading line.
	Body string
}

// codeBlockFence matches fenced code blocks (``` or ~~~).
var codeBlockFence = regexp.MustCompile("(?s)```.*?```|~~~.*?~~~")

// sectionHeading matches level-two headings.
var sectionHeading = regexp.MustCompile(`(?m)^##[ \t]+.*$`)

// Sections splits the body on level-two headings outside fenced code.
// Text before the first heading is returned as a section with no heading.
func (d *Draft) Sections() []Section {
	text := d.Content
	codeRanges := codeBlockFence.FindAllStringIndex(text, -1)

	var delims [][]int
	for _, loc := range sectionHeading.FindAllStringIndex(text, -1) {
		if !insideRanges(loc[0], codeRanges) {
			delims = append(delims, loc)
		}
	}

	var out []Section
	if len(delims) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			out = append(out, Section{Body: body})
		}
		return out
	}
	if pre := strings.TrimSpace(text[:delims[0][0]]); pre != "" {
		out = append(out, Section{Body: pre})
	}
	for i, loc := range delims {
		end := len(text)
		if i+1 < len(delims) {
			end = delims[i+1][0]
		}
		out = append(out, Section{
			Heading: strings.TrimSpace(strings.TrimLeft(text[loc[0]:loc[1]], "#")),
			Body:    strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return out
}

// insideRanges returns true if pos falls within any of the given [start,end) ranges.
func insideRanges(pos int, ranges [][]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Marshaling
// ---------------------------------------------------------------------------

// Marshal serialises the draft back to Markdown with front matter.
func (d *Draft) Marshal() ([]byte, error) {
	fm, err := yaml.Marshal(&d.Meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimSpace(fm))
	buf.WriteString("\n---\n\n")
	buf.WriteString(d.Content)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// WriteFile serialises the draft and writes it to the given path.
func (d *Draft) WriteFile(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
