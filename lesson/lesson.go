// Package lesson reads the generated learning data file of the trading game.
//
// The file is a TypeScript module holding one large object literal keyed by
// lesson id:
//
//	export const learningContent = {
//	  // Module 1: Forex basics
//	  "fx_1": {
//	    title: "What moves a currency pair",
//	    content: `# ...
//	## Part 1
//	...`,
//	    keyTakeaways: [
//	      "...",
//	    ],
//	  },
//	  ...
//	};
//
// Parsing is structural: string and template literals, comments and bracket
// nesting are understood, so braces inside lesson prose never confuse the
// record boundaries. Any property whose value is an object literal with a
// string "content" field is treated as a lesson record.
package lesson

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// Record is one lesson as stored in the data file.
type Record struct {
	Key          string
	Title        string
	Content      string
	KeyTakeaways []string
	// Templated is set when Content is the raw text of a template literal
	// with ${...} substitutions. It is written back verbatim.
	Templated bool
}

// Span is a half-open byte range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Entry is a located lesson record.
type Entry struct {
	Record
	// Span covers the key literal through the record's closing brace. A
	// trailing comma, if any, is outside the span.
	Span Span
	// Group is the nearest module comment preceding the entry in its object.
	Group string
	// Style describes how the entry is formatted, so a replacement can be
	// rendered the same way.
	Style Style
}

// Collection is the ordered set of lesson entries found in a source file.
type Collection struct {
	src     []byte
	entries []*Entry
}

// ParseFile reads and parses a learning data file.
func ParseFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse scans TypeScript source for lesson records.
func Parse(src []byte) (*Collection, error) {
	c := &Collection{src: src}
	s := &scanner{src: src}

	for {
		s.skipSpace()
		if s.eof() {
			break
		}
		switch s.peek() {
		case '"', '\'':
			if _, err := s.readQuoted(); err != nil {
				return nil, &LocateError{Kind: ErrMalformedBlock, Err: err}
			}
		case '`':
			if _, err := s.readTemplate(); err != nil {
				return nil, &LocateError{Kind: ErrMalformedBlock, Err: err}
			}
		case '{':
			obj, ok, err := s.parseObject()
			if err != nil {
				return nil, &LocateError{Kind: ErrMalformedBlock, Err: err}
			}
			if ok {
				c.collect(obj)
			}
		default:
			s.pos++
		}
	}

	return c, nil
}

// collect walks an object tree and records every lesson-shaped property.
func (c *Collection) collect(obj *object) {
	for _, f := range obj.fields {
		if f.val.kind != kindObject {
			continue
		}
		if e, ok := c.toEntry(f); ok {
			c.entries = append(c.entries, e)
			continue
		}
		c.collect(f.val.obj)
	}
}

func (c *Collection) toEntry(f field) (*Entry, bool) {
	body := f.val.obj
	content, ok := body.lookup("content")
	if !ok || (content.val.kind != kindString && content.val.kind != kindTemplate) {
		return nil, false
	}

	e := &Entry{
		Record: Record{Key: f.key, Content: content.val.str, Templated: content.val.subst},
		Span:   Span{Start: f.keyStart, End: f.val.end},
		Group:  f.comment,
		Style:  detectStyle(c.src, f, body),
	}
	if title, ok := body.lookup("title"); ok && title.val.kind != kindObject {
		e.Title = title.val.str
	}
	if kt, ok := body.lookup("keyTakeaways"); ok && kt.val.kind == kindArray {
		for _, el := range kt.val.elems {
			e.KeyTakeaways = append(e.KeyTakeaways, el.str)
		}
	}
	return e, true
}

// Entries returns all lesson entries in source order.
func (c *Collection) Entries() []*Entry { return c.entries }

// Len returns the number of entries, duplicates included.
func (c *Collection) Len() int { return len(c.entries) }

// Keys returns the lesson keys in source order, without duplicates.
func (c *Collection) Keys() []string {
	seen := make(map[string]bool, len(c.entries))
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Count returns how many entries carry the given key.
func (c *Collection) Count(key string) int {
	n := 0
	for _, e := range c.entries {
		if e.Key == key {
			n++
		}
	}
	return n
}

// Duplicates returns the sorted keys that occur more than once.
func (c *Collection) Duplicates() []string {
	counts := make(map[string]int)
	for _, e := range c.entries {
		counts[e.Key]++
	}
	var dups []string
	for k, n := range counts {
		if n > 1 {
			dups = append(dups, k)
		}
	}
	sort.Strings(dups)
	return dups
}

// Lookup returns the single entry for key. It fails with ErrKeyNotFound when
// the key is absent and with ErrDuplicateKey when it occurs more than once.
func (c *Collection) Lookup(key string) (*Entry, error) {
	var found *Entry
	n := 0
	for _, e := range c.entries {
		if e.Key == key {
			found = e
			n++
		}
	}
	switch n {
	case 0:
		return nil, &LocateError{Key: key, Kind: ErrKeyNotFound}
	case 1:
		return found, nil
	default:
		return nil, &LocateError{Key: key, Kind: ErrDuplicateKey, Count: n}
	}
}

// Next returns the entry following e in source order, or nil.
func (c *Collection) Next(e *Entry) *Entry {
	for i, x := range c.entries {
		if x == e && i+1 < len(c.entries) {
			return c.entries[i+1]
		}
	}
	return nil
}

// Text returns the raw source of an entry.
func (c *Collection) Text(e *Entry) string {
	return string(c.src[e.Span.Start:e.Span.End])
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrKeyNotFound means the lesson key literal does not occur.
	ErrKeyNotFound = errors.New("lesson key not found")
	// ErrMarkerNotFound means a secondary anchor (next key, keyTakeaways:)
	// needed by a locate strategy is missing.
	ErrMarkerNotFound = errors.New("marker not found")
	// ErrDuplicateKey means the lesson key occurs more than once.
	ErrDuplicateKey = errors.New("duplicate lesson key")
	// ErrMalformedBlock means the record could not be delimited.
	ErrMalformedBlock = errors.New("malformed block")
)

// LocateError describes a failed lookup. It matches its Kind with errors.Is.
type LocateError struct {
	Key    string
	Kind   error
	Marker string
	Count  int
	Err    error
}

func (e *LocateError) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Key)
	}
	if e.Marker != "" {
		msg += fmt.Sprintf(" (missing %s)", e.Marker)
	}
	if e.Count > 1 {
		msg += fmt.Sprintf(" (%d occurrences)", e.Count)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LocateError) Is(target error) bool { return target == e.Kind }

func (e *LocateError) Unwrap() error { return e.Err }
