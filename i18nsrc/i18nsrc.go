// Package i18nsrc reads translation blocks from the game's i18n source file.
//
// The file holds one block per language:
//
//	const resources = {
//	  en: {
//	    translation: {
//	      "desc_EURUSD": "The most traded currency pair...",
//	      ...
//	    },
//	  },
//	  de: { translation: { ... } },
//	};
//
// Only the block of the requested language is searched, so keys with the
// same name in other languages never leak into the result.
package i18nsrc

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/minios-linux/lessonkit/lesson"
)

var (
	// ErrBlockNotFound means no "<lang>: { translation: {" marker exists.
	ErrBlockNotFound = errors.New("translation block not found")
	// ErrUnbalanced means the block's braces do not close.
	ErrUnbalanced = errors.New("unbalanced translation block")
)

// Span is a half-open byte range of the source.
type Span struct {
	Start int
	End   int
}

// Entry is one key/value pair of a translation block.
type Entry struct {
	Key   string
	Value string
}

var langCode = `[A-Za-z]{2,3}(?:[-_][A-Za-z0-9]{2,8})*`

var blockRe = regexp.MustCompile(`(?:^|[^\w$])(["']?)(` + langCode + `)(["']?)\s*:\s*\{\s*["']?translation["']?\s*:\s*\{`)

// ReadFile reads the i18n source file.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Block returns the span of lang's translation object, from its opening
// brace through its closing brace.
func Block(src []byte, lang string) (Span, error) {
	for _, m := range blockRe.FindAllSubmatchIndex(src, -1) {
		if string(src[m[2]:m[3]]) != string(src[m[6]:m[7]]) {
			continue
		}
		if string(src[m[4]:m[5]]) != lang {
			continue
		}
		open := m[1] - 1
		end, err := lesson.MatchBrace(src, open)
		if err != nil {
			return Span{}, fmt.Errorf("%w for %q: %v", ErrUnbalanced, lang, err)
		}
		return Span{Start: open, End: end + 1}, nil
	}
	return Span{}, fmt.Errorf("%w: %q", ErrBlockNotFound, lang)
}

// Languages lists the language codes that have a translation block, in
// source order.
func Languages(src []byte) []string {
	var langs []string
	for _, m := range blockRe.FindAllSubmatchIndex(src, -1) {
		if string(src[m[2]:m[3]]) != string(src[m[6]:m[7]]) {
			continue
		}
		langs = append(langs, string(src[m[4]:m[5]]))
	}
	return langs
}

func entryRe(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[\s,{])(["']?)(` + regexp.QuoteMeta(prefix) + `[\w$.-]*)(["']?)\s*:\s*` +
		`("(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*'|` + "`(?:[^`\\\\]|\\\\.)*`" + `)`)
}

// Descriptions extracts the entries whose key starts with prefix from lang's
// block, in source order, with values unescaped.
func Descriptions(src []byte, lang, prefix string) ([]Entry, error) {
	span, err := Block(src, lang)
	if err != nil {
		return nil, err
	}
	block := src[span.Start:span.End]

	var entries []Entry
	for _, m := range entryRe(prefix).FindAllSubmatchIndex(block, -1) {
		if string(block[m[2]:m[3]]) != string(block[m[6]:m[7]]) {
			continue
		}
		key := string(block[m[4]:m[5]])
		val, err := lesson.Unquote(string(block[m[8]:m[9]]))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", lang, key, err)
		}
		entries = append(entries, Entry{Key: key, Value: val})
	}
	return entries, nil
}

// Map converts entries to a key/value map.
func Map(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}
