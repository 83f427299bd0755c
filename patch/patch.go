// Package patch writes translated description strings as review artifacts
// under the output directory:
//
//	descriptions_<lang>.ts   generated module exporting the mapping
//	descriptions_<lang>.txt  key/value lines to paste into src/i18n.ts
//	descriptions_all.json    every language, when more than one was run
//
// Nothing here touches the i18n source itself.
package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minios-linux/lessonkit/lesson"
	"github.com/minios-linux/lessonkit/merge"
	"github.com/minios-linux/lessonkit/translate"
)

// AllFileName is the combined JSON file name.
const AllFileName = "descriptions_all.json"

// Language is the translated output for one target language.
type Language struct {
	Lang    string
	Label   string // display label, e.g. "de (German, Deutsch)"
	Results []translate.Result
	// Existing holds the current values of the target block in the i18n
	// source, or nil when the language has no block yet.
	Existing map[string]string
	// Partial marks output of an interrupted run.
	Partial bool
	// Total is the number of source strings; used for partial headers.
	Total int
}

// Written describes the files produced for one language.
type Written struct {
	Lang     string
	TSPath   string
	TXTPath  string
	Counts   map[merge.Label]int
	Obsolete []string
	Fallback int
}

// TSName returns the module file name for lang.
func TSName(lang string) string { return "descriptions_" + lang + ".ts" }

// TXTName returns the patch file name for lang.
func TXTName(lang string) string { return "descriptions_" + lang + ".txt" }

// ---------------------------------------------------------------------------
// Writing
// ---------------------------------------------------------------------------

// Write produces the per-language files for each entry of langs and, when
// more than one language is given, the combined JSON file. It returns the
// per-language summaries and the JSON path ("" when not written).
func Write(dir string, langs []Language) ([]Written, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating directory: %w", err)
	}

	var out []Written
	for _, l := range langs {
		w, err := WriteLanguage(dir, l)
		if err != nil {
			return out, "", err
		}
		out = append(out, *w)
	}

	if len(langs) < 2 {
		return out, "", nil
	}
	path := filepath.Join(dir, AllFileName)
	data, err := MarshalAll(langs)
	if err != nil {
		return out, "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return out, "", fmt.Errorf("writing %s: %w", path, err)
	}
	return out, path, nil
}

// WriteLanguage writes descriptions_<lang>.ts and descriptions_<lang>.txt.
func WriteLanguage(dir string, l Language) (*Written, error) {
	changes, obsolete := merge.Diff(l.Existing, l.Results)
	w := &Written{
		Lang:     l.Lang,
		TSPath:   filepath.Join(dir, TSName(l.Lang)),
		TXTPath:  filepath.Join(dir, TXTName(l.Lang)),
		Counts:   merge.Count(changes),
		Obsolete: obsolete,
	}
	_, _, w.Fallback = translate.Counts(l.Results)

	if err := os.WriteFile(w.TSPath, Module(l), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", w.TSPath, err)
	}
	if err := os.WriteFile(w.TXTPath, Patch(l, changes, obsolete), 0644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", w.TXTPath, err)
	}
	return w, nil
}

// ---------------------------------------------------------------------------
// Formats
// ---------------------------------------------------------------------------

func header(b *bytes.Buffer, l Language, what string) {
	label := l.Label
	if label == "" {
		label = l.Lang
	}
	fmt.Fprintf(b, "// %s: %s\n", what, label)
	fmt.Fprintf(b, "// Generated by lessonkit translate-desc. Review before merging into the i18n source.\n")
	if l.Partial {
		fmt.Fprintf(b, "// PARTIAL: interrupted after %d of %d strings.\n", len(l.Results), l.Total)
	}
}

// Module renders the generated TypeScript module for l.
func Module(l Language) []byte {
	var b bytes.Buffer
	header(&b, l, "Translated descriptions")
	b.WriteString("\nexport const descriptions: Record<string, string> = {\n")
	for _, r := range l.Results {
		fmt.Fprintf(&b, "  %s: %s,", lesson.Quote(r.Key, '"'), lesson.Quote(r.Text, '"'))
		if r.Status == translate.StatusFallback {
			b.WriteString(" // untranslated (fallback)")
		}
		b.WriteByte('\n')
	}
	b.WriteString("};\n\nexport default descriptions;\n")
	return b.Bytes()
}

// Patch renders the manual-merge patch: one `"key": "value",` line per new
// or changed key, annotated with its label. Unchanged keys are omitted.
func Patch(l Language, changes []merge.Change, obsolete []string) []byte {
	var b bytes.Buffer
	header(&b, l, "Patch for the "+l.Lang+".translation block")

	n := merge.Count(changes)
	pending := merge.Pending(changes)
	fallback := 0
	for _, c := range pending {
		if c.Fallback {
			fallback++
		}
	}
	fmt.Fprintf(&b, "// %d new, %d changed, %d untranslated; %d unchanged omitted\n\n",
		n[merge.LabelNew], n[merge.LabelChanged], fallback, n[merge.LabelUnchanged])

	for _, c := range pending {
		marks := []string{string(c.Label)}
		if c.Fallback {
			marks = append(marks, "untranslated (fallback)")
		}
		fmt.Fprintf(&b, "%s: %s, // %s\n", lesson.Quote(c.Key, '"'), lesson.Quote(c.Text, '"'), strings.Join(marks, ", "))
	}

	if len(obsolete) > 0 {
		b.WriteString("\n// Present in the block but no longer in the source language:\n")
		for _, k := range obsolete {
			fmt.Fprintf(&b, "//   %s\n", k)
		}
	}
	return b.Bytes()
}

// MarshalAll encodes every language as {"<lang>": {"<key>": "<text>"}}.
func MarshalAll(langs []Language) ([]byte, error) {
	all := make(map[string]map[string]string, len(langs))
	for _, l := range langs {
		m := make(map[string]string, len(l.Results))
		for _, r := range l.Results {
			m[r.Key] = r.Text
		}
		all[l.Lang] = m
	}

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", AllFileName, err)
	}
	return b.Bytes(), nil
}
