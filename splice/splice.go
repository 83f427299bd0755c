// Package splice replaces or inserts a lesson record in the data file.
//
// Apply is fail-closed: the file is written only after the key was located
// unambiguously, the new content passed validation, and a re-parse of the
// result shows every other record byte-for-byte unchanged. The write goes
// through a temporary file and a rename.
package splice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minios-linux/lessonkit/lesson"
	"github.com/minios-linux/lessonkit/validate"
)

// Options controls Apply.
type Options struct {
	// Strategy selects how the record's end is found.
	Strategy lesson.Strategy
	// Bounds are checked against the new content.
	Bounds validate.Bounds
	// SkipValidation writes content that fails Bounds.
	SkipValidation bool
	// Insert adds the record when the key is absent instead of failing.
	Insert bool
	// After is the key to insert after; empty means after the last record.
	After string
	// DryRun does everything except write the file.
	DryRun bool

	// OnLog is called with progress messages.
	OnLog func(format string, args ...any)
}

func (o *Options) logf(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Outcome summarises an Apply call.
type Outcome struct {
	Key        string
	Path       string
	OldChars   int
	NewChars   int
	Parts      int
	Validation validate.Result
	Inserted   bool
	Unchanged  bool
	Written    bool
}

// ErrRoundTrip means the rewritten file did not re-parse to the expected
// records. It indicates a bug in locating or rendering; nothing is written.
var ErrRoundTrip = errors.New("round-trip check failed")

// Apply writes rec into the data file at path.
func Apply(ctx context.Context, path string, rec lesson.Record, opts Options) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	out, o, err := Splice(src, rec, opts)
	if err != nil {
		return nil, err
	}
	o.Path = path

	if o.Unchanged {
		opts.logf("%s: record %q already up to date", path, rec.Key)
		return o, nil
	}
	if opts.DryRun {
		opts.logf("%s: dry run, not writing", path)
		return o, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := WriteAtomic(path, out); err != nil {
		return nil, err
	}
	o.Written = true
	return o, nil
}

// Splice computes the new source without touching the file system.
func Splice(src []byte, rec lesson.Record, opts Options) ([]byte, *Outcome, error) {
	before, err := lesson.Parse(src)
	if err != nil {
		return nil, nil, err
	}

	o := &Outcome{Key: rec.Key}

	loc, lerr := lesson.Locate(src, rec.Key, opts.Strategy)
	switch {
	case lerr == nil:
		if loc.Entry != nil {
			o.OldChars = validate.Length(loc.Entry.Content)
		}
	case errors.Is(lerr, lesson.ErrKeyNotFound) && opts.Insert:
		o.Inserted = true
	default:
		return nil, nil, lerr
	}

	res := validate.Check(rec.Content, opts.Bounds)
	o.Validation = res
	o.NewChars = res.Chars
	o.Parts = res.Parts
	if !res.OK() {
		if !opts.SkipValidation {
			return nil, nil, &validate.ValidationError{Key: rec.Key, Result: res}
		}
		opts.logf("%s", (&validate.ValidationError{Key: rec.Key, Result: res}).Error())
	}

	var out []byte
	if o.Inserted {
		if opts.After != "" {
			if _, err := before.Lookup(opts.After); err != nil {
				return nil, nil, fmt.Errorf("insert anchor: %w", err)
			}
		}
		out, err = lesson.Insert(before, opts.After, rec)
		if err != nil {
			return nil, nil, err
		}
		opts.logf("inserting new record %q", rec.Key)
	} else {
		st := lesson.DefaultStyle
		if loc.Entry != nil {
			st = loc.Entry.Style
		}
		out = lesson.Replace(src, loc, lesson.Render(rec, st))
	}

	if err := verify(before, out, rec); err != nil {
		return nil, nil, err
	}
	o.Unchanged = string(out) == string(src)
	return out, o, nil
}

// verify re-parses out and checks that rec is present exactly once with the
// expected values and that all other records are textually unchanged.
func verify(before *lesson.Collection, out []byte, rec lesson.Record) error {
	after, err := lesson.Parse(out)
	if err != nil {
		return fmt.Errorf("%w: result does not parse: %v", ErrRoundTrip, err)
	}

	got, err := after.Lookup(rec.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRoundTrip, err)
	}
	if got.Title != rec.Title || !sameContent(got.Record, rec) || !sameStrings(got.KeyTakeaways, rec.KeyTakeaways) {
		return fmt.Errorf("%w: record %q does not decode to the written values", ErrRoundTrip, rec.Key)
	}

	var old, cur []*lesson.Entry
	for _, e := range before.Entries() {
		if e.Key != rec.Key {
			old = append(old, e)
		}
	}
	for _, e := range after.Entries() {
		if e.Key != rec.Key {
			cur = append(cur, e)
		}
	}
	if len(old) != len(cur) {
		return fmt.Errorf("%w: %d other records before, %d after", ErrRoundTrip, len(old), len(cur))
	}
	for i := range old {
		if old[i].Key != cur[i].Key || before.Text(old[i]) != after.Text(cur[i]) {
			return fmt.Errorf("%w: record %q changed", ErrRoundTrip, old[i].Key)
		}
	}
	return nil
}

// sameContent compares the written content with what was parsed back. Raw
// template content is compared as source text so a substitution that turned
// into literal text is caught.
func sameContent(got, want lesson.Record) bool {
	if !want.Templated {
		return !got.Templated && got.Content == want.Content
	}
	raw := lesson.TemplateRaw(want.Content)
	if got.Templated {
		return got.Content == raw
	}
	// The edit removed every substitution; the literal now decodes normally.
	decoded, err := lesson.Unquote("`" + raw + "`")
	return err == nil && got.Content == decoded
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WriteAtomic writes data to a temporary file next to path and renames it
// over path, keeping the original file mode.
func WriteAtomic(path string, data []byte) error {
	mode := os.FileMode(0644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
