// Package lockfile implements lessonkit.lock, a lock file that records, per
// target language, the MD5 checksum of each source string together with its
// last successful translation. This enables incremental translation: only
// new or changed descriptions are sent to the translation service.
//
// The lock file is stored alongside .lessonkit.yaml as lessonkit.lock.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "lessonkit.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry is the recorded state of one translated string.
type Entry struct {
	// Hash is the MD5 of the key and source text at translation time.
	Hash string `yaml:"hash"`
	// Text is the translation.
	Text string `yaml:"text"`
}

// LockFile represents the lessonkit.lock file structure.
type LockFile struct {
	Version      int                         `yaml:"version"`
	Translations map[string]map[string]Entry `yaml:"translations"` // lang -> key -> entry

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:      Version,
		Translations: make(map[string]map[string]Entry),
		path:         path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}
	lf.path = path

	if lf.Translations == nil {
		lf.Translations = make(map[string]map[string]Entry)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// entryHash includes the key so renaming a key triggers re-translation.
func entryHash(key, source string) string {
	return Hash(key + "\x00" + source)
}

// IsChanged checks if a source string has changed since last translation.
// Returns true if the string is new or its content has changed.
func (lf *LockFile) IsChanged(lang, key, source string) bool {
	_, ok := lf.Lookup(lang, key, source)
	return !ok
}

// Lookup returns the recorded translation when source is unchanged.
func (lf *LockFile) Lookup(lang, key, source string) (string, bool) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	e, ok := lf.Translations[lang][key]
	if !ok || e.Hash != entryHash(key, source) {
		return "", false
	}
	return e.Text, true
}

// Store records a successful translation.
func (lf *LockFile) Store(lang, key, source, text string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Translations[lang] == nil {
		lf.Translations[lang] = make(map[string]Entry)
	}
	lf.Translations[lang][key] = Entry{Hash: entryHash(key, source), Text: text}
}

// FilterChanged returns only the keys whose source content has changed
// since the last translation. The input is a map of key -> source.
func (lf *LockFile) FilterChanged(lang string, entries map[string]string) map[string]string {
	changed := make(map[string]string)
	for key, source := range entries {
		if lf.IsChanged(lang, key, source) {
			changed[key] = source
		}
	}
	return changed
}

// Clean removes entries from the lock file that are no longer present in
// the current set of keys. This prevents stale entries from accumulating.
func (lf *LockFile) Clean(lang string, currentKeys []string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	existing := lf.Translations[lang]
	if existing == nil {
		return
	}

	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}

	for k := range existing {
		if !valid[k] {
			delete(existing, k)
		}
	}
}

// RemoveLang removes all entries for a language.
func (lf *LockFile) RemoveLang(lang string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Translations, lang)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of languages and total keys in the lock file.
func (lf *LockFile) Stats() (langs, keys int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	langs = len(lf.Translations)
	for _, m := range lf.Translations {
		keys += len(m)
	}
	return
}

// Languages returns the sorted list of languages.
func (lf *LockFile) Languages() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	langs := make([]string, 0, len(lf.Translations))
	for l := range lf.Translations {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if len(lf.Translations) == 0 {
		return "empty"
	}

	langs := make([]string, 0, len(lf.Translations))
	for l := range lf.Translations {
		langs = append(langs, l)
	}
	sort.Strings(langs)

	keys := 0
	parts := make([]string, 0, len(langs))
	for _, l := range langs {
		n := len(lf.Translations[l])
		keys += n
		parts = append(parts, fmt.Sprintf("%s: %d keys", l, n))
	}
	return fmt.Sprintf("%d languages, %d keys (%s)", len(langs), keys, strings.Join(parts, ", "))
}
