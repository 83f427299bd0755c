// .lessonkit.yaml configuration file support.
//
// The file is optional: every setting has a default matching the game's
// repository layout. Environment variables (LESSONKIT_*), read from the
// process environment or a .env file in the project root, override the
// file; command-line flags override both.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/lessonkit/langmeta"
	"github.com/minios-linux/lessonkit/validate"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .lessonkit.yaml structure.
type File struct {
	// DataFile is the generated learning data file, relative to the root.
	DataFile string `yaml:"data_file,omitempty"`
	// I18nFile is the i18n source file, relative to the root.
	I18nFile string `yaml:"i18n_file,omitempty"`
	// OutputDir receives translated description artifacts.
	OutputDir string `yaml:"output_dir,omitempty"`
	// DraftsDir is where lesson drafts live (used by export and bare names).
	DraftsDir string `yaml:"drafts_dir,omitempty"`

	// DefaultPreset names the bounds used when none is requested.
	DefaultPreset string `yaml:"default_preset,omitempty"`
	// Presets adds or overrides named validation bounds.
	Presets map[string]validate.Bounds `yaml:"presets,omitempty"`

	// Translate configures translate-desc.
	Translate Translate `yaml:"translate"`
}

// Translate is the translate section of .lessonkit.yaml.
type Translate struct {
	SourceLang string   `yaml:"source_lang,omitempty"`
	Languages  []string `yaml:"languages,omitempty"`
	KeyPrefix  string   `yaml:"key_prefix,omitempty"`

	Retries    int           `yaml:"retries,omitempty"`
	Delay      time.Duration `yaml:"delay,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty"`
	BatchSize  int           `yaml:"batch_size,omitempty"`
	BatchDelay time.Duration `yaml:"batch_delay,omitempty"`

	// Provider selects the backend: google-translate (default), gemini,
	// groq, ollama or custom-openai.
	Provider string        `yaml:"provider,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Proxy    string        `yaml:"proxy,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`

	// APIKey comes from LESSONKIT_API_KEY only; it is never written to disk.
	APIKey string `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".lessonkit.yaml"

// EnvFileName is the optional dotenv file in the project root.
const EnvFileName = ".env"

const (
	DefaultDataFile  = "src/features/game/data/locales/learning/en.ts"
	DefaultI18nFile  = "src/i18n.ts"
	DefaultOutputDir = "translated_descriptions"
	DefaultDraftsDir = "drafts"
	DefaultPreset    = "standard"
	DefaultKeyPrefix = "desc_"
)

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.DataFile == "" {
		f.DataFile = DefaultDataFile
	}
	if f.I18nFile == "" {
		f.I18nFile = DefaultI18nFile
	}
	if f.OutputDir == "" {
		f.OutputDir = DefaultOutputDir
	}
	if f.DraftsDir == "" {
		f.DraftsDir = DefaultDraftsDir
	}
	if f.DefaultPreset == "" {
		f.DefaultPreset = DefaultPreset
	}

	t := &f.Translate
	if t.SourceLang == "" {
		t.SourceLang = "en"
	}
	if t.KeyPrefix == "" {
		t.KeyPrefix = DefaultKeyPrefix
	}
	if t.Retries == 0 {
		t.Retries = 5
	}
	if t.Delay == 0 {
		t.Delay = 500 * time.Millisecond
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = 2 * time.Second
	}
	if t.BatchSize == 0 {
		t.BatchSize = 10
	}
	if t.BatchDelay == 0 {
		t.BatchDelay = 2 * time.Second
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the configuration for rootDir. An empty path means
// rootDir/.lessonkit.yaml, which may be absent; an explicit path must exist.
// Environment overrides are applied, then the result is validated.
func Load(rootDir, path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(rootDir, FileName)
	}

	f := &File{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, f); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	env, err := readEnv(filepath.Join(rootDir, EnvFileName))
	if err != nil {
		return nil, err
	}
	if err := f.applyEnv(env); err != nil {
		return nil, err
	}

	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// decode rejects unknown keys so typos do not silently fall back to
// defaults.
func decode(data []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// readEnv returns a lookup that prefers the process environment and falls
// back to the .env file.
func readEnv(dotenv string) (func(string) string, error) {
	vars, err := godotenv.Read(dotenv)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", dotenv, err)
		}
		vars = nil
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vars[key]
	}, nil
}

// Environment variable names.
const (
	EnvDataFile   = "LESSONKIT_DATA_FILE"
	EnvI18nFile   = "LESSONKIT_I18N_FILE"
	EnvOutputDir  = "LESSONKIT_OUTPUT_DIR"
	EnvSourceLang = "LESSONKIT_SOURCE_LANG"
	EnvProvider   = "LESSONKIT_PROVIDER"
	EnvAPIKey     = "LESSONKIT_API_KEY"
	EnvRetries    = "LESSONKIT_RETRIES"
)

func (f *File) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&f.DataFile, EnvDataFile)
	set(&f.I18nFile, EnvI18nFile)
	set(&f.OutputDir, EnvOutputDir)
	set(&f.Translate.SourceLang, EnvSourceLang)
	set(&f.Translate.Provider, EnvProvider)
	set(&f.Translate.APIKey, EnvAPIKey)

	if v := getenv(EnvRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetries, err)
		}
		f.Translate.Retries = n
	}
	return nil
}

// Validate checks presets, languages and translation settings.
func (f *File) Validate() error {
	for name, b := range f.Presets {
		if err := b.Sanity(); err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
	}
	if _, err := validate.Preset(f.DefaultPreset, f.Presets); err != nil {
		return fmt.Errorf("default_preset: %w", err)
	}

	t := f.Translate
	if _, err := langmeta.Canonicalize(t.SourceLang); err != nil {
		return fmt.Errorf("translate.source_lang: %w", err)
	}
	for _, l := range t.Languages {
		if _, err := langmeta.Resolve(l); err != nil {
			return fmt.Errorf("translate.languages: %w", err)
		}
	}
	switch {
	case t.Retries < 1:
		return fmt.Errorf("translate.retries must be at least 1")
	case t.Delay < 0 || t.RetryDelay < 0 || t.BatchDelay < 0 || t.Timeout < 0:
		return fmt.Errorf("translate: delays must not be negative")
	case t.BatchSize < 0:
		return fmt.Errorf("translate.batch_size must not be negative")
	}
	return nil
}

// Bounds resolves a preset name; empty selects DefaultPreset.
func (f *File) Bounds(name string) (validate.Bounds, error) {
	if name == "" {
		name = f.DefaultPreset
	}
	return validate.Preset(name, f.Presets)
}

// ---------------------------------------------------------------------------
// Saving
// ---------------------------------------------------------------------------

// Save writes the configuration as YAML. The API key is never written.
func (f *File) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
