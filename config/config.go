// Package config resolves the project layout: where the learning data file,
// the i18n source, drafts and generated artifacts live.
package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/minios-linux/lessonkit/i18nsrc"
)

// Project holds the loaded configuration with absolute paths.
type Project struct {
	// Root is the absolute project root.
	Root string
	// Config is the loaded .lessonkit.yaml (defaults when absent).
	Config *File

	DataFile  string
	I18nFile  string
	OutputDir string
	DraftsDir string

	// Detected is set when DataFile was found by searching rather than
	// taken from configuration.
	Detected bool
}

// dataFileCandidates are searched when the configured data file does not
// exist and was not set explicitly.
var dataFileCandidates = []string{
	DefaultDataFile,
	"src/data/locales/learning/en.ts",
	"src/locales/learning/en.ts",
	"src/features/game/data/learning/en.ts",
}

// Open loads the configuration for rootDir (configPath may be empty) and
// resolves all paths against the root.
func Open(rootDir, configPath string) (*Project, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		absRoot = rootDir
	}

	f, err := Load(absRoot, configPath)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Root:      absRoot,
		Config:    f,
		DataFile:  resolvePath(absRoot, f.DataFile),
		I18nFile:  resolvePath(absRoot, f.I18nFile),
		OutputDir: resolvePath(absRoot, f.OutputDir),
		DraftsDir: resolvePath(absRoot, f.DraftsDir),
	}

	if f.DataFile == DefaultDataFile && !fileExists(p.DataFile) {
		if found := detectDataFile(absRoot); found != "" {
			p.DataFile = found
			p.Detected = true
		}
	}
	return p, nil
}

// Path resolves a user-supplied path against the project root.
func (p *Project) Path(path string) string {
	return resolvePath(p.Root, path)
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func detectDataFile(root string) string {
	for _, c := range dataFileCandidates {
		path := filepath.Join(root, c)
		if fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ---------------------------------------------------------------------------
// Language detection
// ---------------------------------------------------------------------------

// I18nLanguages lists the languages that already have a block in the i18n
// source, sorted, excluding the source language. A missing file yields nil.
func (p *Project) I18nLanguages() []string {
	src, err := os.ReadFile(p.I18nFile)
	if err != nil {
		return nil
	}
	var langs []string
	seen := make(map[string]bool)
	for _, l := range i18nsrc.Languages(src) {
		if l == p.Config.Translate.SourceLang || seen[l] {
			continue
		}
		seen[l] = true
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// TargetLanguages returns the configured languages, or the languages found
// in the i18n source when none are configured.
func (p *Project) TargetLanguages() []string {
	if len(p.Config.Translate.Languages) > 0 {
		return p.Config.Translate.Languages
	}
	return p.I18nLanguages()
}
