package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/minios-linux/lessonkit/config"
	"github.com/minios-linux/lessonkit/draft"
	"github.com/minios-linux/lessonkit/lesson"
	"github.com/minios-linux/lessonkit/lockfile"
	"github.com/minios-linux/lessonkit/translate"
	"github.com/minios-linux/lessonkit/validate"
)

const testData = `import type { LessonContent } from "../types";

export const learningEn: Record<string, LessonContent> = {
  // Module 1: Forex basics
  "fx_4": {
    title: "Trends",
    content: "## Part 1\nOld trend text.",
    keyTakeaways: [
      "Trend is your friend",
    ],
  },

  // Module 3: Risk
  "as_10": {
    title: "Position sizing",
    content: "## Part 1\nshort",
    keyTakeaways: [],
  },
};
`

const testI18n = `const resources = {
  en: {
    translation: {
      "title": "Trading game",
      "desc_BTC": "Bitcoin is the first cryptocurrency.",
      "desc_ETH": "Ethereum runs smart contracts.",
    },
  },
  de: {
    translation: {
      "desc_BTC": "Bitcoin ist die erste Kryptowährung.",
    },
  },
};
`

// body returns lesson content with parts headings, padded to n characters.
func body(n, parts int) string {
	var b strings.Builder
	for i := 1; i <= parts; i++ {
		fmt.Fprintf(&b, "## Part %d\nSection %d explains one idea.\n\n", i, i)
	}
	for b.Len() < n {
		b.WriteString("Risk only what you can afford to lose. ")
	}
	return b.String()
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newProject lays out a project root with the default paths.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, config.DefaultDataFile), testData)
	writeTestFile(t, filepath.Join(dir, config.DefaultI18nFile), testI18n)
	return dir
}

func writeDraft(t *testing.T, dir, name, key, content string) string {
	t.Helper()
	path := filepath.Join(dir, "drafts", name)
	writeTestFile(t, path, "---\nkey: "+key+"\ntitle: Position sizing\nkeyTakeaways:\n  - Risk 1% per trade\n---\n"+content+"\n")
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--no-color"))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func readData(t *testing.T, dir string) *lesson.Collection {
	t.Helper()
	c, err := lesson.ParseFile(filepath.Join(dir, config.DefaultDataFile))
	if err != nil {
		t.Fatalf("parsing data file: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Flags
// ---------------------------------------------------------------------------

func TestBoundsFlagsResolve(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name        string
		args        []string
		draftPreset string
		want        validate.Bounds
		wantErr     bool
	}{
		{name: "config default", want: validate.Standard},
		{name: "draft preset", draftPreset: "extended", want: validate.Extended},
		{
			name:        "flag preset wins over draft",
			args:        []string{"--preset", "standard"},
			draftPreset: "extended",
			want:        validate.Standard,
		},
		{
			name: "individual bounds override the preset",
			args: []string{"--preset", "extended", "--max-parts", "12", "--min-chars", "100"},
			want: validate.Bounds{MinChars: 100, MaxChars: 0, MinParts: 5, MaxParts: 12},
		},
		{name: "unknown preset", args: []string{"--preset", "huge"}, wantErr: true},
		{name: "inconsistent bounds", args: []string{"--min-parts", "10"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "x"}
			bf := addBoundsFlags(cmd)
			if err := cmd.ParseFlags(tc.args); err != nil {
				t.Fatalf("ParseFlags: %v", err)
			}
			got, err := bf.resolve(cfg, tc.draftPreset)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("resolve() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolve() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMergeTranslateFlags(t *testing.T) {
	var a translateArgs
	cmd := newTranslateDescCmd()
	if err := cmd.ParseFlags([]string{"--retries", "2", "--delay", "1s", "--provider", "ollama"}); err != nil {
		t.Fatal(err)
	}
	a.retries, _ = cmd.Flags().GetInt("retries")
	a.delay, _ = cmd.Flags().GetDuration("delay")
	a.provider, _ = cmd.Flags().GetString("provider")

	base := config.Default().Translate
	got := mergeTranslateFlags(cmd.Flags(), base, a)
	if got.Retries != 2 || got.Delay != time.Second || got.Provider != "ollama" {
		t.Fatalf("changed flags not applied: %+v", got)
	}
	if got.RetryDelay != base.RetryDelay || got.BatchSize != base.BatchSize {
		t.Fatalf("unchanged flags overrode config: %+v", got)
	}
}

func TestSetupColorsDisable(t *testing.T) {
	saved := []string{colorReset, colorRed, colorGreen, colorYellow, colorBlue, colorCyan}
	savedNoColor := noColor
	t.Cleanup(func() {
		colorReset, colorRed, colorGreen, colorYellow, colorBlue, colorCyan = saved[0], saved[1], saved[2], saved[3], saved[4], saved[5]
		noColor = savedNoColor
	})

	setupColors(true)
	if colorRed != "" || colorReset != "" || !noColor {
		t.Fatalf("colors not disabled: %q %q", colorRed, colorReset)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Deutsch", 10); got != "Deutsch" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("Português (Brasil)", 6); got != "Portu…" {
		t.Fatalf("truncate long = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestApplyReplacesRecord(t *testing.T) {
	dir := newProject(t)
	content := body(9000, 6)
	writeDraft(t, dir, "as_10.md", "as_10", content)

	if err := execute(t, "apply", "--root", dir, "--draft", "drafts/as_10.md"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	c := readData(t, dir)
	e, err := c.Lookup("as_10")
	if err != nil {
		t.Fatal(err)
	}
	if e.Content != strings.TrimRight(content, " \t\n") {
		t.Fatalf("content not replaced: %d chars", len(e.Content))
	}
	if len(e.KeyTakeaways) != 1 || e.KeyTakeaways[0] != "Risk 1% per trade" {
		t.Fatalf("keyTakeaways = %v", e.KeyTakeaways)
	}
	if fx, err := c.Lookup("fx_4"); err != nil || fx.Content != "## Part 1\nOld trend text." {
		t.Fatalf("neighbour record changed: %v", err)
	}
}

func TestApplyRejectsInvalidDraft(t *testing.T) {
	dir := newProject(t)
	writeDraft(t, dir, "as_10.md", "as_10", body(200, 2))
	dataPath := filepath.Join(dir, config.DefaultDataFile)

	if err := execute(t, "apply", "--root", dir, "drafts/as_10.md"); err == nil {
		t.Fatal("expected validation error")
	}
	data, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testData {
		t.Fatal("data file modified by a failed apply")
	}

	// Relaxed bounds on the command line accept the same draft.
	if err := execute(t, "apply", "--root", dir, "drafts/as_10.md", "--min-chars", "100", "--min-parts", "1"); err != nil {
		t.Fatalf("apply with relaxed bounds: %v", err)
	}
}

func TestApplyInsertAndDryRun(t *testing.T) {
	dir := newProject(t)
	writeDraft(t, dir, "new.md", "as_11", body(9000, 5))

	if err := execute(t, "apply", "--root", dir, "--draft", "drafts/new.md"); err == nil {
		t.Fatal("expected key-not-found error without --insert")
	}
	if err := execute(t, "apply", "--root", dir, "--draft", "drafts/new.md", "--insert", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if readData(t, dir).Count("as_11") != 0 {
		t.Fatal("dry run wrote the record")
	}

	if err := execute(t, "apply", "--root", dir, "--draft", "drafts/new.md", "--insert", "--after", "fx_4"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	keys := readData(t, dir).Keys()
	want := []string{"fx_4", "as_11", "as_10"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
}

func TestApplyRequiresDraft(t *testing.T) {
	dir := newProject(t)
	if err := execute(t, "apply", "--root", dir); err == nil {
		t.Fatal("expected error without a draft")
	}
	if err := execute(t, "apply", "--root", dir, "a.md", "b.md", "--key", "as_10"); err == nil {
		t.Fatal("expected error for --key with several drafts")
	}
	if err := execute(t, "apply", "--root", dir, "a.md", "--strategy", "fuzzy"); err == nil {
		t.Fatal("expected error for an unknown strategy")
	}
}

func TestCheck(t *testing.T) {
	dir := newProject(t)
	good := writeDraft(t, dir, "good.md", "as_10", body(9000, 6))
	bad := writeDraft(t, dir, "bad.md", "as_10", body(9000, 3))

	if err := execute(t, "check", "--root", dir, good, "--sections"); err != nil {
		t.Fatalf("check good: %v", err)
	}
	err := execute(t, "check", "--root", dir, good, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("check bad = %v, want 1 of 2 failed", err)
	}
}

func TestReportStrict(t *testing.T) {
	dir := newProject(t)
	if err := execute(t, "report", "--root", dir); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := execute(t, "report", "--root", dir, "--strict"); err == nil {
		t.Fatal("expected --strict to fail on short records")
	}
	if err := execute(t, "report", "--root", dir, "--strict", "fx_*", "--min-chars", "1", "--min-parts", "1"); err != nil {
		t.Fatalf("report with relaxed bounds: %v", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	dir := newProject(t)
	if err := execute(t, "export", "--root", dir, "fx_4"); err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(dir, "drafts", "fx_4.md")
	d, err := draft.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if d.Key != "fx_4" || d.Title != "Trends" || d.Content != "## Part 1\nOld trend text." {
		t.Fatalf("exported draft = %+v", d)
	}
	if len(d.KeyTakeaways) != 1 || d.KeyTakeaways[0] != "Trend is your friend" {
		t.Fatalf("keyTakeaways = %v", d.KeyTakeaways)
	}

	if err := execute(t, "export", "--root", dir, "fx_4"); err == nil {
		t.Fatal("expected error when the draft exists")
	}
	if err := execute(t, "export", "--root", dir, "fx_4", "--force"); err != nil {
		t.Fatalf("export --force: %v", err)
	}
	if err := execute(t, "export", "--root", dir, "nope"); err == nil {
		t.Fatal("expected error for a missing key")
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := newProject(t)
	if err := execute(t, "init", "--root", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	f, err := config.Load(dir, "")
	if err != nil {
		t.Fatalf("loading written config: %v", err)
	}
	if len(f.Translate.Languages) != 1 || f.Translate.Languages[0] != "de" {
		t.Fatalf("languages = %v, want [de]", f.Translate.Languages)
	}
	if _, err := os.Stat(filepath.Join(dir, "drafts")); err != nil {
		t.Fatalf("drafts dir not created: %v", err)
	}

	if err := execute(t, "init", "--root", dir); err == nil {
		t.Fatal("expected error when config exists")
	}
	if err := execute(t, "init", "--root", dir, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestTranslateDescArguments(t *testing.T) {
	dir := newProject(t)

	if err := execute(t, "translate-desc", "--root", dir); err == nil {
		t.Fatal("expected error without a language")
	}
	if err := execute(t, "translate-desc", "--root", dir, "xx", "--dry-run"); err == nil {
		t.Fatal("expected error for an unknown language")
	}
	if err := execute(t, "translate-desc", "--root", dir, "de,ru", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if err := execute(t, "translate-desc", "--root", dir, "de", "--dry-run", "--prefix", "none_"); err == nil {
		t.Fatal("expected error when no strings match the prefix")
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultOutputDir)); !os.IsNotExist(err) {
		t.Fatal("dry run created the output directory")
	}
}

func TestStatusAndLangs(t *testing.T) {
	dir := newProject(t)
	if err := execute(t, "status", "--root", dir); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := execute(t, "langs", "--root", dir, "--all"); err != nil {
		t.Fatalf("langs: %v", err)
	}
	if err := execute(t, "version"); err != nil {
		t.Fatalf("version: %v", err)
	}
}

func TestExportApplyKeepsSubstitutions(t *testing.T) {
	dir := t.TempDir()
	data := "export const learningEn = {\n  \"fx_9\": {\n    title: \"Quotes\",\n    content: `Price ${price} here`,\n    keyTakeaways: [],\n  },\n};\n"
	dataPath := filepath.Join(dir, config.DefaultDataFile)
	writeTestFile(t, dataPath, data)

	if err := execute(t, "export", "--root", dir, "fx_9"); err != nil {
		t.Fatalf("export: %v", err)
	}
	err := execute(t, "apply", "--root", dir, "drafts/fx_9.md",
		"--min-chars", "0", "--min-parts", "0", "--max-parts", "0")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := os.ReadFile(dataPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != data {
		t.Fatalf("export + apply changed the file:\n%s", got)
	}
}

func TestPendingCount(t *testing.T) {
	items := []translate.Item{
		{Key: "desc_BTC", Text: "Bitcoin is the first cryptocurrency."},
		{Key: "desc_ETH", Text: "Ethereum runs smart contracts."},
	}
	lock, err := lockfile.Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lock.Store("de", "desc_BTC", items[0].Text, "Bitcoin ist die erste Kryptowährung.")

	if got := pendingCount(items, "de", lock); got != 1 {
		t.Fatalf("pendingCount(de) = %d, want 1", got)
	}
	if got := pendingCount(items, "ru", lock); got != 2 {
		t.Fatalf("pendingCount(ru) = %d, want 2", got)
	}
	if got := pendingCount(items, "de", nil); got != 2 {
		t.Fatalf("pendingCount without cache = %d, want 2", got)
	}

	items[0].Text = "Bitcoin was the first cryptocurrency."
	if got := pendingCount(items, "de", lock); got != 2 {
		t.Fatalf("pendingCount after source edit = %d, want 2", got)
	}
}

func TestStaleLanguages(t *testing.T) {
	got := staleLanguages([]string{"de", "fr", "ru"}, []string{"de", "ru"})
	if len(got) != 1 || got[0] != "fr" {
		t.Fatalf("staleLanguages = %v, want [fr]", got)
	}
	if got := staleLanguages([]string{"de"}, nil); got != nil {
		t.Fatalf("staleLanguages without targets = %v, want nil", got)
	}
}

func TestTranslateDescResetDryRunKeepsLock(t *testing.T) {
	dir := newProject(t)
	lock, err := lockfile.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	lock.Store("de", "desc_BTC", "Bitcoin is the first cryptocurrency.", "Bitcoin ist die erste Kryptowährung.")
	if err := lock.Save(); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "translate-desc", "--root", dir, "de", "--reset", "--dry-run"); err != nil {
		t.Fatalf("reset dry run: %v", err)
	}
	after, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Fatal("dry run rewrote the lock file")
	}
}
