// lessonkit is a content authoring toolkit for the trading game's lessons
// and asset descriptions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/minios-linux/lessonkit/config"
	"github.com/minios-linux/lessonkit/draft"
	"github.com/minios-linux/lessonkit/i18n"
	"github.com/minios-linux/lessonkit/i18nsrc"
	"github.com/minios-linux/lessonkit/langmeta"
	"github.com/minios-linux/lessonkit/lesson"
	"github.com/minios-linux/lessonkit/lockfile"
	"github.com/minios-linux/lessonkit/merge"
	"github.com/minios-linux/lessonkit/patch"
	"github.com/minios-linux/lessonkit/report"
	"github.com/minios-linux/lessonkit/splice"
	"github.com/minios-linux/lessonkit/translate"
	"github.com/minios-linux/lessonkit/validate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors, cleared by setupColors when output is not a terminal.
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
	colorCyan   = "\033[0;36m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+i18n.T(format)+"\n", args...)
}

// stderrIsTerminal reports whether stderr is attached to a terminal.
func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// setupColors disables ANSI colors for --no-color, NO_COLOR or a
// non-terminal stderr.
func setupColors(disable bool) {
	if !disable && os.Getenv("NO_COLOR") == "" && stderrIsTerminal() {
		return
	}
	noColor = true
	colorReset, colorRed, colorGreen, colorYellow, colorBlue, colorCyan = "", "", "", "", "", ""
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	dataFile   string
	configPath string
	noColor    bool
)

// openProject loads .lessonkit.yaml and applies the global flag overrides.
func openProject() (*config.Project, error) {
	proj, err := config.Open(rootDir, configPath)
	if err != nil {
		return nil, err
	}
	if dataFile != "" {
		proj.DataFile = proj.Path(dataFile)
		proj.Detected = false
	}
	return proj, nil
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lessonkit",
		Short: "Authoring toolkit for lesson records and asset descriptions",
		Long: `lessonkit: authoring toolkit for the trading game's learning content.

Lessons are written as Markdown drafts with YAML front matter and spliced
into the generated learning data file after validation. Asset descriptions
are machine-translated from the English block of the i18n source into
review files; the i18n source itself is never modified.

Commands:
  status          Show project paths, record counts and translation state
  init            Write a default .lessonkit.yaml
  apply           Validate a draft and splice it into the data file
  check           Validate drafts without writing anything
  report          Analyse records: duplicates, length, part count
  export          Write an existing record out as a draft
  translate-desc  Translate asset descriptions into patch files
  langs           List supported target languages`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupColors(noColor)
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&dataFile, "data", "", "Learning data file (default from .lessonkit.yaml)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <root>/.lessonkit.yaml)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newApplyCmd(),
		newCheckCmd(),
		newReportCmd(),
		newExportCmd(),
		newTranslateDescCmd(),
		newLangsCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lessonkit version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Validation bounds flags
// ---------------------------------------------------------------------------

// boundsFlags is the flag set shared by apply, check and report.
type boundsFlags struct {
	fs     *pflag.FlagSet
	preset string
	b      validate.Bounds
}

func addBoundsFlags(cmd *cobra.Command) *boundsFlags {
	bf := &boundsFlags{fs: pflag.NewFlagSet("bounds", pflag.ContinueOnError)}
	bf.fs.StringVar(&bf.preset, "preset", "", "Validation preset: standard, extended or one defined in .lessonkit.yaml")
	bf.fs.IntVar(&bf.b.MinChars, "min-chars", 0, "Minimum content length (overrides the preset)")
	bf.fs.IntVar(&bf.b.MaxChars, "max-chars", 0, "Maximum content length, 0 = unbounded (overrides the preset)")
	bf.fs.IntVar(&bf.b.MinParts, "min-parts", 0, "Minimum number of '## Part N' headings (overrides the preset)")
	bf.fs.IntVar(&bf.b.MaxParts, "max-parts", 0, "Maximum number of '## Part N' headings (overrides the preset)")
	cmd.Flags().AddFlagSet(bf.fs)

	_ = cmd.RegisterFlagCompletionFunc("preset", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(validate.Presets))
		for n := range validate.Presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return names, cobra.ShellCompDirectiveNoFileComp
	})
	return bf
}

// resolve picks the preset (flag, then draft, then config default) and
// applies individual bound flags on top.
func (bf *boundsFlags) resolve(cfg *config.File, draftPreset string) (validate.Bounds, error) {
	name := bf.preset
	if name == "" {
		name = draftPreset
	}
	b, err := cfg.Bounds(name)
	if err != nil {
		return b, err
	}
	if bf.fs.Changed("min-chars") {
		b.MinChars = bf.b.MinChars
	}
	if bf.fs.Changed("max-chars") {
		b.MaxChars = bf.b.MaxChars
	}
	if bf.fs.Changed("min-parts") {
		b.MinParts = bf.b.MinParts
	}
	if bf.fs.Changed("max-parts") {
		b.MaxParts = bf.b.MaxParts
	}
	if err := b.Sanity(); err != nil {
		return b, err
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// status (read-only: project info + content stats)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project paths, record counts and translation state",
		Long: `Show the resolved project layout and a summary of its content.

Displays the data file with its record and duplicate counts, the languages
present in the i18n source, available drafts and the translation lock file.
Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := openProject()
			if err != nil {
				return err
			}
			runStatus(proj)
			return nil
		},
	}
}

func runStatus(proj *config.Project) {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(proj.Root, config.FileName)
	}
	cfgState := "defaults"
	if fileExists(cfgPath) {
		cfgState = cfgPath
	}

	fmt.Fprintf(os.Stderr, "%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Root:", proj.Root)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Config:", cfgState)

	// Data file
	records := "missing"
	if c, err := lesson.ParseFile(proj.DataFile); err == nil {
		records = fmt.Sprintf("%d records", c.Len())
		if dups := c.Duplicates(); len(dups) > 0 {
			records += fmt.Sprintf(", %s%d duplicated keys%s (%s)", colorYellow, len(dups), colorReset, strings.Join(dups, ", "))
		}
	} else if fileExists(proj.DataFile) {
		records = colorRed + err.Error() + colorReset
	}
	detected := ""
	if proj.Detected {
		detected = " (auto-detected)"
	}
	fmt.Fprintf(os.Stderr, "  %-14s %s%s\n", "Data file:", rel(proj, proj.DataFile), detected)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "", records)

	// i18n source
	tr := proj.Config.Translate
	i18nState := "missing"
	if src, err := os.ReadFile(proj.I18nFile); err == nil {
		n := 0
		if entries, err := i18nsrc.Descriptions(src, tr.SourceLang, tr.KeyPrefix); err == nil {
			n = len(entries)
		}
		langs := proj.I18nLanguages()
		i18nState = fmt.Sprintf("%d %s* strings in %s; %d other languages", n, tr.KeyPrefix, tr.SourceLang, len(langs))
		if len(langs) > 0 {
			i18nState += ": " + strings.Join(langs, ", ")
		}
	}
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "I18n file:", rel(proj, proj.I18nFile))
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "", i18nState)

	// Drafts
	drafts, _ := filepath.Glob(filepath.Join(proj.DraftsDir, "*.md"))
	fmt.Fprintf(os.Stderr, "  %-14s %s (%s)\n", "Drafts:", rel(proj, proj.DraftsDir),
		fmt.Sprintf(i18n.N("%d draft", "%d drafts", len(drafts)), len(drafts)))
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Output:", rel(proj, proj.OutputDir))

	// Lock file
	if lf, err := lockfile.Load(proj.Root); err == nil {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Lock file:", lf.Summary())
		if stale := staleLanguages(lf.Languages(), proj.TargetLanguages()); len(stale) > 0 {
			fmt.Fprintf(os.Stderr, "  %-14s %s%s%s (not targeted any more)\n", "", colorYellow, strings.Join(stale, ", "), colorReset)
		}
	}
	fmt.Fprintf(os.Stderr, "  %-14s %s (preset %s)\n", "Bounds:", boundsSummary(proj.Config), proj.Config.DefaultPreset)
	fmt.Fprintln(os.Stderr)

	printSuggestedCommands(proj, len(drafts))
}

func boundsSummary(cfg *config.File) string {
	b, err := cfg.Bounds("")
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("chars %s, parts %s", b.CharRange(), b.PartRange())
}

func printSuggestedCommands(proj *config.Project, drafts int) {
	logInfo("Suggested commands:")
	if !fileExists(filepath.Join(proj.Root, config.FileName)) && configPath == "" {
		fmt.Fprintf(os.Stderr, "  lessonkit init                      # write .lessonkit.yaml\n")
	}
	if drafts > 0 {
		fmt.Fprintf(os.Stderr, "  lessonkit check %s/*.md    # validate drafts\n", rel(proj, proj.DraftsDir))
		fmt.Fprintf(os.Stderr, "  lessonkit apply --draft FILE        # splice a draft into the data file\n")
	} else {
		fmt.Fprintf(os.Stderr, "  lessonkit export KEY                # start a draft from an existing lesson\n")
	}
	fmt.Fprintf(os.Stderr, "  lessonkit report --strict           # check every record\n")
	fmt.Fprintf(os.Stderr, "  lessonkit translate-desc all        # translate asset descriptions\n")
}

// staleLanguages returns cached languages that are not in targets. With no
// targets configured nothing is stale.
func staleLanguages(cached, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	want := make(map[string]bool, len(targets))
	for _, l := range targets {
		want[l] = true
	}
	var stale []string
	for _, l := range cached {
		if !want[l] {
			stale = append(stale, l)
		}
	}
	return stale
}

// rel shortens path relative to the project root for display.
func rel(proj *config.Project, path string) string {
	if r, err := filepath.Rel(proj.Root, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}

// ---------------------------------------------------------------------------
// init (write default configuration)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .lessonkit.yaml",
		Long: `Write .lessonkit.yaml with the default paths, presets and translation
settings, and create the drafts directory. Languages already present in the
i18n source are recorded as the translation targets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .lessonkit.yaml")
	return cmd
}

func runInit(force bool) error {
	proj, err := openProject()
	if err != nil {
		return err
	}
	path := filepath.Join(proj.Root, config.FileName)
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if proj.Detected {
		if r, err := filepath.Rel(proj.Root, proj.DataFile); err == nil {
			cfg.DataFile = filepath.ToSlash(r)
		}
	}
	cfg.Translate.Languages = proj.I18nLanguages()

	if err := cfg.Save(path); err != nil {
		return err
	}
	logSuccess("Wrote %s", path)

	drafts := proj.Path(cfg.DraftsDir)
	if err := os.MkdirAll(drafts, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", drafts, err)
	}
	logInfo("Drafts directory: %s", drafts)
	return nil
}

// ---------------------------------------------------------------------------
// apply (validate + splice a draft into the data file)
// ---------------------------------------------------------------------------

type applyArgs struct {
	drafts         []string
	key            string
	strategy       string
	insert         bool
	after          string
	dryRun         bool
	skipValidation bool
	bounds         *boundsFlags
}

func newApplyCmd() *cobra.Command {
	var a applyArgs
	var draftFile string

	cmd := &cobra.Command{
		Use:   "apply [DRAFT...]",
		Short: "Validate a draft and splice it into the data file",
		Long: `Replace (or insert) a lesson record in the learning data file with the
content of a draft.

The record is located unambiguously (a key present twice is an error),
the new content is validated against the bounds, and the rewritten file is
re-parsed to confirm every other record is unchanged before it is written
through a temporary file and rename. Any failure leaves the file untouched.

Examples:
  lessonkit apply --draft drafts/as_10.md
  lessonkit apply drafts/as_10.md drafts/as_11.md --preset extended
  lessonkit apply --draft new.md --insert --after as_11
  lessonkit apply --draft drafts/fx_4.md --strategy next-key --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.drafts = args
			if draftFile != "" {
				a.drafts = append([]string{draftFile}, a.drafts...)
			}
			if len(a.drafts) == 0 {
				_ = cmd.Usage()
				return fmt.Errorf("no draft given")
			}
			if a.key != "" && len(a.drafts) > 1 {
				return fmt.Errorf("--key can only be used with a single draft")
			}
			return runApply(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&draftFile, "draft", "", "Draft file (Markdown with YAML front matter)")
	cmd.Flags().StringVar(&a.key, "key", "", "Lesson key (overrides the draft's key)")
	cmd.Flags().StringVar(&a.strategy, "strategy", string(lesson.StrategyStructural), "How to find the record's end: structural, next-key, takeaways")
	cmd.Flags().BoolVar(&a.insert, "insert", false, "Insert the record if the key does not exist")
	cmd.Flags().StringVar(&a.after, "after", "", "With --insert: key to insert after (default: last record)")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Validate and show the outcome without writing")
	cmd.Flags().BoolVar(&a.skipValidation, "skip-validation", false, "Write content that fails the bounds")
	_ = cmd.Flags().MarkHidden("skip-validation")
	a.bounds = addBoundsFlags(cmd)

	_ = cmd.RegisterFlagCompletionFunc("strategy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"structural\tBrace-matched record (default)",
			"next-key\tEnd at the next sibling key",
			"takeaways\tFind keyTakeaways: then the closing brace",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runApply(ctx context.Context, a applyArgs) error {
	if ctx == nil {
		ctx = context.Background()
	}
	proj, err := openProject()
	if err != nil {
		return err
	}
	strategy, err := lesson.ParseStrategy(a.strategy)
	if err != nil {
		return err
	}

	for _, path := range a.drafts {
		d, err := draft.Load(proj.Path(path))
		if err != nil {
			return err
		}
		if a.key != "" {
			d.Key = a.key
		}
		b, err := a.bounds.resolve(proj.Config, d.Preset)
		if err != nil {
			return err
		}

		if a.skipValidation {
			logWarning("Validation disabled: %s may be outside chars %s, parts %s", d.Key, b.CharRange(), b.PartRange())
		}
		out, err := splice.Apply(ctx, proj.DataFile, d.Record(), splice.Options{
			Strategy:       strategy,
			Bounds:         b,
			SkipValidation: a.skipValidation,
			Insert:         a.insert,
			After:          a.after,
			DryRun:         a.dryRun,
			OnLog:          func(format string, args ...any) { logInfo(format, args...) },
		})
		if err != nil {
			reportApplyError(d.Key, b, err)
			return fmt.Errorf("%s: nothing written", d.Key)
		}
		printOutcome(proj, out, a.dryRun)
	}
	return nil
}

// reportApplyError prints a diagnostic naming the failing metric or marker.
func reportApplyError(key string, b validate.Bounds, err error) {
	var verr *validate.ValidationError
	var lerr *lesson.LocateError
	switch {
	case errors.As(err, &verr):
		logError("%s: validation failed", key)
		for _, v := range verr.Result.Violations {
			fmt.Fprintf(os.Stderr, "  %s%s%s\n", colorRed, v.String(), colorReset)
		}
		fmt.Fprintf(os.Stderr, "  required: chars %s, parts %s\n", b.CharRange(), b.PartRange())
	case errors.As(err, &lerr):
		logError("%v", err)
		switch {
		case errors.Is(err, lesson.ErrKeyNotFound):
			fmt.Fprintf(os.Stderr, "  use --insert to add %s as a new record\n", key)
		case errors.Is(err, lesson.ErrDuplicateKey):
			fmt.Fprintf(os.Stderr, "  run 'lessonkit report %s' and remove the extra copy first\n", key)
		}
	default:
		logError("%v", err)
	}
}

func printOutcome(proj *config.Project, o *splice.Outcome, dryRun bool) {
	file := rel(proj, o.Path)
	switch {
	case o.Unchanged:
		logSuccess("%s: already up to date in %s", o.Key, file)
		return
	case dryRun && o.Inserted:
		logInfo("Dry run: would insert %s into %s", o.Key, file)
	case dryRun:
		logInfo("Dry run: would replace %s in %s", o.Key, file)
	case o.Inserted:
		logSuccess("Inserted %s into %s", o.Key, file)
	default:
		logSuccess("Replaced %s in %s", o.Key, file)
	}
	if o.Inserted {
		fmt.Fprintf(os.Stderr, "  chars: %d, parts: %d\n", o.NewChars, o.Parts)
	} else {
		fmt.Fprintf(os.Stderr, "  chars: %d -> %d, parts: %d\n", o.OldChars, o.NewChars, o.Parts)
	}
}

// ---------------------------------------------------------------------------
// check (validate drafts only)
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	var draftFile string
	var sections bool

	cmd := &cobra.Command{
		Use:   "check [DRAFT...]",
		Short: "Validate drafts without writing anything",
		Long: `Validate the content of one or more drafts against the bounds: length in
characters (UTF-16 code units, as the game counts them) and the number of
'## Part N' headings. Exits non-zero if any draft fails.`,
	}
	bounds := addBoundsFlags(cmd)
	cmd.Flags().StringVar(&draftFile, "draft", "", "Draft file")
	cmd.Flags().BoolVar(&sections, "sections", false, "List the draft's sections with their lengths")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		files := args
		if draftFile != "" {
			files = append([]string{draftFile}, files...)
		}
		if len(files) == 0 {
			_ = cmd.Usage()
			return fmt.Errorf("no draft given")
		}
		return runCheck(files, bounds, sections)
	}
	return cmd
}

func runCheck(files []string, bf *boundsFlags, sections bool) error {
	proj, err := openProject()
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range files {
		d, err := draft.Load(proj.Path(path))
		if err != nil {
			logError("%v", err)
			failed++
			continue
		}
		b, err := bf.resolve(proj.Config, d.Preset)
		if err != nil {
			return err
		}
		res := validate.Check(d.Content, b)
		if res.OK() {
			logSuccess("%s (%s): %d chars, %d parts", d.Key, path, res.Chars, res.Parts)
		} else {
			failed++
			logError("%s (%s): %s", d.Key, path, res.Err())
		}
		if sections {
			for _, s := range d.Sections() {
				heading := s.Heading
				if heading == "" {
					heading = "(intro)"
				}
				fmt.Fprintf(os.Stderr, "    %-40s %6d\n", truncate(heading, 40), validate.Length(s.Body))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d drafts failed validation", failed, len(files))
	}
	return nil
}

// ---------------------------------------------------------------------------
// report (read-only analysis)
// ---------------------------------------------------------------------------

func newReportCmd() *cobra.Command {
	var strict, groups bool

	cmd := &cobra.Command{
		Use:   "report [KEY|GLOB ...]",
		Short: "Analyse records: duplicates, length, part count",
		Long: `Print a table of lesson records with how often each key occurs, its
length and part count, and whether it meets the bounds. Keys may be glob
patterns (as_*, fx_{1,2}); without arguments every record is listed.

The data file is never modified. With --strict the command exits non-zero
when any row is not PASS.`,
	}
	bounds := addBoundsFlags(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero if any record fails")
	cmd.Flags().BoolVar(&groups, "groups", false, "Show module headings between records")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		proj, err := openProject()
		if err != nil {
			return err
		}
		b, err := bounds.resolve(proj.Config, "")
		if err != nil {
			return err
		}
		rows, err := buildReport(proj.DataFile, args, b)
		if err != nil {
			return err
		}
		report.Render(os.Stdout, rows, report.Options{Bounds: b, NoColor: noColor, Groups: groups})

		if s := report.Summarize(rows); strict && s.Failed > 0 {
			return fmt.Errorf("%d of %d records failed", s.Failed, s.Total)
		}
		return nil
	}
	return cmd
}

func buildReport(path string, patterns []string, b validate.Bounds) ([]report.Row, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var keys []string
	if c, err := lesson.Parse(src); err == nil {
		keys = c.Keys()
	} else if len(patterns) == 0 {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	selected, err := report.Select(keys, patterns)
	if err != nil {
		return nil, err
	}
	return report.Analyze(src, selected, b), nil
}

// ---------------------------------------------------------------------------
// export (record -> draft)
// ---------------------------------------------------------------------------

func newExportCmd() *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "export KEY",
		Short: "Write an existing record out as a draft",
		Long: `Write the lesson record KEY from the data file as a draft, ready to be
edited and applied back. The draft goes to <drafts_dir>/KEY.md unless
--out is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], out, force)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing draft")
	return cmd
}

func runExport(key, out string, force bool) error {
	proj, err := openProject()
	if err != nil {
		return err
	}
	c, err := lesson.ParseFile(proj.DataFile)
	if err != nil {
		return err
	}
	e, err := c.Lookup(key)
	if err != nil {
		return err
	}
	if e.Templated {
		logWarning("%s contains ${...} substitutions; the draft is marked templated and keeps them live", key)
	}

	path := filepath.Join(proj.DraftsDir, key+".md")
	if out != "" {
		path = proj.Path(out)
	}
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	d := draft.FromRecord(e.Record)
	if err := d.WriteFile(path); err != nil {
		return err
	}
	res := validate.Check(d.Content, mustBounds(proj.Config))
	logSuccess("Exported %s to %s (%d chars, %d parts)", key, rel(proj, path), res.Chars, res.Parts)
	return nil
}

func mustBounds(cfg *config.File) validate.Bounds {
	b, err := cfg.Bounds("")
	if err != nil {
		return validate.Standard
	}
	return b
}

// ---------------------------------------------------------------------------
// translate-desc (asset descriptions -> review files)
// ---------------------------------------------------------------------------

type translateArgs struct {
	target     string
	i18nFile   string
	outDir     string
	prefix     string
	retries    int
	delay      time.Duration
	retryDelay time.Duration
	batchSize  int
	batchDelay time.Duration
	noCache    bool
	reset      bool
	dryRun     bool
	verbose    bool

	provider, apiKey, model, baseURL, proxy string
	timeout                                 time.Duration
}

func newTranslateDescCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate-desc <lang|all>",
		Short: "Translate asset descriptions into patch files",
		Long: `Translate the desc_* strings of the English block in the i18n source.

Each string is translated on its own with a pause between requests and a
longer pause between batches. A string that still fails after --retries
attempts (waiting retry-delay x attempt between them) keeps its English
text and is marked as untranslated; the run continues.

For every language the command writes, under the output directory:
  descriptions_<lang>.ts   generated module exporting the mapping
  descriptions_<lang>.txt  lines to paste into src/i18n.ts, marked
                           new / changed / untranslated (fallback)
and descriptions_all.json when more than one language was translated.
The i18n source is never modified.

Examples:
  lessonkit translate-desc de
  lessonkit translate-desc ru,uk,pl --delay 1s
  lessonkit translate-desc all --batch-size 5 --batch-delay 10s`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				_ = cmd.Usage()
				return fmt.Errorf("expected one language argument: a code such as de, a comma-separated list, or all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.target = args[0]
			return runTranslateDesc(cmd.Flags(), a)
		},
	}

	cmd.Flags().StringVar(&a.i18nFile, "i18n", "", "I18n source file (default from .lessonkit.yaml)")
	cmd.Flags().StringVar(&a.outDir, "out", "", "Output directory (default translated_descriptions)")
	cmd.Flags().StringVar(&a.prefix, "prefix", "", "Key prefix of description strings (default desc_)")
	cmd.Flags().IntVar(&a.retries, "retries", 5, "Attempts per string before falling back to the source text")
	cmd.Flags().DurationVar(&a.delay, "delay", 500*time.Millisecond, "Pause between requests")
	cmd.Flags().DurationVar(&a.retryDelay, "retry-delay", 2*time.Second, "Base wait between attempts, multiplied by the attempt number")
	cmd.Flags().IntVar(&a.batchSize, "batch-size", 10, "Requests per batch (0 = no batch pauses)")
	cmd.Flags().DurationVar(&a.batchDelay, "batch-delay", 2*time.Second, "Pause between batches and between languages")
	cmd.Flags().BoolVar(&a.noCache, "no-cache", false, "Ignore and do not update lessonkit.lock")
	cmd.Flags().BoolVar(&a.reset, "reset", false, "Discard cached translations for the target languages first")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Show what would be translated without calling the service")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Log every failed attempt")

	// Provider selection
	cmd.Flags().StringVar(&a.provider, "provider", "", "Translation backend: google-translate (default), gemini, groq, ollama, custom-openai")
	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key for AI providers (or LESSONKIT_API_KEY)")
	cmd.Flags().StringVar(&a.model, "model", "", "Model for AI providers")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Custom API base URL")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = provider default)")

	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{
			"google-translate\tGoogle Translate web endpoint (no key)",
			"gemini\tGoogle AI (Gemini), API key required",
			"groq\tGroq, API key required",
			"ollama\tOllama local server",
			"custom-openai\tCustom OpenAI-compatible endpoint",
		}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// mergeTranslateFlags applies explicitly set flags over the config section.
func mergeTranslateFlags(fs *pflag.FlagSet, t config.Translate, a translateArgs) config.Translate {
	if fs.Changed("prefix") {
		t.KeyPrefix = a.prefix
	}
	if fs.Changed("retries") {
		t.Retries = a.retries
	}
	if fs.Changed("delay") {
		t.Delay = a.delay
	}
	if fs.Changed("retry-delay") {
		t.RetryDelay = a.retryDelay
	}
	if fs.Changed("batch-size") {
		t.BatchSize = a.batchSize
	}
	if fs.Changed("batch-delay") {
		t.BatchDelay = a.batchDelay
	}
	if a.provider != "" {
		t.Provider = a.provider
	}
	if a.apiKey != "" {
		t.APIKey = a.apiKey
	}
	if a.model != "" {
		t.Model = a.model
	}
	if a.baseURL != "" {
		t.BaseURL = a.baseURL
	}
	if a.proxy != "" {
		t.Proxy = a.proxy
	}
	if a.timeout > 0 {
		t.Timeout = a.timeout
	}
	return t
}

func runTranslateDesc(fs *pflag.FlagSet, a translateArgs) error {
	proj, err := openProject()
	if err != nil {
		return err
	}
	tc := mergeTranslateFlags(fs, proj.Config.Translate, a)
	if tc.Retries < 1 {
		return fmt.Errorf("--retries must be at least 1")
	}

	i18nPath := proj.I18nFile
	if a.i18nFile != "" {
		i18nPath = proj.Path(a.i18nFile)
	}
	outDir := proj.OutputDir
	if a.outDir != "" {
		outDir = proj.Path(a.outDir)
	}

	src, err := i18nsrc.ReadFile(i18nPath)
	if err != nil {
		return err
	}
	entries, err := i18nsrc.Descriptions(src, tc.SourceLang, tc.KeyPrefix)
	if err != nil {
		return fmt.Errorf("%s: %w", i18nPath, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("%s: no %s* strings in the %s block", i18nPath, tc.KeyPrefix, tc.SourceLang)
	}
	langs, err := langmeta.Expand(a.target, proj.TargetLanguages(), tc.SourceLang)
	if err != nil {
		return err
	}

	items := make([]translate.Item, len(entries))
	for i, e := range entries {
		items[i] = translate.Item{Key: e.Key, Text: e.Value}
	}
	logInfo("Found %d %s* strings in the %s block of %s", len(items), tc.KeyPrefix, tc.SourceLang, rel(proj, i18nPath))

	var lock *lockfile.LockFile
	if !a.noCache {
		if lock, err = lockfile.Load(proj.Root); err != nil {
			return err
		}
		if a.reset {
			for _, lang := range langs {
				lock.RemoveLang(lang)
			}
			logInfo("Discarded cached translations for: %s", strings.Join(langs, ", "))
		}
	}

	if a.dryRun {
		printTranslatePlan(items, langs, lock)
		return nil
	}

	tr, err := translate.New(tc.Provider, translate.Provider{
		BaseURL: tc.BaseURL,
		APIKey:  tc.APIKey,
		Model:   tc.Model,
		Proxy:   tc.Proxy,
		Timeout: tc.Timeout,
	})
	if err != nil {
		return err
	}
	provider := tc.Provider
	if provider == "" {
		provider = translate.ProviderGoogleTranslate
	}
	logInfo("Provider: %s, retries: %d, delay: %v, batch: %d / %v", provider, tc.Retries, tc.Delay, tc.BatchSize, tc.BatchDelay)
	logInfo("Translating to: %s", strings.Join(langs, ", "))

	// Setup signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("Interrupted, writing partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	prog := newProgress(stderrIsTerminal() && !noColor)
	opts := translate.Options{
		From:       tc.SourceLang,
		Retries:    tc.Retries,
		RetryDelay: tc.RetryDelay,
		Delay:      tc.Delay,
		BatchSize:  tc.BatchSize,
		BatchDelay: tc.BatchDelay,
		Verbose:    a.verbose,
		OnProgress: prog.update,
		OnLog: func(format string, args ...any) {
			prog.clear()
			logInfo(format, args...)
		},
		OnError: func(format string, args ...any) {
			prog.clear()
			logWarning(format, args...)
		},
	}
	if lock != nil {
		opts.Cache = lock
	}

	results, runErr := translate.TranslateAll(ctx, tr, items, langs, opts)
	prog.finish()
	interrupted := runErr != nil && ctx.Err() != nil
	if runErr != nil && !interrupted {
		return fmt.Errorf("translation failed: %w", runErr)
	}
	if len(results) == 0 {
		logWarning("Translation interrupted before any string was done, nothing written")
		return nil
	}

	out := make([]patch.Language, 0, len(results))
	for _, lr := range results {
		out = append(out, patchLanguage(src, lr, len(items), tc.KeyPrefix))
	}
	written, allPath, err := patch.Write(outDir, out)
	if err != nil {
		return err
	}

	if lock != nil {
		keys := make([]string, len(items))
		for i, it := range items {
			keys[i] = it.Key
		}
		for _, lr := range results {
			if !lr.Partial {
				lock.Clean(lr.Lang, keys)
			}
		}
		if err := lock.Save(); err != nil {
			logWarning("Could not save lock file: %v", err)
		} else {
			nl, nk := lock.Stats()
			logInfo("Lock file: %d languages, %d keys", nl, nk)
		}
	}

	printTranslateSummary(proj, results, written, allPath)

	if interrupted {
		logWarning("Translation interrupted, partial results written")
		return nil
	}
	logSuccess("Translation complete! Review the .txt patches and merge them into %s by hand.", rel(proj, i18nPath))
	return nil
}

// patchLanguage pairs a language's results with its existing block, if any.
func patchLanguage(src []byte, lr translate.LangResult, total int, prefix string) patch.Language {
	l := patch.Language{
		Lang:    lr.Lang,
		Label:   lr.Lang,
		Results: lr.Results,
		Partial: lr.Partial,
		Total:   total,
	}
	if meta, err := langmeta.Resolve(lr.Lang); err == nil {
		l.Label = meta.Label()
	}
	if existing, err := i18nsrc.Descriptions(src, lr.Lang, prefix); err == nil {
		l.Existing = i18nsrc.Map(existing)
	} else if !errors.Is(err, i18nsrc.ErrBlockNotFound) {
		logWarning("%s: existing block not readable, treating every key as new: %v", lr.Lang, err)
	}
	return l
}

func printTranslatePlan(items []translate.Item, langs []string, lock *lockfile.LockFile) {
	fmt.Fprintf(os.Stderr, "\n%-8s %-10s %-8s\n", "Lang", "Translate", "Cached")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 28))
	for _, lang := range langs {
		pending := pendingCount(items, lang, lock)
		fmt.Fprintf(os.Stderr, "%-8s %-10d %-8d\n", lang, pending, len(items)-pending)
	}
	fmt.Fprintln(os.Stderr)
}

// pendingCount returns how many items have no up-to-date cached translation.
func pendingCount(items []translate.Item, lang string, lock *lockfile.LockFile) int {
	if lock == nil {
		return len(items)
	}
	entries := make(map[string]string, len(items))
	for _, it := range items {
		entries[it.Key] = it.Text
	}
	return len(lock.FilterChanged(lang, entries))
}

func printTranslateSummary(proj *config.Project, results []translate.LangResult, written []patch.Written, allPath string) {
	fmt.Fprintf(os.Stderr, "\n%sTranslation Summary%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))
	fmt.Fprintf(os.Stderr, "%-8s %-11s %-7s %-9s %-5s %-8s %s\n", "Lang", "Translated", "Cached", "Fallback", "New", "Changed", "Files")
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))
	for i, lr := range results {
		t, c, f := translate.Counts(lr.Results)
		w := written[i]
		lang := lr.Lang
		if lr.Partial {
			lang += "*"
		}
		fallback := fmt.Sprintf("%-9d", f)
		if f > 0 {
			fallback = colorYellow + fallback + colorReset
		}
		fmt.Fprintf(os.Stderr, "%-8s %-11d %-7d %s %-5d %-8d %s, %s\n", lang, t, c, fallback,
			w.Counts[merge.LabelNew], w.Counts[merge.LabelChanged],
			filepath.Base(w.TSPath), filepath.Base(w.TXTPath))
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 64))
	if allPath != "" {
		fmt.Fprintf(os.Stderr, "Combined: %s\n", rel(proj, allPath))
	}
	for _, lr := range results {
		if lr.Partial {
			fmt.Fprintf(os.Stderr, "* %s: interrupted after %d strings\n", lr.Lang, len(lr.Results))
		}
	}
	fmt.Fprintln(os.Stderr)
}

// ---------------------------------------------------------------------------
// Progress display
// ---------------------------------------------------------------------------

// progress renders one bar per language on terminals and periodic log
// lines otherwise.
type progress struct {
	interactive bool
	lang        string
	bar         *progressbar.ProgressBar
}

func newProgress(interactive bool) *progress {
	return &progress{interactive: interactive}
}

func (p *progress) update(lang string, done, total int) {
	if !p.interactive {
		if done == total || done%10 == 0 {
			logInfo("  %s: %d/%d", lang, done, total)
		}
		return
	}
	if p.bar == nil || p.lang != lang {
		p.finish()
		p.lang = lang
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%-6s[reset]", lang)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) clear() {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
}

func (p *progress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(os.Stderr)
	p.bar = nil
}

// ---------------------------------------------------------------------------
// langs (language registry)
// ---------------------------------------------------------------------------

func newLangsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "langs",
		Short: "List supported target languages",
		Long: `List target languages with their native names. By default only the
languages translate-desc would use for "all" are shown: the configured list,
the languages already in the i18n source, or the game's default set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, err := openProject()
			if err != nil {
				return err
			}
			runLangs(proj, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every language in the registry")
	return cmd
}

func runLangs(proj *config.Project, all bool) {
	present := make(map[string]bool)
	for _, l := range proj.I18nLanguages() {
		present[l] = true
	}

	codes := proj.TargetLanguages()
	if len(codes) == 0 {
		codes = langmeta.GameLanguages
	}
	if all {
		codes = langmeta.Codes()
	}

	fmt.Fprintf(os.Stderr, "%s%-8s %-28s %-24s %s%s\n", colorCyan, "Code", "Language", "Native", "In i18n", colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 72))
	for _, code := range codes {
		l, err := langmeta.Resolve(code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%-8s %s%s%s\n", code, colorRed, err, colorReset)
			continue
		}
		mark := "-"
		if present[l.Code] {
			mark = colorGreen + "yes" + colorReset
		}
		fmt.Fprintf(os.Stderr, "%-8s %-28s %-24s %s\n", l.Code, truncate(l.Name, 28), truncate(l.Native, 24), mark)
	}
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 72))
	fmt.Fprintf(os.Stderr, "%d languages\n", len(codes))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
