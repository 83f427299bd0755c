package patch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minios-linux/lessonkit/merge"
	"github.com/minios-linux/lessonkit/translate"
)

func german() Language {
	return Language{
		Lang:  "de",
		Label: "de (German, Deutsch)",
		Results: []translate.Result{
			{Key: "desc_BTC", Source: "Bitcoin", Text: "Bitcoin", Status: translate.StatusCached},
			{Key: "desc_GOLD", Source: "Gold, a \"safe\" asset", Text: "Gold, ein \"sicherer\" Wert", Status: translate.StatusTranslated},
			{Key: "desc_OIL", Source: "Crude oil", Text: "Crude oil", Status: translate.StatusFallback},
		},
		Existing: map[string]string{
			"desc_BTC":  "Bitcoin",
			"desc_GOLD": "Gold",
			"desc_OLD":  "Alt",
		},
		Total: 3,
	}
}

func TestModule(t *testing.T) {
	got := string(Module(german()))

	for _, want := range []string{
		"// Translated descriptions: de (German, Deutsch)\n",
		"export const descriptions: Record<string, string> = {\n",
		`  "desc_GOLD": "Gold, ein \"sicherer\" Wert",` + "\n",
		`  "desc_OIL": "Crude oil", // untranslated (fallback)` + "\n",
		"export default descriptions;\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("module missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "PARTIAL") {
		t.Error("complete run marked partial")
	}
}

func TestModulePartial(t *testing.T) {
	l := german()
	l.Results = l.Results[:1]
	l.Partial = true
	got := string(Module(l))
	if !strings.Contains(got, "// PARTIAL: interrupted after 1 of 3 strings.") {
		t.Fatalf("partial header missing:\n%s", got)
	}
}

func TestPatch(t *testing.T) {
	l := german()
	changes, obsolete := merge.Diff(l.Existing, l.Results)
	got := string(Patch(l, changes, obsolete))

	if strings.Contains(got, `"desc_BTC"`) {
		t.Errorf("unchanged key written to patch:\n%s", got)
	}
	for _, want := range []string{
		"// 1 new, 1 changed, 1 untranslated; 1 unchanged omitted\n",
		`"desc_GOLD": "Gold, ein \"sicherer\" Wert", // changed` + "\n",
		`"desc_OIL": "Crude oil", // new, untranslated (fallback)` + "\n",
		"//   desc_OLD\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("patch missing %q:\n%s", want, got)
		}
	}
}

func TestWriteSingleLanguage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "translated_descriptions")

	written, jsonPath, err := Write(dir, []Language{german()})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if jsonPath != "" {
		t.Errorf("combined JSON written for a single language: %s", jsonPath)
	}
	if len(written) != 1 {
		t.Fatalf("written = %d, want 1", len(written))
	}
	w := written[0]
	if w.Fallback != 1 || w.Counts[merge.LabelNew] != 1 || len(w.Obsolete) != 1 {
		t.Errorf("summary = %+v", w)
	}
	for _, p := range []string{w.TSPath, w.TXTPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
	if filepath.Base(w.TSPath) != "descriptions_de.ts" || filepath.Base(w.TXTPath) != "descriptions_de.txt" {
		t.Errorf("file names = %s, %s", w.TSPath, w.TXTPath)
	}
	if _, err := os.Stat(filepath.Join(dir, AllFileName)); !os.IsNotExist(err) {
		t.Errorf("%s should not exist", AllFileName)
	}
}

func TestWriteMultipleLanguages(t *testing.T) {
	dir := t.TempDir()
	ru := Language{
		Lang:    "ru",
		Results: []translate.Result{{Key: "desc_BTC", Text: "Биткоин <BTC> & co", Status: translate.StatusTranslated}},
	}

	_, jsonPath, err := Write(dir, []Language{german(), ru})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if jsonPath != filepath.Join(dir, AllFileName) {
		t.Fatalf("json path = %q", jsonPath)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<BTC> & co") {
		t.Errorf("HTML characters escaped in JSON:\n%s", data)
	}
	var all map[string]map[string]string
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if all["de"]["desc_OIL"] != "Crude oil" || all["ru"]["desc_BTC"] != "Биткоин <BTC> & co" {
		t.Errorf("combined JSON = %v", all)
	}
}
