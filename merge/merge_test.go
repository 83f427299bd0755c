package merge

import (
	"reflect"
	"testing"

	"github.com/minios-linux/lessonkit/translate"
)

func TestDiffLabelsAndObsolete(t *testing.T) {
	existing := map[string]string{
		"desc_BTC":  "Биткоин",
		"desc_GOLD": "Золото",
		"desc_OLD":  "Старое",
	}
	translated := []translate.Result{
		{Key: "desc_BTC", Text: "Биткоин", Status: translate.StatusCached},
		{Key: "desc_GOLD", Text: "Золото, драгоценный металл", Status: translate.StatusTranslated},
		{Key: "desc_OIL", Text: "Crude oil", Status: translate.StatusFallback},
	}

	changes, obsolete := Diff(existing, translated)
	if len(changes) != 3 {
		t.Fatalf("changes len = %d, want 3", len(changes))
	}

	want := []Label{LabelUnchanged, LabelChanged, LabelNew}
	for i, c := range changes {
		if c.Label != want[i] {
			t.Errorf("changes[%d] (%s) label = %s, want %s", i, c.Key, c.Label, want[i])
		}
	}
	if changes[1].Old != "Золото" {
		t.Errorf("changed entry Old = %q", changes[1].Old)
	}
	if changes[2].Old != "" || !changes[2].Fallback {
		t.Errorf("new fallback entry = %+v", changes[2])
	}
	if !reflect.DeepEqual(obsolete, []string{"desc_OLD"}) {
		t.Errorf("obsolete = %v, want [desc_OLD]", obsolete)
	}
}

func TestDiffNoExistingBlock(t *testing.T) {
	changes, obsolete := Diff(nil, []translate.Result{{Key: "a", Text: "x"}})
	if len(changes) != 1 || changes[0].Label != LabelNew {
		t.Fatalf("changes = %+v, want one new entry", changes)
	}
	if obsolete != nil {
		t.Fatalf("obsolete = %v, want nil", obsolete)
	}
}

func TestPendingAndCount(t *testing.T) {
	changes := []Change{
		{Key: "a", Label: LabelNew},
		{Key: "b", Label: LabelUnchanged},
		{Key: "c", Label: LabelChanged},
		{Key: "d", Label: LabelUnchanged},
	}
	pending := Pending(changes)
	if len(pending) != 2 || pending[0].Key != "a" || pending[1].Key != "c" {
		t.Fatalf("Pending = %+v", pending)
	}

	n := Count(changes)
	if n[LabelNew] != 1 || n[LabelChanged] != 1 || n[LabelUnchanged] != 2 {
		t.Fatalf("Count = %v", n)
	}
}
