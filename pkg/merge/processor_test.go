package merge

import (
	"reflect"
	"testing"
)

func testCtx(typed string) Context {
	return Context{
		Typed:    typed,
		Col:      len(typed) + 1,
		Filetype: "go",
		Tick:     1,
		Cursor:   [2]int{1, len(typed) + 1},
	}
}

func words(matches []MatchRecord) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Word
	}
	return out
}

func TestProcessFiltering(t *testing.T) {
	proc := NewProcessor(nil)
	src := SourceDescriptor{Name: "tags"}

	testCases := []struct {
		typed       string
		startcol    int
		raw         []any
		expected    []string
		description string
	}{
		{"foo", 1, []any{"foo", "foobar", "bar"}, []string{"foo", "foobar"}, "Prefix keeps matching words only"},
		{"Foo", 1, []any{"foobar", "FOOD"}, []string{"FOOD", "foobar"}, "Filter is case folded both ways"},
		{"foo", 1, []any{"fo"}, nil, "Word shorter than prefix never matches"},
		{"x.fo", 3, []any{"foo", "bar"}, []string{"foo"}, "Prefix starts at startcol, not column one"},
		{"foo", 4, []any{"anything", "at all"}, []string{"at all", "anything"}, "Empty prefix keeps everything"},
		{"foo", 9, []any{"foo"}, nil, "Startcol beyond typed text yields nothing"},
		{"foo", 0, []any{"foo"}, nil, "Startcol below one yields nothing"},
		{"fo", 1, []any{42, map[string]any{"menu": "no word"}}, nil, "Unusable raw shapes are dropped"},
		{"fo", 1, []any{map[string]any{"word": "form"}}, []string{"form"}, "Structured candidate keeps its word"},
	}

	for _, tc := range testCases {
		got := proc.Process(src, testCtx(tc.typed), tc.startcol, tc.raw)
		if !reflect.DeepEqual(words(got), tc.expected) && !(len(got) == 0 && len(tc.expected) == 0) {
			t.Errorf("%s: typed %q startcol %d: got %v, want %v",
				tc.description, tc.typed, tc.startcol, words(got), tc.expected)
		}
	}
}

func TestProcessAnnotation(t *testing.T) {
	proc := NewProcessor(nil)
	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}

	testCases := []struct {
		abbr         string
		raw          map[string]any
		expectedMenu string
		description  string
	}{
		{"py", map[string]any{"word": "foo", "menu": "kept"}, "kept", "Existing menu is never replaced"},
		{"py", map[string]any{"word": "foo", "info": "os.path"}, "py :os.path", "Short info combines with abbreviation"},
		{"", map[string]any{"word": "foo", "info": "os.path"}, "os.path", "Short info stands alone without abbreviation"},
		{"py", map[string]any{"word": "foo", "info": string(long)}, "py", "Long info falls back to abbreviation"},
		{"py", map[string]any{"word": "foo"}, "py", "No info uses abbreviation alone"},
		{"", map[string]any{"word": "foo"}, "", "No info and no abbreviation leaves menu empty"},
	}

	for _, tc := range testCases {
		src := SourceDescriptor{Name: "s", Abbreviation: tc.abbr}
		got := proc.Process(src, testCtx("fo"), 1, []any{tc.raw})
		if len(got) != 1 {
			t.Fatalf("%s: expected one match, got %d", tc.description, len(got))
		}
		if got[0].Menu != tc.expectedMenu {
			t.Errorf("%s: menu %q, want %q", tc.description, got[0].Menu, tc.expectedMenu)
		}
	}
}

func TestProcessOrdering(t *testing.T) {
	proc := NewProcessor(nil)
	src := SourceDescriptor{Name: "s"}

	raw := []any{"abcde", "abc", "abcd", "abcxy"}
	got := proc.Process(src, testCtx("ab"), 1, raw)

	expected := []string{"abc", "abcd", "abcde", "abcxy"}
	if !reflect.DeepEqual(words(got), expected) {
		t.Errorf("length ordering with stable ties: got %v, want %v", words(got), expected)
	}
}

func TestProcessPurity(t *testing.T) {
	proc := NewProcessor(nil)
	src := SourceDescriptor{Name: "s", Abbreviation: "tag"}
	ctx := testCtx("fo")
	raw := []any{
		"forward",
		map[string]any{"word": "form", "info": "a shape", "kind": "n"},
	}

	first := proc.Process(src, ctx, 1, raw)
	second := proc.Process(src, ctx, 1, raw)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical input differ:\n%v\n%v", first, second)
	}
}

func TestNormalizeDeepCopies(t *testing.T) {
	nested := map[string]any{"snippet": []any{"body"}}
	raw := map[string]any{"word": "foo", "user_data": nested}

	rec, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected a usable record")
	}

	copied := rec.Extras["user_data"].(map[string]any)
	copied["snippet"].([]any)[0] = "mutated"

	if nested["snippet"].([]any)[0] != "body" {
		t.Error("normalizing aliased the source's nested state")
	}
}
