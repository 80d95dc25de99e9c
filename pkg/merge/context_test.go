package merge

import "testing"

func TestSourceDescriptorInScope(t *testing.T) {
	testCases := []struct {
		scopes      []string
		filetype    string
		scope       string
		expected    bool
		description string
	}{
		{nil, "go", "", true, "No scopes defaults to universal"},
		{[]string{"*"}, "go", "", true, "Universal scope always applies"},
		{[]string{"python"}, "go", "", false, "Mismatched filetype is out of scope"},
		{[]string{"python", "go"}, "go", "", true, "Any listed scope may match"},
		{[]string{"sql"}, "python", "sql", true, "Detected scope wins over filetype"},
		{[]string{"python"}, "python", "sql", false, "Filetype is ignored once a scope is detected"},
	}

	for _, tc := range testCases {
		src := SourceDescriptor{Name: "s", Scopes: tc.scopes}
		ctx := Context{Filetype: tc.filetype, Scope: tc.scope}
		if got := src.InScope(ctx); got != tc.expected {
			t.Errorf("%s: scopes %v against filetype %q scope %q: got %v",
				tc.description, tc.scopes, tc.filetype, tc.scope, got)
		}
	}
}

func TestWordStart(t *testing.T) {
	testCases := []struct {
		typed       string
		expected    int
		description string
	}{
		{"", 1, "Empty typed text starts at column one"},
		{"foo", 1, "A single word starts at column one"},
		{"x := han", 6, "Word starts after the last separator"},
		{"foo.", 5, "Cursor right after a separator starts a new word"},
		{"a_b1", 1, "Underscores and digits belong to the word"},
	}

	for _, tc := range testCases {
		if got := WordStart(tc.typed); got != tc.expected {
			t.Errorf("%s: WordStart(%q) = %d, want %d", tc.description, tc.typed, got, tc.expected)
		}
	}
}

func TestVersionEqual(t *testing.T) {
	a := Version{Tick: 1, Cursor: [2]int{1, 4}}
	if !a.Equal(Version{Tick: 1, Cursor: [2]int{1, 4}}) {
		t.Error("identical versions must compare equal")
	}
	if a.Equal(Version{Tick: 2, Cursor: [2]int{1, 4}}) {
		t.Error("a different tick is a different version")
	}
	if a.Equal(Version{Tick: 1, Cursor: [2]int{1, 5}}) {
		t.Error("a moved cursor is a different version")
	}
}
