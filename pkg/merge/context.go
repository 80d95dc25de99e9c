// Package merge is the coordination core: it owns per-source match state,
// drives the refresh protocol and folds every source's candidates into one
// ranked list for the editor's popup.
package merge

// Version identifies one edit state of the document: the editor's
// monotonically increasing change tick plus the cursor position.
// Two contexts belong to the same cycle iff their versions are equal.
type Version struct {
	Tick   int64  `msgpack:"changedtick" json:"changedtick"`
	Cursor [2]int `msgpack:"curpos" json:"curpos"`
}

// Equal reports whether two versions describe the same edit state.
func (v Version) Equal(o Version) bool {
	return v.Tick == o.Tick && v.Cursor == o.Cursor
}

// Context is one edit-cycle snapshot handed over by the editor.
// Col is 1-based; Typed is the line content up to the cursor.
type Context struct {
	Typed    string `msgpack:"typed"`
	Col      int    `msgpack:"col"`
	Filetype string `msgpack:"filetype"`
	Scope    string `msgpack:"scope,omitempty"`
	Tick     int64  `msgpack:"changedtick"`
	Cursor   [2]int `msgpack:"curpos"`
	FileURL  string `msgpack:"file_url,omitempty"`
}

// Version extracts the change-detection pair from the context.
func (c Context) Version() Version {
	return Version{Tick: c.Tick, Cursor: c.Cursor}
}

// CurrentScope returns the scope tag, falling back to the filetype
// when no finer-grained scope was detected.
func (c Context) CurrentScope() string {
	if c.Scope != "" {
		return c.Scope
	}
	return c.Filetype
}

// Channel is an async notification target for an out-of-process source.
type Channel struct {
	ID int64 `msgpack:"id"`
}

// SourceDescriptor is the per-source metadata the editor supplies each cycle.
type SourceDescriptor struct {
	Name           string    `msgpack:"name"`
	Priority       int       `msgpack:"priority"`
	Scopes         []string  `msgpack:"scopes,omitempty"`
	Refresh        int       `msgpack:"refresh,omitempty"`
	Channels       []Channel `msgpack:"channels,omitempty"`
	Abbreviation   string    `msgpack:"abbreviation,omitempty"`
	HasSyncRefresh bool      `msgpack:"sync_refresh,omitempty"`
}

// InScope reports whether the source applies to the context's scope.
// An empty scope list defaults to the universal scope.
func (s SourceDescriptor) InScope(ctx Context) bool {
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = []string{"*"}
	}
	cur := ctx.CurrentScope()
	for _, scope := range scopes {
		if scope == "*" || scope == cur {
			return true
		}
	}
	return false
}

// IsWordChar reports whether b belongs to the completion word class.
func IsWordChar(b byte) bool {
	return b >= '0' && b <= '9' ||
		b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b == '_'
}

// WordStart returns the 1-based column where the word under the cursor
// begins, scanning typed backwards from its end.
func WordStart(typed string) int {
	i := len(typed)
	for i > 0 && IsWordChar(typed[i-1]) {
		i--
	}
	return i + 1
}
