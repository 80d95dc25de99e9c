// Package docserve keeps a versioned snapshot of the active document and
// serves it over HTTP so out-of-process completion sources can read buffer
// content without a second control channel into the editor.
package docserve

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/popmux/pkg/merge"
)

// Editor is the live-version oracle: synchronous calls back into the
// editor's state. Both calls may block and must therefore only be issued
// from the serving goroutine, never from the event processing loop.
type Editor interface {
	CurrentVersion() (merge.Version, error)
	DocumentText() (string, error)
}

// VersionCache stores the most recent document text together with the
// version it was read at. One mutex covers the live version, the cached
// version and the text so readers always observe a consistent pair.
type VersionCache struct {
	editor Editor

	mu         sync.Mutex
	live       merge.Version
	haveLive   bool
	cachedAt   merge.Version
	haveCached bool
	text       string
}

// NewVersionCache builds a cache over the given oracle. A nil editor
// disables re-querying: only versions announced through
// SetCurrentVersion can then be served.
func NewVersionCache(editor Editor) *VersionCache {
	return &VersionCache{editor: editor}
}

// SetCurrentVersion records the version the coordination side just
// observed. It is the only cache write the event loop performs and it
// never blocks on the editor.
func (c *VersionCache) SetCurrentVersion(v merge.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = v
	c.haveLive = true
}

// Get returns the document text for the requested version, or ok=false
// when the document has already moved past it. Stale content is never
// served: the caller's picture of the buffer would silently be wrong.
func (c *VersionCache) Get(requested merge.Version) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.haveLive || !c.live.Equal(requested) {
		if c.editor == nil {
			log.Debugf("no oracle and live version does not match %+v", requested)
			return "", false
		}
		v, err := c.editor.CurrentVersion()
		if err != nil {
			log.Errorf("query live version: %v", err)
			return "", false
		}
		c.live = v
		c.haveLive = true
	}
	if !c.live.Equal(requested) {
		log.Debugf("version %+v is outdated, not serving", requested)
		return "", false
	}

	if !c.haveCached || !c.cachedAt.Equal(c.live) {
		if c.editor == nil {
			return "", false
		}
		text, err := c.editor.DocumentText()
		if err != nil {
			log.Errorf("read document text: %v", err)
			return "", false
		}
		c.text = text
		c.cachedAt = c.live
		c.haveCached = true
		log.Debugf("rebuilt content cache at version %+v (%d bytes)", c.live, len(text))
	}
	return c.text, true
}
