package merge

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// SourceState is the per-source slice of coordinator state: where the
// source's completion range starts, its raw candidates, and the processed
// list from the latest merge. It rides along on emitted completions so the
// editor side can inspect what each source contributed.
type SourceState struct {
	Startcol      int           `msgpack:"startcol"`
	Raw           []any         `msgpack:"matches"`
	LastProcessed []MatchRecord `msgpack:"last_matches"`
}

// ChannelRefresh asks the editor to deliver a refresh notification to one
// channel of an out-of-process source.
type ChannelRefresh struct {
	Name    string  `msgpack:"name"`
	ID      int64   `msgpack:"id"`
	Context Context `msgpack:"context"`
}

// Emitter is the coordinator's outbound edge into the editor. Both calls
// are fire-and-forget notifications; neither may block the event loop.
type Emitter interface {
	Complete(ctx Context, startcol int, matches []MatchRecord, state map[string]SourceState) error
	NotifyRefresh(syncNames []string, channels []ChannelRefresh, ctx Context) error
}

// DocumentCache stamps outgoing contexts with a fetchable content
// reference and tracks the live document version for staleness checks.
type DocumentCache interface {
	SetCurrentVersion(v Version)
	FetchURL(ctx Context) string
}

// LocalSource is an in-process completion source the coordinator can
// invoke directly during a refresh cycle. Refresh must not block; results
// come back later through OnSourceMatches like any other source.
type LocalSource interface {
	Descriptor() SourceDescriptor
	Refresh(ctx Context)
}

// Coordinator owns all per-source match state and the popup flag for one
// editor session. Every method must be called from the single event
// processing goroutine; the coordinator does no locking of its own.
type Coordinator struct {
	emitter Emitter
	proc    *Processor
	docs    DocumentCache

	sources     map[string]SourceDescriptor
	matches     map[string]*SourceState
	locals      map[string]LocalSource
	lastEmitted []MatchRecord
	poppedUp    bool
}

// NewCoordinator wires the coordinator to its collaborators. docs may be
// nil when no document server is running (contexts then carry no URL).
func NewCoordinator(emitter Emitter, proc *Processor, docs DocumentCache) *Coordinator {
	if proc == nil {
		proc = NewProcessor(nil)
	}
	return &Coordinator{
		emitter: emitter,
		proc:    proc,
		docs:    docs,
		sources: make(map[string]SourceDescriptor),
		matches: make(map[string]*SourceState),
		locals:  make(map[string]LocalSource),
	}
}

// AddLocal registers an in-process source. Its descriptor joins the
// editor-supplied set on every refresh cycle.
func (c *Coordinator) AddLocal(src LocalSource) {
	desc := src.Descriptor()
	if _, dup := c.locals[desc.Name]; dup {
		log.Warnf("local source %q already registered, replacing", desc.Name)
	}
	c.locals[desc.Name] = src
}

// OnSourceMatches records one source's response for the current cycle.
// State is persisted before anything can skip the response: a later merge
// must see exactly what the source last reported, even when this response
// itself is not worth acting on. Empty matches delete the entry.
func (c *Coordinator) OnSourceMatches(srcs map[string]SourceDescriptor, name string, ctx Context, startcol int, raw []any) {
	if srcs != nil {
		c.updateSources(srcs)
	}

	wasVisible := false
	if st := c.matches[name]; st != nil && len(st.LastProcessed) > 0 {
		wasVisible = true
	}

	if len(raw) == 0 {
		delete(c.matches, name)
	} else {
		st := c.matches[name]
		if st == nil {
			st = &SourceState{}
			c.matches[name] = st
		}
		st.Startcol = startcol
		st.Raw = raw
	}

	// Process eagerly to decide whether this response changes anything.
	// A source arriving late with nothing new must not refresh the popup.
	processed := c.proc.Process(c.sources[name], ctx, startcol, raw)
	if len(processed) == 0 && !wasVisible {
		log.Debugf("source %q reported nothing new (startcol %d), not refreshing", name, startcol)
		return
	}

	if c.poppedUp {
		c.mergeAndEmit(ctx)
	}
}

// OnTypedReset clears all match state; the editor entered a fresh insert
// session and nothing cached can still apply.
func (c *Coordinator) OnTypedReset() {
	c.matches = make(map[string]*SourceState)
}

// OnRefreshTimeout is the debounce boundary: when no source was fast
// enough to pop the menu, force a merge with whatever arrived so far.
// A no-op once the popup already fired this cycle.
func (c *Coordinator) OnRefreshTimeout(srcs map[string]SourceDescriptor, ctx Context) {
	if srcs != nil {
		c.updateSources(srcs)
	}
	if !c.poppedUp {
		c.mergeAndEmit(ctx)
		c.poppedUp = true
	}
}

// OnRefresh starts a new cycle: stamps the context with a content URL,
// decides per source whether it needs re-querying, and either merges
// immediately (nothing to ask) or fans the refresh out and waits for
// responses to arrive through OnSourceMatches.
func (c *Coordinator) OnRefresh(srcs map[string]SourceDescriptor, ctx Context) {
	if c.docs != nil {
		c.docs.SetCurrentVersion(ctx.Version())
		ctx.FileURL = c.docs.FetchURL(ctx)
	}

	c.updateSources(srcs)
	c.poppedUp = false

	if ctx.Typed == "" || !IsWordChar(ctx.Typed[len(ctx.Typed)-1]) {
		c.matches = make(map[string]*SourceState)
	}

	var syncNames []string
	var channels []ChannelRefresh
	var localRuns []LocalSource
	for _, name := range sortedNames(c.sources) {
		src := c.sources[name]
		if !src.InScope(ctx) {
			log.Debugf("source %q out of scope %q, skipping", name, ctx.CurrentScope())
			continue
		}
		if _, cached := c.matches[name]; cached && src.Refresh == 0 {
			continue
		}
		if local, ok := c.locals[name]; ok {
			localRuns = append(localRuns, local)
			continue
		}
		if src.HasSyncRefresh {
			syncNames = append(syncNames, name)
		}
		for _, ch := range src.Channels {
			if ch.ID == 0 {
				continue
			}
			channels = append(channels, ChannelRefresh{Name: name, ID: ch.ID, Context: ctx})
		}
	}

	if len(syncNames) == 0 && len(channels) == 0 && len(localRuns) == 0 {
		log.Debug("no sources to refresh, merging cached state")
		c.mergeAndEmit(ctx)
		c.poppedUp = true
		return
	}

	for _, local := range localRuns {
		local.Refresh(ctx)
	}
	if len(syncNames) > 0 || len(channels) > 0 {
		log.Debugf("notifying sources: sync %v, channels %d", syncNames, len(channels))
		if err := c.emitter.NotifyRefresh(syncNames, channels, ctx); err != nil {
			log.Errorf("notify refresh: %v", err)
		}
	}
}

// updateSources replaces the descriptor set with the editor's latest,
// keeping local descriptors visible alongside it.
func (c *Coordinator) updateSources(srcs map[string]SourceDescriptor) {
	merged := make(map[string]SourceDescriptor, len(srcs)+len(c.locals))
	for name, src := range srcs {
		merged[name] = src
	}
	for name, local := range c.locals {
		if _, shadowed := merged[name]; shadowed {
			log.Warnf("editor source %q shadows local source of the same name", name)
			continue
		}
		merged[name] = local.Descriptor()
	}
	c.sources = merged
}

// mergeAndEmit folds every stored source result into one list. The merge
// depends only on the stored state, so re-running it with the same state
// is idempotent regardless of response arrival order.
func (c *Coordinator) mergeAndEmit(ctx Context) {
	names := make([]string, 0, len(c.matches))
	for name := range c.matches {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.SliceStable(names, func(i, j int) bool {
		return c.sources[names[i]].Priority > c.sources[names[j]].Priority
	})

	if len(names) == 0 {
		c.emit(ctx, ctx.Col, nil)
		return
	}

	// Pass one: reprocess each source against its own startcol and find
	// the leftmost column any non-empty source completes from.
	startcol := ctx.Col
	for _, name := range names {
		st := c.matches[name]
		if st.Startcol > ctx.Col {
			st.LastProcessed = nil
			log.Errorf("source %q reported startcol %d beyond column %d, ignoring", name, st.Startcol, ctx.Col)
			continue
		}
		st.LastProcessed = c.proc.Process(c.sources[name], ctx, st.Startcol, st.Raw)
		if len(st.LastProcessed) == 0 {
			continue
		}
		if st.Startcol < startcol {
			startcol = st.Startcol
		}
	}

	// Pass two: align every source onto the shared start column by
	// prepending the typed text between the two columns, then concatenate
	// in priority order.
	var merged []MatchRecord
	for _, name := range names {
		st := c.matches[name]
		if st.Startcol > ctx.Col {
			continue
		}
		pad, err := padding(ctx.Typed, startcol, st.Startcol)
		if err != nil {
			log.Errorf("source %q: %v", name, err)
			continue
		}
		for _, rec := range st.LastProcessed {
			rec.Word = pad + rec.Word
			merged = append(merged, rec)
		}
	}

	c.emit(ctx, startcol, merged)
}

// emit hands the merged result to the editor. Back-to-back empty results
// are collapsed into one emission so the popup is not dismissed twice.
func (c *Coordinator) emit(ctx Context, startcol int, matches []MatchRecord) {
	if len(matches) == 0 && len(c.lastEmitted) == 0 {
		return
	}
	c.lastEmitted = matches
	log.Debugf("completing at col %d with %d matches", startcol, len(matches))
	if err := c.emitter.Complete(ctx, startcol, matches, c.stateSnapshot()); err != nil {
		log.Errorf("emit completion: %v", err)
	}
}

func (c *Coordinator) stateSnapshot() map[string]SourceState {
	snap := make(map[string]SourceState, len(c.matches))
	for name, st := range c.matches {
		snap[name] = *st
	}
	return snap
}

// padding extracts typed[from-1:to-1], the text a source starting at
// column to must be prefixed with to align on column from.
func padding(typed string, from, to int) (string, error) {
	if from < 1 || to < from || to-1 > len(typed) {
		return "", fmt.Errorf("padding range %d..%d outside typed text (%d chars)", from, to, len(typed))
	}
	return typed[from-1 : to-1], nil
}

// sortedNames returns map keys in a stable order; map iteration order
// must never leak into the refresh protocol.
func sortedNames(srcs map[string]SourceDescriptor) []string {
	names := make([]string, 0, len(srcs))
	for name := range srcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
