// Package wordsource is a built-in completion source offering words that
// already appear in the current document. It behaves exactly like an
// out-of-process source: it reads buffer content through the document
// server's URL and reports matches back asynchronously, so it never
// blocks the event loop on a call into the editor.
package wordsource

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/bastiangx/popmux/pkg/merge"
)

// Name is the source's unique key in the descriptor set.
const Name = "buffer-words"

// Deliver feeds one response back into the coordination loop. The
// callback must hand the arguments over to the event loop goroutine.
type Deliver func(name string, ctx merge.Context, startcol int, matches []any)

// Source indexes document words in a patricia trie, rebuilt whenever the
// document version moves. It runs on its own goroutine.
type Source struct {
	deliver Deliver
	client  *http.Client
	minLen  int
	limit   int

	refreshc chan merge.Context
	quit     chan struct{}

	// goroutine-local index state
	indexedAt merge.Version
	trie      *patricia.Trie
}

// New builds the source. minLen is the shortest word worth indexing,
// limit caps how many matches one refresh reports.
func New(deliver Deliver, minLen, limit int) *Source {
	if minLen < 1 {
		minLen = 3
	}
	if limit < 1 {
		limit = 50
	}
	return &Source{
		deliver:  deliver,
		client:   &http.Client{Timeout: 2 * time.Second},
		minLen:   minLen,
		limit:    limit,
		refreshc: make(chan merge.Context, 1),
		quit:     make(chan struct{}),
	}
}

// Descriptor implements merge.LocalSource.
func (s *Source) Descriptor() merge.SourceDescriptor {
	return merge.SourceDescriptor{
		Name:           Name,
		Priority:       5,
		Scopes:         []string{"*"},
		Refresh:        1,
		Abbreviation:   "buf",
		HasSyncRefresh: true,
	}
}

// Refresh implements merge.LocalSource. Never blocks: when a refresh is
// already pending it is replaced by the newer context, since answering an
// abandoned cycle is wasted work.
func (s *Source) Refresh(ctx merge.Context) {
	for {
		select {
		case s.refreshc <- ctx:
			return
		case <-s.quit:
			return
		default:
		}
		select {
		case <-s.refreshc:
		default:
		}
	}
}

// Start launches the worker goroutine.
func (s *Source) Start() {
	go s.run()
}

// Stop terminates the worker.
func (s *Source) Stop() {
	close(s.quit)
}

func (s *Source) run() {
	for {
		select {
		case <-s.quit:
			return
		case ctx := <-s.refreshc:
			startcol, matches := s.complete(ctx)
			s.deliver(Name, ctx, startcol, matches)
		}
	}
}

// complete answers one refresh: locate the word under the cursor, make
// sure the index matches the context's document version, then collect
// words sharing the prefix.
func (s *Source) complete(ctx merge.Context) (int, []any) {
	startcol := merge.WordStart(ctx.Typed)
	prefix := ctx.Typed[startcol-1:]
	if prefix == "" {
		return startcol, nil
	}

	if s.trie == nil || !s.indexedAt.Equal(ctx.Version()) {
		text, ok := s.fetch(ctx)
		if !ok {
			return startcol, nil
		}
		s.trie = index(text, s.minLen)
		s.indexedAt = ctx.Version()
	}

	lower := strings.ToLower(prefix)
	var matches []any
	err := s.trie.VisitSubtree(patricia.Prefix(lower), func(p patricia.Prefix, item patricia.Item) error {
		word := item.(string)
		if strings.EqualFold(word, prefix) {
			return nil
		}
		matches = append(matches, word)
		if len(matches) >= s.limit {
			return errLimit
		}
		return nil
	})
	if err != nil && err != errLimit {
		log.Errorf("visit word index: %v", err)
	}
	return startcol, matches
}

// fetch reads the document through the context's content URL. An empty
// body means the context already went stale; reporting nothing is the
// right answer for an abandoned cycle.
func (s *Source) fetch(ctx merge.Context) (string, bool) {
	if ctx.FileURL == "" {
		return "", false
	}
	resp, err := s.client.Get(ctx.FileURL)
	if err != nil {
		log.Errorf("fetch document: %v", err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Errorf("fetch document: status %s", resp.Status)
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("read document body: %v", err)
		return "", false
	}
	if len(body) == 0 {
		log.Debugf("document at version %+v already outdated", ctx.Version())
		return "", false
	}
	return string(body), true
}

// errLimit aborts the trie walk once enough matches are collected.
var errLimit = errors.New("match limit reached")

// index splits text into word-class runs and stores each lowercased word
// once, keeping the first casing seen as the completion text.
func index(text string, minLen int) *patricia.Trie {
	trie := patricia.NewTrie()
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		start = -1
		if len(word) < minLen {
			return
		}
		trie.Insert(patricia.Prefix(strings.ToLower(word)), word)
	}
	for i := 0; i < len(text); i++ {
		if merge.IsWordChar(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return trie
}
